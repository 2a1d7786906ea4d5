package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/thavlik/foldy-bench/artifact"
	"github.com/thavlik/foldy-bench/client"
	"github.com/thavlik/foldy-bench/config"
	"github.com/thavlik/foldy-bench/ctxlog"
	"github.com/thavlik/foldy-bench/plan"
	"github.com/thavlik/foldy-bench/request"
	"github.com/thavlik/foldy-bench/sweep"
)

func runBatch(ctx context.Context, outW io.Writer, cfg config.Config, args []string) error {
	cmd := newCommand("batch", outW, cfg)
	defaults := request.DefaultParams()
	defs := cmd.fs.String("defs", "", "Directory of YAML target definitions.")
	out := cmd.fs.String("out", "", "Directory that receives result artifacts.")
	baseURL := cmd.fs.String("base-url", cfg.BaseURL, "Base URL of the prediction service.")
	timeout := cmd.fs.Duration("timeout", cfg.Timeout, "Per-request timeout.")
	steps := cmd.fs.Int("steps", defaults.SamplingSteps, "Sampling steps.")
	recycling := cmd.fs.Int("recycling", defaults.RecyclingSteps, "Recycling steps.")
	diffusion := cmd.fs.Int("diffusion", defaults.DiffusionSamples, "Diffusion samples.")
	stepScale := cmd.fs.Float64("step-scale", defaults.StepScale, "Step scale.")
	withoutPotentials := cmd.fs.Bool("without-potentials", defaults.WithoutPotentials, "Disable inference potentials.")
	msaPath := cmd.fs.String("msa", cfg.MSAFallback, "Global MSA used when a definition has none (default <defs>/../msa/uniref.a3m).")
	retries := cmd.fs.Int("retries", cfg.Retries, "Extra attempts after a transport error or 5xx.")
	if done, err := cmd.parse(args); done || err != nil {
		return err
	}
	if *defs == "" || *out == "" {
		cmd.fs.Usage()
		return usageError("batch: -defs and -out are required")
	}
	ctx, log, err := cmd.logger(ctx)
	if err != nil {
		return err
	}
	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	runner, err := svc.runner(ctx, runnerOptions{
		definitions: *defs,
		baseURL:     *baseURL,
		timeout:     *timeout,
		msaPath:     *msaPath,
		retries:     *retries,
	})
	if err != nil {
		return err
	}
	params := request.Params{
		RecyclingSteps:    *recycling,
		SamplingSteps:     *steps,
		DiffusionSamples:  *diffusion,
		StepScale:         *stepScale,
		WithoutPotentials: *withoutPotentials,
	}
	log.Info("Starting batch", "defs", *defs, "out", *out, "base_url", *baseURL, "sampling_steps", params.SamplingSteps)
	summary, err := runner.Run(ctx, *defs, params, *out)
	if err != nil {
		return err
	}
	fmt.Fprintf(outW, "Processed %d of %d definitions: %d ok, %d error, %d skipped\n",
		summary.Processed(), summary.Files, summary.Succeeded, summary.Failed, summary.Skipped)
	if summary.Unwritten > 0 {
		return fmt.Errorf("%d artifacts could not be written to %s", summary.Unwritten, *out)
	}
	return nil
}

func runSweepCommand(ctx context.Context, outW io.Writer, cfg config.Config, args []string) error {
	cmd := newCommand("sweep", outW, cfg)
	defaults := request.DefaultParams()
	mode := cmd.fs.String("mode", sweep.ModeBatch, "Invoker: batch, serve or command (argv after --).")
	param := cmd.fs.String("param", sweep.ParamSteps, "Swept parameter: steps, batch_size, recycling_steps or diffusion_samples.")
	values := cmd.fs.String("values", "", "Comma separated parameter values.")
	repeats := cmd.fs.Int("repeats", 1, "Number of passes over the values.")
	timingLog := cmd.fs.String("log", "", "Timing log (TSV, appended).")
	clearPath := cmd.fs.String("clear", "", "Path removed before each point; {run} and {value} are expanded.")
	pointTimeout := cmd.fs.Duration("point-timeout", 0, "Limit for a single point (0 is none).")
	defs := cmd.fs.String("defs", "", "Definitions directory (batch mode).")
	out := cmd.fs.String("out", "", "Output directory template (batch mode).")
	data := cmd.fs.String("data", "", "Data path sent to the serve wrapper (serve mode).")
	batchSize := cmd.fs.Int("batch-size", 0, "Batch size sent to the serve wrapper (serve mode).")
	steps := cmd.fs.Int("steps", defaults.SamplingSteps, "Sampling steps when not swept.")
	baseURL := cmd.fs.String("base-url", cfg.BaseURL, "Base URL of the prediction service.")
	requestTimeout := cmd.fs.Duration("timeout", cfg.Timeout, "Per-request timeout.")
	dir := cmd.fs.String("dir", "", "Working directory (command mode).")
	if done, err := cmd.parse(args); done || err != nil {
		return err
	}
	vals, err := sweep.ParseValues(*values)
	if err != nil {
		return usageError("sweep: -values: %v", err)
	}
	s := &plan.Sweep{
		Name:          "cli",
		Mode:          *mode,
		Parameter:     *param,
		Values:        vals,
		Repeats:       *repeats,
		TimingLog:     *timingLog,
		Clear:         *clearPath,
		BaseURL:       *baseURL,
		Definitions:   *defs,
		OutDir:        *out,
		Data:          *data,
		BatchSize:     *batchSize,
		Command:       cmd.fs.Args(),
		Dir:           *dir,
		SamplingSteps: *steps,
	}
	if *pointTimeout > 0 {
		s.Timeout = pointTimeout.String()
	}
	if *requestTimeout > 0 {
		s.RequestTimeout = requestTimeout.String()
	}
	if err := s.Validate(); err != nil {
		cmd.fs.Usage()
		return usageError("sweep: %v", err)
	}
	ctx, _, err = cmd.logger(ctx)
	if err != nil {
		return err
	}
	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	return runSweep(ctx, outW, svc, s)
}

func runPlan(ctx context.Context, outW io.Writer, cfg config.Config, args []string) error {
	cmd := newCommand("plan", outW, cfg)
	path := cmd.fs.String("f", "", "Plan file.")
	if done, err := cmd.parse(args); done || err != nil {
		return err
	}
	if *path == "" && cmd.fs.NArg() > 0 {
		*path = cmd.fs.Arg(0)
	}
	if *path == "" {
		cmd.fs.Usage()
		return usageError("plan: -f is required")
	}
	ctx, log, err := cmd.logger(ctx)
	if err != nil {
		return err
	}
	p, err := plan.Load(*path)
	if err != nil {
		return err
	}
	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()
	for i, s := range p.Sweeps {
		fmt.Fprintf(outW, "=== %s (%d/%d) ===\n", s.Name, i+1, len(p.Sweeps))
		start := time.Now()
		if err := runSweep(ctx, outW, svc, s); err != nil {
			return fmt.Errorf("sweep %q: %w", s.Name, err)
		}
		log.Info("Sweep finished", "sweep", s.Name, "elapsed", artifact.Seconds(time.Since(start)))
	}
	return nil
}

// runSweep executes one sweep description against the configured services.
func runSweep(ctx context.Context, outW io.Writer, svc *services, s *plan.Sweep) error {
	log := ctxlog.FromContext(ctx)
	timeout, err := s.TimeoutDuration()
	if err != nil {
		return err
	}
	requestTimeout, err := s.RequestTimeoutDuration(svc.cfg.Timeout)
	if err != nil {
		return err
	}
	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = svc.cfg.BaseURL
	}
	var invoker sweep.Invoker
	switch s.Mode {
	case sweep.ModeBatch:
		runner, err := svc.runner(ctx, runnerOptions{
			definitions: s.Definitions,
			baseURL:     baseURL,
			timeout:     requestTimeout,
			msaPath:     svc.cfg.MSAFallback,
			retries:     svc.cfg.Retries,
		})
		if err != nil {
			return err
		}
		invoker = &sweep.BatchInvoker{
			Runner:      runner,
			Definitions: s.Definitions,
			OutDir:      s.OutDir,
			Params:      s.Params(),
			Parameter:   s.Parameter,
		}
	case sweep.ModeServe:
		c := client.New(baseURL, requestTimeout)
		defer c.Close()
		invoker = &sweep.ServeInvoker{Client: c, Request: s.ServeRequest(), Parameter: s.Parameter}
	case sweep.ModeCommand:
		invoker = &sweep.CommandInvoker{Argv: s.Command, Dir: s.Dir, Stdout: outW, Stderr: os.Stderr}
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	tl, err := sweep.OpenTimingLog(s.TimingLog, s.Parameter)
	if err != nil {
		return err
	}
	defer tl.Close()
	log.Info("Starting sweep",
		"sweep", s.Name,
		"mode", s.Mode,
		"parameter", s.Parameter,
		"values", s.Values,
		"repeats", s.Repeats,
		"timing_log", s.TimingLog)
	h := &sweep.Harness{
		Invoker:  invoker,
		Log:      tl,
		Clear:    s.Clear,
		Timeout:  timeout,
		Progress: outW,
	}
	rows, err := h.Run(ctx, s.Grid())
	if err != nil {
		return err
	}
	fmt.Fprintf(outW, "Wrote %d timing rows to %s\n", len(rows), tl.Path())
	return nil
}

func runSummarize(ctx context.Context, outW io.Writer, cfg config.Config, args []string) error {
	cmd := newCommand("summarize", outW, cfg)
	out := cmd.fs.String("out", "", "Artifact directory.")
	good := cmd.fs.String("good", "", "Write ids of targets with at least one ok artifact to this file.")
	if done, err := cmd.parse(args); done || err != nil {
		return err
	}
	if *out == "" {
		cmd.fs.Usage()
		return usageError("summarize: -out is required")
	}
	_, log, err := cmd.logger(ctx)
	if err != nil {
		return err
	}
	tally, err := artifact.Summarize(*out)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", *out, err)
	}
	for _, path := range tally.Invalid {
		log.Warn("Unreadable artifact", "path", path)
	}
	fmt.Fprintf(outW, "%d artifacts: %d ok, %d error, %d unreadable\n",
		tally.Total(), tally.OK, tally.Errors, len(tally.Invalid))
	for _, id := range tally.Targets() {
		tt := tally.ByTarget[id]
		fmt.Fprintf(outW, "%s\tok=%d\terror=%d\n", id, tt.OK, tt.Errors)
	}
	if *good != "" {
		ids := tally.Good()
		body := strings.Join(ids, "\n")
		if len(ids) > 0 {
			body += "\n"
		}
		if err := os.WriteFile(*good, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write good ids: %w", err)
		}
		fmt.Fprintf(outW, "Wrote %d good targets to %s\n", len(ids), *good)
	}
	return nil
}
