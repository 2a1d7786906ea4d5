package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thavlik/foldy-bench/artifact"
	"github.com/thavlik/foldy-bench/batch"
	"github.com/thavlik/foldy-bench/client"
	"github.com/thavlik/foldy-bench/config"
	"github.com/thavlik/foldy-bench/ctxlog"
	"github.com/thavlik/foldy-bench/msa"
	"github.com/thavlik/foldy-bench/notify"
	"github.com/thavlik/foldy-bench/request"
)

const usage = `foldy-bench - batch prediction and timing harness for a structure prediction service.

Usage:
  foldy-bench batch     -defs DIR -out DIR [options]
  foldy-bench sweep     -values 10,20 -log FILE [options] [-- command args...]
  foldy-bench plan      -f plan.hcl
  foldy-bench summarize -out DIR [-good FILE]

Run 'foldy-bench <command> -h' for the options of a command.
`

// ExitError carries a process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...interface{}) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run dispatches to a subcommand. Progress and reports go to outW; logs
// go to stderr.
func run(outW io.Writer, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(outW, usage)
		return usageError("missing command")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	switch args[0] {
	case "batch":
		return runBatch(ctx, outW, cfg, args[1:])
	case "sweep":
		return runSweepCommand(ctx, outW, cfg, args[1:])
	case "plan":
		return runPlan(ctx, outW, cfg, args[1:])
	case "summarize":
		return runSummarize(ctx, outW, cfg, args[1:])
	case "help", "-h", "-help", "--help":
		fmt.Fprint(outW, usage)
		return nil
	}
	fmt.Fprint(outW, usage)
	return usageError("unknown command %q", args[0])
}

// command is a parsed subcommand with the logging flags every command shares.
type command struct {
	fs        *flag.FlagSet
	logLevel  *string
	logFormat *string
}

func newCommand(name string, outW io.Writer, cfg config.Config) *command {
	fs := flag.NewFlagSet("foldy-bench "+name, flag.ContinueOnError)
	fs.SetOutput(outW)
	return &command{
		fs:        fs,
		logLevel:  fs.String("log-level", cfg.LogLevel, "Logging level: debug, info, warn or error."),
		logFormat: fs.String("log-format", cfg.LogFormat, "Log output format: text or json."),
	}
}

// parse returns done=true when help was requested.
func (c *command) parse(args []string) (bool, error) {
	if err := c.fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return false, &ExitError{Code: 2, Message: err.Error()}
	}
	return false, nil
}

// logger builds the command's logger and stores it in ctx.
func (c *command) logger(ctx context.Context) (context.Context, *slog.Logger, error) {
	logger, err := ctxlog.New(*c.logLevel, *c.logFormat, os.Stderr)
	if err != nil {
		return ctx, nil, usageError("%v", err)
	}
	return ctxlog.WithLogger(ctx, logger), logger, nil
}

// services are the optional sinks every batch shares.
type services struct {
	cfg      config.Config
	mirror   artifact.Store
	notifier notify.Notifier
	closers  []func() error
}

func newServices(ctx context.Context, cfg config.Config) (*services, error) {
	log := ctxlog.FromContext(ctx)
	s := &services{cfg: cfg}
	if cfg.Artifact.Mirrored() {
		store, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			Prefix:    cfg.Artifact.Prefix,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("artifact mirror: %w", err)
		}
		log.Info("Mirroring artifacts", "endpoint", cfg.Artifact.Endpoint, "bucket", cfg.Artifact.Bucket)
		s.mirror = store
	}
	if cfg.RedisURI != "" {
		r, err := notify.NewRedis(cfg.RedisURI, cfg.RedisChannel, 0)
		if err != nil {
			log.Warn("Artifact notifications disabled", "redis", cfg.RedisURI, "error", err)
		} else {
			s.notifier = r
			s.closers = append(s.closers, r.Close)
		}
	}
	return s, nil
}

func (s *services) Close() {
	for _, c := range s.closers {
		c()
	}
}

type runnerOptions struct {
	definitions string
	baseURL     string
	timeout     time.Duration
	msaPath     string
	retries     int
}

// runner wires a batch runner for one definitions directory.
func (s *services) runner(ctx context.Context, opts runnerOptions) (*batch.Runner, error) {
	msaPath := opts.msaPath
	if msaPath == "" {
		msaPath = msa.DefaultFallbackPath(opts.definitions)
	}
	resolver, err := msa.NewResolver(msaPath, s.cfg.MSACacheSize, ctxlog.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	predictor := client.Retry(client.New(opts.baseURL, opts.timeout), opts.retries+1, s.cfg.RetryDelay)
	return &batch.Runner{
		Builder:   request.NewBuilder(resolver),
		Predictor: predictor,
		Mirror:    s.mirror,
		Notifier:  s.notifier,
	}, nil
}
