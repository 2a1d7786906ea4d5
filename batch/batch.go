// Package batch runs one prediction per definition file in a directory.
//
// Items are processed one at a time in file-name order. A failing item is
// recorded as an error artifact and the batch moves on. Only problems with
// the directories themselves, or the context ending, stop a run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thavlik/foldy-bench/artifact"
	"github.com/thavlik/foldy-bench/client"
	"github.com/thavlik/foldy-bench/ctxlog"
	"github.com/thavlik/foldy-bench/definition"
	"github.com/thavlik/foldy-bench/notify"
	"github.com/thavlik/foldy-bench/request"
)

// EnvironmentError aborts a batch: the output directory cannot be
// created or the definitions directory cannot be listed.
type EnvironmentError struct {
	Op   string
	Path string
	Err  error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// Summary accounts for every definition file seen.
type Summary struct {
	Files     int
	Skipped   int
	Succeeded int
	Failed    int
	// Unwritten counts processed items whose artifact could not be saved.
	Unwritten int
	Artifacts []string
}

// Processed is the number of items that reached the request stage.
func (s *Summary) Processed() int {
	return s.Succeeded + s.Failed
}

// Runner ...
type Runner struct {
	Builder   *request.Builder
	Predictor client.Predictor
	// Mirror receives a copy of every artifact after it is written locally.
	Mirror   artifact.Store
	Notifier notify.Notifier
	Now      func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run processes every definition in defsDir and writes artifacts to outDir.
// When ctx ends, Run returns the partial summary and ctx.Err(); the item in
// flight gets no artifact.
func (r *Runner) Run(ctx context.Context, defsDir string, params request.Params, outDir string) (*Summary, error) {
	log := ctxlog.FromContext(ctx)
	store, err := artifact.NewDirStore(outDir)
	if err != nil {
		return nil, &EnvironmentError{Op: "create output dir", Path: outDir, Err: err}
	}
	files, err := definition.Discover(defsDir)
	if err != nil {
		return nil, &EnvironmentError{Op: "list definitions", Path: defsDir, Err: err}
	}
	summary := &Summary{Files: len(files)}
	if len(files) == 0 {
		log.Warn("No definition files found", "dir", defsDir)
		return summary, nil
	}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		def, warnings, err := definition.Load(path)
		for _, w := range warnings {
			log.Warn("Definition warning", "file", w.Path, "msg", w.Message)
		}
		if err != nil {
			log.Warn("Skipping definition", "file", path, "error", err)
			summary.Skipped++
			continue
		}
		a, err := r.process(ctx, log, def, params)
		if err != nil {
			log.Warn("Batch interrupted", "target", def.TargetID, "error", err)
			return summary, err
		}
		if a.OK() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		name, err := r.persist(ctx, log, store, a)
		if err != nil {
			log.Error("Failed to write artifact", "target", def.TargetID, "error", err)
			summary.Unwritten++
			continue
		}
		summary.Artifacts = append(summary.Artifacts, name)
	}
	log.Info("Batch finished",
		"files", summary.Files,
		"skipped", summary.Skipped,
		"ok", summary.Succeeded,
		"error", summary.Failed)
	return summary, nil
}

// process returns an error only when ctx ended the call; such an item
// never reached a remote outcome and gets no artifact.
func (r *Runner) process(ctx context.Context, log *slog.Logger, def *definition.Definition, params request.Params) (*artifact.Artifact, error) {
	payload, source := r.Builder.Build(def, params)
	log.Info("Processing",
		"file", def.Path,
		"target", def.TargetID,
		"seq_len", len(def.Sequence),
		"ligands", len(payload.Ligands),
		"msa", source,
		"sampling_steps", params.SamplingSteps)
	start := time.Now()
	resp, err := r.Predictor.Predict(ctx, payload)
	elapsed := time.Since(start)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			return nil, cerr
		}
		log.Warn("Prediction failed",
			"target", def.TargetID,
			"elapsed", artifact.Seconds(elapsed),
			"status", client.StatusCode(err),
			"error", err)
		return artifact.Failure(def.TargetID, params.SamplingSteps, elapsed, client.StatusCode(err), detail(err)), nil
	}
	log.Info("Prediction succeeded", "target", def.TargetID, "elapsed", artifact.Seconds(elapsed))
	return artifact.Success(def.TargetID, params.SamplingSteps, elapsed, resp.RequestID, resp.Body), nil
}

func detail(err error) string {
	var serr *client.StatusError
	if errors.As(err, &serr) && serr.Body == "" {
		return serr.Error()
	}
	return client.Detail(err)
}

func (r *Runner) persist(ctx context.Context, log *slog.Logger, store *artifact.DirStore, a *artifact.Artifact) (string, error) {
	data, err := a.Encode()
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	name, err := store.Put(ctx, artifact.NameFor(a, r.now()), data)
	if err != nil {
		return "", err
	}
	if r.Mirror != nil {
		if object, err := r.Mirror.Put(ctx, name, data); err != nil {
			log.Warn("Failed to mirror artifact", "name", name, "error", err)
		} else {
			log.Debug("Mirrored artifact", "object", object)
		}
	}
	if r.Notifier != nil {
		if err := r.Notifier.Notify(ctx, name, a); err != nil {
			log.Warn("Failed to publish artifact", "name", name, "error", err)
		}
	}
	return name, nil
}
