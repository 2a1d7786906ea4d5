package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/thavlik/foldy-bench/batch"
	"github.com/thavlik/foldy-bench/client"
	"github.com/thavlik/foldy-bench/ctxlog"
	"github.com/thavlik/foldy-bench/request"
)

// ErrUnsupportedParameter is returned when an invoker cannot vary the
// requested parameter.
var ErrUnsupportedParameter = errors.New("unsupported sweep parameter")

// ApplyParam sets the named inference parameter on p.
func ApplyParam(p *request.Params, name string, value int) error {
	switch name {
	case ParamSteps, ParamSamplingSteps:
		p.SamplingSteps = value
	case ParamRecyclingSteps:
		p.RecyclingSteps = value
	case ParamDiffusionSamples:
		p.DiffusionSamples = value
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedParameter, name)
	}
	return nil
}

// BatchInvoker runs a whole batch per point.
type BatchInvoker struct {
	Runner      *batch.Runner
	Definitions string
	// OutDir may contain {run} and {value}.
	OutDir    string
	Params    request.Params
	Parameter string
}

// Invoke ...
func (b *BatchInvoker) Invoke(ctx context.Context, p Point) error {
	params := b.Params
	if err := ApplyParam(&params, b.Parameter, p.Value); err != nil {
		return err
	}
	summary, err := b.Runner.Run(ctx, b.Definitions, params, Expand(b.OutDir, p))
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Batch finished",
		"run", p.Run,
		"ok", summary.Succeeded,
		"error", summary.Failed,
		"skipped", summary.Skipped)
	if summary.Failed > 0 && summary.Succeeded == 0 {
		return fmt.Errorf("all %d predictions failed", summary.Failed)
	}
	return nil
}

// ServeInvoker posts one directory-wide request to the serve wrapper.
type ServeInvoker struct {
	Client *client.Client
	// Request is the template; the swept field is overwritten per point.
	Request   client.ServeRequest
	Parameter string
}

// Invoke ...
func (s *ServeInvoker) Invoke(ctx context.Context, p Point) error {
	req := s.Request
	switch s.Parameter {
	case ParamSteps, ParamSamplingSteps:
		req.SamplingSteps = p.Value
	case ParamBatchSize:
		req.BatchSize = p.Value
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedParameter, s.Parameter)
	}
	req.Data = Expand(req.Data, p)
	_, err := s.Client.Serve(ctx, req)
	return err
}

// CommandInvoker runs an external command per point. {run} and {value}
// are expanded in every argument.
type CommandInvoker struct {
	Argv   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Invoke ...
func (c *CommandInvoker) Invoke(ctx context.Context, p Point) error {
	if len(c.Argv) == 0 {
		return errors.New("empty command")
	}
	argv := make([]string, len(c.Argv))
	for i, arg := range c.Argv {
		argv[i] = Expand(arg, p)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}
