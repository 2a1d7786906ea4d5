// Package sweep times repeated prediction runs over a parameter grid.
//
// Points run strictly one after another. Each point gets a row in the
// timing log as soon as it finishes, so an interrupted sweep leaves a
// readable partial log.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Jeffail/tunny"

	"github.com/thavlik/foldy-bench/artifact"
	"github.com/thavlik/foldy-bench/ctxlog"
)

// Invoker runs the prediction work for one grid point.
type Invoker interface {
	Invoke(ctx context.Context, p Point) error
}

// InvokerFunc ...
type InvokerFunc func(ctx context.Context, p Point) error

// Invoke ...
func (f InvokerFunc) Invoke(ctx context.Context, p Point) error {
	return f(ctx, p)
}

// Harness ...
type Harness struct {
	Invoker Invoker
	Log     *TimingLog
	// Clear, when set, is removed before each point. {run} and {value}
	// are expanded. Removal errors are ignored.
	Clear string
	// Timeout bounds a single point; zero means no limit.
	Timeout time.Duration
	// Progress receives one line per finished point.
	Progress io.Writer
}

type job struct {
	ctx   context.Context
	point Point
}

// Run executes every point of grid and returns the rows written.
func (h *Harness) Run(ctx context.Context, grid Grid) ([]Row, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if h.Log == nil {
		return nil, errors.New("sweep: no timing log")
	}
	log := ctxlog.FromContext(ctx)
	progress := h.Progress
	if progress == nil {
		progress = os.Stdout
	}

	// A single worker keeps points sequential; the pool gives each point
	// a context-bounded slot.
	pool := tunny.NewFunc(1, func(payload interface{}) interface{} {
		j, ok := payload.(*job)
		if !ok {
			return nil
		}
		return h.Invoker.Invoke(j.ctx, j.point)
	})
	defer pool.Close()

	var rows []Row
	for _, p := range grid.Points() {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		start := time.Now()
		if h.Clear != "" {
			stale := Expand(h.Clear, p)
			if err := os.RemoveAll(stale); err != nil {
				log.Debug("Could not clear stale output", "path", stale, "error", err)
			}
		}
		err := h.invoke(ctx, pool, p)
		elapsed := time.Since(start)
		if err != nil {
			if ctx.Err() != nil {
				return rows, ctx.Err()
			}
			log.Warn("Point failed", "run", p.Run, grid.Parameter, p.Value, "error", err)
		}
		row := Row{Run: p.Run, Value: p.Value, Seconds: artifact.Seconds(elapsed)}
		fmt.Fprintf(progress, "Run %d, %s %d: %.2f seconds\n", row.Run, grid.Parameter, row.Value, row.Seconds)
		if err := h.Log.Append(row); err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (h *Harness) invoke(ctx context.Context, pool *tunny.Pool, p Point) error {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	result, err := pool.ProcessCtx(ctx, &job{ctx: ctx, point: p})
	if err != nil {
		// The worker may still be inside an abandoned invocation; a barrier
		// job returns once it is free so the point's time covers it.
		pool.Process(nil)
		return err
	}
	if err, ok := result.(error); ok && err != nil {
		return err
	}
	return nil
}
