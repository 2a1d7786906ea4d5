package sweep

import (
	"fmt"
	"strconv"
	"strings"
)

// Parameter names understood by the invokers.
const (
	ParamSteps            = "steps"
	ParamSamplingSteps    = "sampling_steps"
	ParamBatchSize        = "batch_size"
	ParamRecyclingSteps   = "recycling_steps"
	ParamDiffusionSamples = "diffusion_samples"
)

// Invoker kinds.
const (
	ModeBatch   = "batch"
	ModeServe   = "serve"
	ModeCommand = "command"
)

// Point is one cell of the grid. Run counts from 1.
type Point struct {
	Run   int
	Value int
}

// Grid is Repeats passes over Values for one parameter.
type Grid struct {
	Parameter string
	Values    []int
	Repeats   int
}

// Validate ...
func (g Grid) Validate() error {
	if g.Parameter == "" || strings.ContainsAny(g.Parameter, "\t\n") {
		return fmt.Errorf("invalid parameter name %q", g.Parameter)
	}
	if len(g.Values) == 0 {
		return fmt.Errorf("no values for %s", g.Parameter)
	}
	if g.Repeats < 1 {
		return fmt.Errorf("repeats must be at least 1, got %d", g.Repeats)
	}
	return nil
}

// Points lists the grid in execution order: runs outer, values inner.
func (g Grid) Points() []Point {
	points := make([]Point, 0, g.Repeats*len(g.Values))
	for run := 1; run <= g.Repeats; run++ {
		for _, v := range g.Values {
			points = append(points, Point{Run: run, Value: v})
		}
	}
	return points
}

// ParseValues parses a comma separated list such as "10,20,50".
func ParseValues(s string) ([]int, error) {
	var values []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", field, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Expand substitutes {run} and {value} in s.
func Expand(s string, p Point) string {
	return strings.NewReplacer(
		"{run}", strconv.Itoa(p.Run),
		"{value}", strconv.Itoa(p.Value),
	).Replace(s)
}
