// Package plan loads HCL files that describe a sequence of sweeps.
//
//	sweep "steps" {
//	  mode        = "batch"
//	  parameter   = "steps"
//	  values      = [10, 20, 50, 100, 200]
//	  repeats     = 4
//	  definitions = "yamls"
//	  out_dir     = "results/run{run}_steps{value}"
//	  timing_log  = "timings_steps.tsv"
//	}
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/thavlik/foldy-bench/client"
	"github.com/thavlik/foldy-bench/request"
	"github.com/thavlik/foldy-bench/sweep"
)

// Plan is the decoded file. Sweeps keep their file order.
type Plan struct {
	Sweeps []*Sweep `hcl:"sweep,block"`
}

// Sweep is one `sweep "<name>"` block.
type Sweep struct {
	Name      string `hcl:"name,label"`
	Mode      string `hcl:"mode,optional"`
	Parameter string `hcl:"parameter,optional"`
	Values    []int  `hcl:"values"`
	Repeats   int    `hcl:"repeats,optional"`
	TimingLog string `hcl:"timing_log"`
	Clear     string `hcl:"clear,optional"`
	Timeout   string `hcl:"timeout,optional"`
	// RequestTimeout bounds each HTTP call; empty uses the configured default.
	RequestTimeout string `hcl:"request_timeout,optional"`
	BaseURL        string `hcl:"base_url,optional"`

	// batch
	Definitions string `hcl:"definitions,optional"`
	OutDir      string `hcl:"out_dir,optional"`

	// serve
	Data      string `hcl:"data,optional"`
	BatchSize int    `hcl:"batch_size,optional"`

	// command
	Command []string `hcl:"command,optional"`
	Dir     string   `hcl:"dir,optional"`

	SamplingSteps    int `hcl:"sampling_steps,optional"`
	RecyclingSteps   int `hcl:"recycling_steps,optional"`
	DiffusionSamples int `hcl:"diffusion_samples,optional"`
}

// Load parses and validates the plan at path.
func Load(path string) (*Plan, error) {
	return load(path, func(p *hclparse.Parser) (*hcl.File, hcl.Diagnostics) {
		return p.ParseHCLFile(path)
	})
}

// Parse is Load for in-memory source; filename is used in diagnostics.
func Parse(src []byte, filename string) (*Plan, error) {
	return load(filename, func(p *hclparse.Parser) (*hcl.File, hcl.Diagnostics) {
		return p.ParseHCL(src, filename)
	})
}

func load(path string, parse func(*hclparse.Parser) (*hcl.File, hcl.Diagnostics)) (*Plan, error) {
	file, diags := parse(hclparse.NewParser())
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, diags)
	}
	plan := &Plan{}
	if diags := gohcl.DecodeBody(file.Body, nil, plan); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode plan %s: %w", path, diags)
	}
	if len(plan.Sweeps) == 0 {
		return nil, fmt.Errorf("plan %s: no sweep blocks", path)
	}
	seen := make(map[string]bool, len(plan.Sweeps))
	for _, s := range plan.Sweeps {
		s.defaults()
		if seen[s.Name] {
			return nil, fmt.Errorf("plan %s: duplicate sweep %q", path, s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("plan %s: sweep %q: %w", path, s.Name, err)
		}
	}
	return plan, nil
}

func (s *Sweep) defaults() {
	if s.Mode == "" {
		s.Mode = sweep.ModeBatch
	}
	if s.Parameter == "" {
		s.Parameter = sweep.ParamSteps
	}
	if s.Repeats == 0 {
		s.Repeats = 1
	}
}

// Validate checks that the block carries what its mode needs.
func (s *Sweep) Validate() error {
	if err := s.Grid().Validate(); err != nil {
		return err
	}
	if s.TimingLog == "" {
		return errors.New("timing_log is required")
	}
	if _, err := s.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := s.RequestTimeoutDuration(0); err != nil {
		return err
	}
	switch s.Mode {
	case sweep.ModeBatch:
		if s.Definitions == "" || s.OutDir == "" {
			return errors.New("batch mode needs definitions and out_dir")
		}
		p := s.Params()
		if err := sweep.ApplyParam(&p, s.Parameter, 1); err != nil {
			return err
		}
	case sweep.ModeServe:
		if s.Data == "" {
			return errors.New("serve mode needs data")
		}
		if s.Parameter != sweep.ParamSteps && s.Parameter != sweep.ParamSamplingSteps && s.Parameter != sweep.ParamBatchSize {
			return fmt.Errorf("%w: %q", sweep.ErrUnsupportedParameter, s.Parameter)
		}
	case sweep.ModeCommand:
		if len(s.Command) == 0 {
			return errors.New("command mode needs command")
		}
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	return nil
}

// Grid ...
func (s *Sweep) Grid() sweep.Grid {
	return sweep.Grid{Parameter: s.Parameter, Values: s.Values, Repeats: s.Repeats}
}

// TimeoutDuration parses Timeout; empty means no per-point limit.
func (s *Sweep) TimeoutDuration() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	return d, nil
}

// RequestTimeoutDuration parses RequestTimeout, returning fallback when
// it is empty.
func (s *Sweep) RequestTimeoutDuration(fallback time.Duration) (time.Duration, error) {
	if s.RequestTimeout == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("request_timeout: %w", err)
	}
	return d, nil
}

// Params are the default inference parameters with any overrides from
// the block applied.
func (s *Sweep) Params() request.Params {
	p := request.DefaultParams()
	if s.SamplingSteps > 0 {
		p.SamplingSteps = s.SamplingSteps
	}
	if s.RecyclingSteps > 0 {
		p.RecyclingSteps = s.RecyclingSteps
	}
	if s.DiffusionSamples > 0 {
		p.DiffusionSamples = s.DiffusionSamples
	}
	return p
}

// ServeRequest is the request template for serve mode.
func (s *Sweep) ServeRequest() client.ServeRequest {
	return client.ServeRequest{
		Data:          s.Data,
		SamplingSteps: s.Params().SamplingSteps,
		BatchSize:     s.BatchSize,
	}
}
