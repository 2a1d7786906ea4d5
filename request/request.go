// Package request builds the body sent to the prediction endpoint.
package request

import (
	"encoding/json"

	"github.com/thavlik/foldy-bench/definition"
	"github.com/thavlik/foldy-bench/msa"
)

// MoleculeProtein is the only polymer type this harness submits.
const MoleculeProtein = "protein"

// Params are the sweep-level knobs copied verbatim into every request.
// Ranges are left to the service.
type Params struct {
	RecyclingSteps    int
	SamplingSteps     int
	DiffusionSamples  int
	StepScale         float64
	WithoutPotentials bool
}

// DefaultParams ...
func DefaultParams() Params {
	return Params{
		RecyclingSteps:    3,
		SamplingSteps:     200,
		DiffusionSamples:  1,
		StepScale:         1.5,
		WithoutPotentials: true,
	}
}

// Polymer ...
type Polymer struct {
	ID           string      `json:"id"`
	MoleculeType string      `json:"molecule_type"`
	Sequence     string      `json:"sequence"`
	MSA          msa.Payload `json:"msa"`
}

// Ligand ...
type Ligand struct {
	ID              string `json:"id"`
	SMILES          string `json:"smiles"`
	PredictAffinity bool   `json:"predict_affinity"`
}

// Payload is the request document. Build it with New so that an empty
// ligand list is always encoded as an absent field.
type Payload struct {
	Polymers          []Polymer `json:"polymers"`
	Ligands           []Ligand  `json:"ligands,omitempty"`
	RecyclingSteps    int       `json:"recycling_steps"`
	SamplingSteps     int       `json:"sampling_steps"`
	DiffusionSamples  int       `json:"diffusion_samples"`
	StepScale         float64   `json:"step_scale"`
	WithoutPotentials bool      `json:"without_potentials"`
}

// New assembles a single-polymer payload.
func New(polymer Polymer, ligands []Ligand, p Params) *Payload {
	payload := &Payload{
		Polymers:          []Polymer{polymer},
		RecyclingSteps:    p.RecyclingSteps,
		SamplingSteps:     p.SamplingSteps,
		DiffusionSamples:  p.DiffusionSamples,
		StepScale:         p.StepScale,
		WithoutPotentials: p.WithoutPotentials,
	}
	if len(ligands) > 0 {
		payload.Ligands = append([]Ligand(nil), ligands...)
	}
	return payload
}

// Encode returns the JSON body. Map keys are emitted sorted, so equal
// payloads encode to equal bytes.
func (p *Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Builder turns definitions into payloads.
type Builder struct {
	Resolver *msa.Resolver
}

// NewBuilder ...
func NewBuilder(resolver *msa.Resolver) *Builder {
	return &Builder{Resolver: resolver}
}

// Build derives a payload from def without modifying it. The source
// names the tier the alignment came from.
func (b *Builder) Build(def *definition.Definition, p Params) (*Payload, msa.Source) {
	alignment, source := msa.Synthesize(def.Sequence), msa.SourceSynthesized
	if b.Resolver != nil {
		alignment, source = b.Resolver.Resolve(def.MSA, def.Sequence)
	}
	polymer := Polymer{
		ID:           def.PolymerID,
		MoleculeType: MoleculeProtein,
		Sequence:     def.Sequence,
		MSA:          alignment,
	}
	var ligands []Ligand
	for _, l := range def.Ligands {
		ligands = append(ligands, Ligand{
			ID:              l.ID,
			SMILES:          l.SMILES,
			PredictAffinity: true,
		})
	}
	return New(polymer, ligands, p), source
}
