package request

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/foldy-bench/definition"
	"github.com/thavlik/foldy-bench/msa"
)

func testBuilder(t *testing.T) *Builder {
	r, err := msa.NewResolver("", 0, nil)
	require.NoError(t, err)
	return NewBuilder(r)
}

func decode(t *testing.T, p *Payload) map[string]interface{} {
	body, err := p.Encode()
	require.NoError(t, err)
	doc := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(body, &doc))
	return doc
}

func TestBuildDeterministic(t *testing.T) {
	b := testBuilder(t)
	def := &definition.Definition{
		TargetID:  "t1",
		PolymerID: "A",
		Sequence:  "MKTAYIAKQR",
		Ligands:   []definition.Ligand{{ID: "L1", SMILES: "CCO"}},
		MSA: definition.MSAHint{Kind: definition.MSAInline, Inline: map[string]interface{}{
			"z": map[string]interface{}{"alignment": ">z\nMKT"},
			"a": map[string]interface{}{"alignment": ">a\nMKT"},
		}},
	}
	params := DefaultParams()
	built, source := b.Build(def, params)
	assert.Equal(t, msa.SourceInline, source)
	first, err := built.Encode()
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		built, _ = b.Build(def, params)
		again, err := built.Encode()
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestBuildFields(t *testing.T) {
	b := testBuilder(t)
	def := &definition.Definition{
		TargetID:  "t1",
		PolymerID: "A",
		Sequence:  "MKT",
		Ligands:   []definition.Ligand{{ID: "B", SMILES: "CCO"}},
	}
	params := Params{RecyclingSteps: 1, SamplingSteps: 20, DiffusionSamples: 2, StepScale: 1.5, WithoutPotentials: true}
	built, source := b.Build(def, params)
	assert.Equal(t, msa.SourceSynthesized, source)
	doc := decode(t, built)

	polymers := doc["polymers"].([]interface{})
	require.Len(t, polymers, 1)
	polymer := polymers[0].(map[string]interface{})
	assert.Equal(t, "A", polymer["id"])
	assert.Equal(t, "protein", polymer["molecule_type"])
	assert.Equal(t, "MKT", polymer["sequence"])
	alignment := polymer["msa"].(map[string]interface{})["uniref90"].(map[string]interface{})["a3m"].(map[string]interface{})
	assert.Equal(t, ">seq1\nMKT", alignment["alignment"])

	assert.Equal(t, []interface{}{map[string]interface{}{
		"id": "B", "smiles": "CCO", "predict_affinity": true,
	}}, doc["ligands"])
	assert.EqualValues(t, 1, doc["recycling_steps"])
	assert.EqualValues(t, 20, doc["sampling_steps"])
	assert.EqualValues(t, 2, doc["diffusion_samples"])
	assert.EqualValues(t, 1.5, doc["step_scale"])
	assert.Equal(t, true, doc["without_potentials"])
}

func TestLigandsOmittedWhenEmpty(t *testing.T) {
	b := testBuilder(t)
	def := &definition.Definition{TargetID: "t", PolymerID: "A", Sequence: "MKT"}
	p, _ := b.Build(def, DefaultParams())
	assert.Empty(t, p.Ligands)
	doc := decode(t, p)
	_, present := doc["ligands"]
	assert.False(t, present)

	p = New(Polymer{ID: "A"}, []Ligand{}, DefaultParams())
	assert.Nil(t, p.Ligands)
}

func TestBuildDoesNotMutateDefinition(t *testing.T) {
	b := testBuilder(t)
	def := &definition.Definition{
		TargetID:  "t",
		PolymerID: "A",
		Sequence:  "MKT",
		Ligands:   []definition.Ligand{{ID: "L1", SMILES: "CCO"}},
	}
	p, _ := b.Build(def, DefaultParams())
	p.Ligands[0].SMILES = "changed"
	p.Polymers[0].Sequence = "changed"
	assert.Equal(t, "CCO", def.Ligands[0].SMILES)
	assert.Equal(t, "MKT", def.Sequence)
}

func TestParamsCopiedVerbatim(t *testing.T) {
	p := New(Polymer{ID: "A"}, nil, Params{SamplingSteps: -5, StepScale: 99})
	assert.Equal(t, -5, p.SamplingSteps)
	assert.Equal(t, 99.0, p.StepScale)
}
