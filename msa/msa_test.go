package msa

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/foldy-bench/definition"
)

const seq40 = "MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQAPILSRV"

func newResolver(t *testing.T, fallback string) *Resolver {
	r, err := NewResolver(fallback, 0, nil)
	require.NoError(t, err)
	return r
}

func TestSynthesizedWhenNothingElse(t *testing.T) {
	require.Len(t, seq40, 40)
	r := newResolver(t, "")
	p, src := r.Resolve(definition.MSAHint{}, seq40)
	assert.Equal(t, SourceSynthesized, src)
	assert.Equal(t, ">seq1\n"+seq40, p[DefaultDatabase]["a3m"].Alignment)
	assert.Equal(t, "a3m", p[DefaultDatabase]["a3m"].Format)
}

func TestInlinePassThrough(t *testing.T) {
	r := newResolver(t, "")
	inline := map[string]interface{}{
		"colabfold": map[string]interface{}{
			"a3m": map[string]interface{}{"alignment": ">q\nMKT", "format": "a3m"},
		},
	}
	p, src := r.Resolve(definition.MSAHint{Kind: definition.MSAInline, Inline: inline}, "MKT")
	assert.Equal(t, SourceInline, src)
	assert.Equal(t, Payload{"colabfold": {"a3m": {Alignment: ">q\nMKT", Format: "a3m"}}}, p)
}

func TestInlineFlatShape(t *testing.T) {
	r := newResolver(t, "")
	inline := map[string]interface{}{
		"uniref90": map[string]interface{}{"alignment": ">q\nMKT", "format": "sto"},
	}
	p, src := r.Resolve(definition.MSAHint{Kind: definition.MSAInline, Inline: inline}, "MKT")
	assert.Equal(t, SourceInline, src)
	assert.Equal(t, Payload{"uniref90": {"sto": {Alignment: ">q\nMKT", Format: "sto"}}}, p)
}

func TestMalformedInlineFallsThrough(t *testing.T) {
	r := newResolver(t, "")
	for name, inline := range map[string]map[string]interface{}{
		"empty":        {},
		"scalar value": {"uniref90": "x"},
		"no alignment": {"uniref90": map[string]interface{}{"a3m": map[string]interface{}{"format": "a3m"}}},
		"blank":        {"uniref90": map[string]interface{}{"alignment": ""}},
	} {
		t.Run(name, func(t *testing.T) {
			p, src := r.Resolve(definition.MSAHint{Kind: definition.MSAInline, Inline: inline}, "MKT")
			assert.Equal(t, SourceSynthesized, src)
			assert.True(t, nonEmpty(p))
		})
	}
}

func TestFileReferenceBeatsFallback(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "uniref.a3m")
	target := filepath.Join(dir, "target.a3m")
	require.NoError(t, os.WriteFile(fallback, []byte(">global\nAAAA\n"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte(">target\nMKT\n"), 0o644))

	r := newResolver(t, fallback)

	p, src := r.Resolve(definition.MSAHint{Kind: definition.MSAFile, Path: target}, "MKT")
	assert.Equal(t, SourceFile, src)
	assert.Equal(t, ">target\nMKT\n", p[DefaultDatabase]["a3m"].Alignment)

	p, src = r.Resolve(definition.MSAHint{Kind: definition.MSAFile, Path: filepath.Join(dir, "missing.a3m")}, "MKT")
	assert.Equal(t, SourceFallback, src)
	assert.Equal(t, ">global\nAAAA\n", p[DefaultDatabase]["a3m"].Alignment)

	p, src = r.Resolve(definition.MSAHint{}, "MKT")
	assert.Equal(t, SourceFallback, src)
	p[DefaultDatabase]["a3m"] = Alignment{}
	again, _ := r.Resolve(definition.MSAHint{}, "MKT")
	assert.True(t, nonEmpty(again))
}

func TestFileReferenceCached(t *testing.T) {
	target := filepath.Join(t.TempDir(), "t.a3m")
	require.NoError(t, os.WriteFile(target, []byte(">t\nMKT"), 0o644))
	r := newResolver(t, "")
	hint := definition.MSAHint{Kind: definition.MSAFile, Path: target}
	first, _ := r.Resolve(hint, "MKT")
	require.NoError(t, os.Remove(target))
	second, src := r.Resolve(hint, "MKT")
	assert.Equal(t, SourceFile, src)
	assert.Equal(t, first, second)
}

func TestEmptyFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	fallback := filepath.Join(dir, "uniref.a3m")
	target := filepath.Join(dir, "t.a3m")
	require.NoError(t, os.WriteFile(fallback, []byte("\n"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte(""), 0o644))
	r := newResolver(t, fallback)
	p, src := r.Resolve(definition.MSAHint{Kind: definition.MSAFile, Path: target}, "MKT")
	assert.Equal(t, SourceSynthesized, src)
	assert.Equal(t, ">seq1\nMKT", p[DefaultDatabase]["a3m"].Alignment)
}

func TestResolveIsTotal(t *testing.T) {
	r := newResolver(t, filepath.Join(t.TempDir(), "absent.a3m"))
	hints := []definition.MSAHint{
		{},
		{Kind: definition.MSAInline},
		{Kind: definition.MSAInline, Inline: map[string]interface{}{"x": 1}},
		{Kind: definition.MSAFile},
		{Kind: definition.MSAFile, Path: "/definitely/not/here.a3m"},
		{Kind: definition.MSAKind(42)},
	}
	for _, h := range hints {
		for _, s := range []string{"M", seq40, strings.Repeat("A", 1000)} {
			p, _ := r.Resolve(h, s)
			assert.True(t, nonEmpty(p), "hint=%v", h.Kind)
		}
	}
}

func TestDefaultFallbackPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "msa", "uniref.a3m"), DefaultFallbackPath("data/yamls/"))
}

func nonEmpty(p Payload) bool {
	if len(p) == 0 {
		return false
	}
	for _, formats := range p {
		if len(formats) == 0 {
			return false
		}
		for _, a := range formats {
			if a.Alignment == "" {
				return false
			}
		}
	}
	return true
}
