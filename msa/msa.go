// Package msa decides which alignment is sent with each prediction request.
//
// Precedence, highest first:
//
//  1. an inline mapping in the definition, when it has the expected shape
//  2. a file referenced by the definition, when it holds at least one record
//  3. the global fallback alignment, when one was configured and readable
//  4. a single-sequence alignment built from the target's own sequence
//
// Resolve never fails; every request carries a non-empty alignment.
package msa

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/thavlik/foldy-bench/a3m"
	"github.com/thavlik/foldy-bench/definition"
)

// DefaultDatabase is the database key used for file and synthesized alignments.
const DefaultDatabase = "uniref90"

// DefaultCacheSize bounds the number of referenced alignment files kept in memory.
const DefaultCacheSize = 256

// Alignment ...
type Alignment struct {
	Alignment string `json:"alignment"`
	Format    string `json:"format"`
}

// Payload maps database name to format to alignment, which is the shape
// of the service's msa field.
type Payload map[string]map[string]Alignment

// Source says which tier produced a payload.
type Source string

const (
	SourceInline      Source = "inline"
	SourceFile        Source = "file"
	SourceFallback    Source = "fallback"
	SourceSynthesized Source = "synthesized"
)

// FromText wraps alignment text under the default database.
func FromText(text string) Payload {
	return Payload{
		DefaultDatabase: {
			a3m.Format: {Alignment: text, Format: a3m.Format},
		},
	}
}

// Synthesize builds the single-sequence payload for sequence.
func Synthesize(sequence string) Payload {
	return FromText(a3m.SingleSequence(sequence))
}

// Clone returns a deep copy so payloads handed to requests never share
// maps with the resolver.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for db, formats := range p {
		f := make(map[string]Alignment, len(formats))
		for k, v := range formats {
			f[k] = v
		}
		out[db] = f
	}
	return out
}

// Resolver ...
type Resolver struct {
	fallback     Payload
	fallbackPath string
	cache        *lru.Cache[string, string]
	log          *slog.Logger
}

// NewResolver loads the global fallback alignment from fallbackPath. An
// empty path or a missing file disables the fallback tier.
func NewResolver(fallbackPath string, cacheSize int, log *slog.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if log == nil {
		log = slog.Default()
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("msa cache: %w", err)
	}
	r := &Resolver{cache: cache, log: log}
	if fallbackPath == "" {
		return r, nil
	}
	text, err := r.readAlignment(fallbackPath)
	switch {
	case os.IsNotExist(err):
		log.Info("No global MSA found, using single-sequence alignments when needed", "path", fallbackPath)
	case err != nil:
		log.Warn("Ignoring unusable global MSA", "path", fallbackPath, "error", err)
	default:
		log.Info("Using global MSA file", "path", fallbackPath)
		r.fallback = FromText(text)
		r.fallbackPath = fallbackPath
	}
	return r, nil
}

// DefaultFallbackPath is where a shared alignment is looked for relative
// to a definitions directory.
func DefaultFallbackPath(definitionsDir string) string {
	return filepath.Join(filepath.Dir(filepath.Clean(definitionsDir)), "msa", "uniref.a3m")
}

// Resolve returns the payload for a target and the tier that produced it.
func (r *Resolver) Resolve(hint definition.MSAHint, sequence string) (Payload, Source) {
	switch hint.Kind {
	case definition.MSAInline:
		if p, ok := fromInline(hint.Inline); ok {
			return p, SourceInline
		}
		r.log.Warn("Inline msa has an unexpected shape, falling back")
	case definition.MSAFile:
		text, err := r.readAlignment(hint.Path)
		if err == nil {
			return FromText(text), SourceFile
		}
		r.log.Warn("Referenced msa unusable, falling back", "path", hint.Path, "error", err)
	}
	if r.fallback != nil {
		return r.fallback.Clone(), SourceFallback
	}
	return Synthesize(sequence), SourceSynthesized
}

func (r *Resolver) readAlignment(path string) (string, error) {
	if text, ok := r.cache.Get(path); ok {
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if !a3m.Valid(text) {
		return "", fmt.Errorf("%s: no alignment records", path)
	}
	r.cache.Add(path, text)
	return text, nil
}

// fromInline accepts {db: {format: {alignment, format}}} and the flat
// {db: {alignment, format}}. Keys are passed through as written.
func fromInline(inline map[string]interface{}) (Payload, bool) {
	if len(inline) == 0 {
		return nil, false
	}
	out := make(Payload, len(inline))
	for db, v := range inline {
		m, ok := v.(map[string]interface{})
		if !ok || len(m) == 0 {
			return nil, false
		}
		if a, ok := alignmentOf(m); ok {
			out[db] = map[string]Alignment{a.Format: a}
			continue
		}
		formats := make(map[string]Alignment, len(m))
		for format, av := range m {
			am, ok := av.(map[string]interface{})
			if !ok {
				return nil, false
			}
			a, ok := alignmentOf(am)
			if !ok {
				return nil, false
			}
			formats[format] = a
		}
		out[db] = formats
	}
	return out, true
}

func alignmentOf(m map[string]interface{}) (Alignment, bool) {
	text, ok := m["alignment"].(string)
	if !ok || text == "" {
		return Alignment{}, false
	}
	format, _ := m["format"].(string)
	if format == "" {
		format = a3m.Format
	}
	return Alignment{Alignment: text, Format: format}, true
}
