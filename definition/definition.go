// Package definition loads per-target molecule definition files.
//
// A definition file is a YAML document with an ordered sequences list whose
// entries are tagged protein or ligand:
//
//	version: 1
//	sequences:
//	  - protein:
//	      id: A
//	      sequence: "MKTAYIAKQR..."
//	  - ligand:
//	      id: B
//	      smiles: 'CC(=O)Oc1ccccc1C(=O)O'
//	msa: ../msa/target.a3m
//
// Only the first protein entry is used.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPolymerID is used when the protein entry carries no id.
const DefaultPolymerID = "A"

var (
	// ErrNoProtein means the file has no protein entry.
	ErrNoProtein = errors.New("no protein entry")
	// ErrEmptySequence means the first protein entry has no residues.
	ErrEmptySequence = errors.New("protein sequence is empty")
)

// MSAKind says how alignment data is given for a target.
type MSAKind int

const (
	MSANone MSAKind = iota
	MSAInline
	MSAFile
)

func (k MSAKind) String() string {
	switch k {
	case MSAInline:
		return "inline"
	case MSAFile:
		return "file"
	default:
		return "none"
	}
}

// MSAHint ...
type MSAHint struct {
	Kind   MSAKind
	Inline map[string]interface{}
	Path   string
}

// Ligand a ligand entry that has SMILES.
type Ligand struct {
	ID     string
	SMILES string
}

// Definition is the normalized form of one definition file. It is not
// modified after Load returns.
type Definition struct {
	Path      string
	TargetID  string
	PolymerID string
	Sequence  string
	MSA       MSAHint
	Ligands   []Ligand
}

// Warning is a problem that degrades a definition without discarding it.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// ParseError names the definition file that could not be used.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("definition %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type document struct {
	ID        string    `yaml:"id"`
	Sequences []entry   `yaml:"sequences"`
	MSA       yaml.Node `yaml:"msa"`
}

type entry struct {
	Protein *proteinEntry `yaml:"protein"`
	Ligand  *ligandEntry  `yaml:"ligand"`
}

type proteinEntry struct {
	ID       yaml.Node `yaml:"id"`
	Sequence string    `yaml:"sequence"`
	MSA      yaml.Node `yaml:"msa"`
}

type ligandEntry struct {
	ID     yaml.Node `yaml:"id"`
	SMILES string    `yaml:"smiles"`
}

// Load parses the definition file at path.
func Load(path string) (*Definition, []Warning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &ParseError{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse is Load for data already read from path. path is used for the
// target id, relative msa references and messages.
func Parse(path string, data []byte) (*Definition, []Warning, error) {
	doc := &document{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(doc); err != nil {
		return nil, nil, &ParseError{Path: path, Err: fmt.Errorf("yaml: %w", err)}
	}
	var warnings []Warning
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, Warning{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	var protein *proteinEntry
	var ligands []Ligand
	for i, e := range doc.Sequences {
		switch {
		case e.Protein != nil:
			if protein == nil {
				protein = e.Protein
			} else {
				warn("sequence entry #%d: extra protein ignored", i+1)
			}
		case e.Ligand != nil:
			smiles := strings.TrimSpace(e.Ligand.SMILES)
			if smiles == "" {
				warn("ligand entry #%d has no smiles, skipping", i+1)
				continue
			}
			id := scalarID(&e.Ligand.ID)
			if id == "" {
				id = fmt.Sprintf("L%d", len(ligands)+1)
			}
			ligands = append(ligands, Ligand{ID: id, SMILES: smiles})
		default:
			warn("sequence entry #%d is neither protein nor ligand", i+1)
		}
	}
	if protein == nil {
		return nil, warnings, &ParseError{Path: path, Err: ErrNoProtein}
	}
	sequence := strings.Join(strings.Fields(protein.Sequence), "")
	if sequence == "" {
		return nil, warnings, &ParseError{Path: path, Err: ErrEmptySequence}
	}

	def := &Definition{
		Path:      path,
		TargetID:  strings.TrimSpace(doc.ID),
		PolymerID: scalarID(&protein.ID),
		Sequence:  sequence,
		Ligands:   ligands,
	}
	if def.TargetID == "" {
		def.TargetID = Stem(path)
	}
	if def.PolymerID == "" {
		def.PolymerID = DefaultPolymerID
	}
	msaNode := &doc.MSA
	if isAbsent(msaNode) {
		msaNode = &protein.MSA
	}
	hint, err := parseMSA(msaNode, filepath.Dir(path))
	if err != nil {
		warn("msa: %v, ignoring", err)
	}
	def.MSA = hint
	return def, warnings, nil
}

func parseMSA(n *yaml.Node, dir string) (MSAHint, error) {
	if isAbsent(n) {
		return MSAHint{}, nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		ref := strings.TrimSpace(n.Value)
		if ref == "" || ref == "empty" {
			return MSAHint{}, nil
		}
		return MSAHint{Kind: MSAFile, Path: resolvePath(ref, dir)}, nil
	case yaml.MappingNode:
		inline := make(map[string]interface{})
		if err := n.Decode(&inline); err != nil {
			return MSAHint{}, err
		}
		return MSAHint{Kind: MSAInline, Inline: inline}, nil
	default:
		return MSAHint{}, fmt.Errorf("unsupported value at line %d", n.Line)
	}
}

// resolvePath prefers a path next to the definition file and falls back
// to the reference as written.
func resolvePath(ref, dir string) string {
	if filepath.IsAbs(ref) || dir == "" {
		return ref
	}
	local := filepath.Join(dir, ref)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	return ref
}

func isAbsent(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// scalarID accepts both "id: A" and "id: [A, B]".
func scalarID(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return ""
		}
		return strings.TrimSpace(n.Value)
	case yaml.SequenceNode:
		if len(n.Content) > 0 {
			return scalarID(n.Content[0])
		}
	}
	return ""
}

// Stem is the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Discover lists definition files in dir sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
