package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Tally counts artifact statuses found in a directory.
type Tally struct {
	OK       int
	Errors   int
	Invalid  []string
	ByTarget map[string]*TargetTally
}

// TargetTally ...
type TargetTally struct {
	OK     int
	Errors int
}

// Total ...
func (t *Tally) Total() int {
	return t.OK + t.Errors
}

// Targets lists every target seen, sorted.
func (t *Tally) Targets() []string {
	ids := make([]string, 0, len(t.ByTarget))
	for id := range t.ByTarget {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Good lists targets with at least one ok artifact, sorted.
func (t *Tally) Good() []string {
	var ids []string
	for id, tt := range t.ByTarget {
		if tt.OK > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Summarize reads every .json file directly under dir.
func Summarize(dir string) (*Tally, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	t := &Tally{ByTarget: make(map[string]*TargetTally)}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		a, err := Read(path)
		if err != nil || (a.Status != StatusOK && a.Status != StatusError) {
			t.Invalid = append(t.Invalid, path)
			continue
		}
		tt, ok := t.ByTarget[a.TargetID]
		if !ok {
			tt = &TargetTally{}
			t.ByTarget[a.TargetID] = tt
		}
		if a.OK() {
			t.OK++
			tt.OK++
		} else {
			t.Errors++
			tt.Errors++
		}
	}
	return t, nil
}
