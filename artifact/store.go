package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists encoded artifacts and returns the name actually used.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// DirStore writes artifacts into a local directory and never replaces an
// existing file.
type DirStore struct {
	Dir string
}

// NewDirStore creates dir if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirStore{Dir: dir}, nil
}

// Put ...
func (s *DirStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	candidate := name
	for attempt := 0; attempt < 5; attempt++ {
		err := writeExclusive(filepath.Join(s.Dir, candidate), data)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
		candidate = withSuffix(name, uuid.New().String()[:8])
	}
	return "", fmt.Errorf("%s: no free name", name)
}

// Path ...
func (s *DirStore) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func withSuffix(name, suffix string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + suffix + ext
}
