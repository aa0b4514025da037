// Package snapshot persists a single JSON document to a file, atomically.
// The registry and quota stores write their whole mapping through one of
// these after every mutation, so a restart loses at most the mutation whose
// save failed.
package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Backend loads and saves one JSON-serializable state value. Load reports
// (false, nil) when no snapshot exists yet so first boot starts empty.
type Backend interface {
	Load(state any) (bool, error)
	Save(state any) error
}

// File is a file-backed Backend. Save writes to a temp file in the same
// directory and renames over the target so readers never observe a partial
// write.
type File struct {
	Path string
}

func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) Load(state any) (bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, state); err != nil {
		return false, err
	}
	return true, nil
}

func (f *File) Save(state any) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}

// Discard is a Backend that keeps nothing. Used by tests and by stores whose
// durability is handled elsewhere (the Redis variants).
type Discard struct{}

func (Discard) Load(any) (bool, error) { return false, nil }
func (Discard) Save(any) error         { return nil }
