package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"legato/internal/player"

	"github.com/spf13/afero"
)

// File stores the state as a JSON document named after the storage key.
type File struct {
	fs   afero.Afero
	path string
}

// NewFile creates a file storage rooted at dir on fs.
func NewFile(fs afero.Fs, dir, key string) *File {
	return &File{
		fs:   afero.Afero{Fs: fs},
		path: filepath.Join(dir, fileName(key)),
	}
}

// Path returns the file the state is written to.
func (f *File) Path() string {
	return f.path
}

// Load reads the state file. A missing file is not an error.
func (f *File) Load() (*player.State, error) {
	data, err := f.fs.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read player state: %w", err)
	}

	var s player.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode player state %s: %w", f.path, err)
	}
	return &s, nil
}

// Save writes the state through a temporary file so a crash never leaves a
// half-written document behind.
func (f *File) Save(s player.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode player state: %w", err)
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := f.fs.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write player state: %w", err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace player state: %w", err)
	}
	return nil
}
