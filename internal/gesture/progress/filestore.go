package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/banshee-data/gesture.arbiter/internal/fsutil"
	"github.com/banshee-data/gesture.arbiter/internal/security"
)

// DefaultFileName is the state file written inside the state directory.
const DefaultFileName = "train_data.json"

// FileStore keeps State as a JSON file confined to a directory.
type FileStore struct {
	fs   fsutil.FileSystem
	dir  string
	path string
}

// NewFileStore returns a store writing name inside dir. An empty name uses
// DefaultFileName. The resolved path must stay inside dir.
func NewFileStore(fsys fsutil.FileSystem, dir, name string) (*FileStore, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if name == "" {
		name = DefaultFileName
	}
	path, err := security.ResolveWithin(dir, name)
	if err != nil {
		return nil, fmt.Errorf("progress file: %w", err)
	}
	return &FileStore{fs: fsys, dir: dir, path: path}, nil
}

// Path returns the state file location.
func (f *FileStore) Path() string { return f.path }

// Load reads the state file. A missing file yields ErrNotFound.
func (f *FileStore) Load(ctx context.Context) (*State, error) {
	data, err := f.fs.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	s := &State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	s.normalize()
	return s, nil
}

// Save replaces the state file atomically, creating the directory if
// needed.
func (f *FileStore) Save(ctx context.Context, s *State) error {
	if err := f.fs.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", f.dir, err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.fs, f.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}
