package backend

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/trek/pkg/errors"
)

// File implements a file-based backend for CLI usage. Each trajectory
// is a directory and each node a JSON file named after its full name;
// the root node is stored as rootFile since node names cannot start
// with an underscore.
type File struct {
	dir string
}

const rootFile = "_root"

// NewFile creates a file-based backend rooted at dir. The directory is
// created if it doesn't exist.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "file backend requires a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "create storage directory")
	}
	return &File{dir: dir}, nil
}

// WriteNode upserts one node record. Writes go through a temp file and
// a rename so readers never observe a partial record.
func (f *File) WriteNode(ctx context.Context, traj string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "encode node %q", rec.FullName)
	}

	path := f.path(traj, rec.FullName)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create trajectory directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".node-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "create temp file")
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeStorage, err, "write node %q", rec.FullName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeStorage, err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(errors.ErrCodeStorage, err, "store node %q", rec.FullName)
	}
	return nil
}

// ReadNode reads one node record.
func (f *File) ReadNode(ctx context.Context, traj, fullName string) (Record, error) {
	data, err := os.ReadFile(f.path(traj, fullName))
	if os.IsNotExist(err) {
		return Record{}, errors.New(errors.ErrCodeNotFound,
			"trajectory %q has no stored node %q", traj, fullName)
	}
	if err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeStorage, err, "read node %q", fullName)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(errors.ErrCodeStorage, err, "decode node %q", fullName)
	}
	return rec, nil
}

// ListChildren returns the names of the direct children of fullName.
func (f *File) ListChildren(ctx context.Context, traj, fullName string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, traj))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list trajectory %q", traj)
	}

	names := []string{}
	for _, e := range entries {
		key, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok || key == rootFile {
			continue
		}
		if parent, hasParent := parentOf(key); hasParent && parent == fullName {
			names = append(names, lastSegment(key))
		}
	}
	return names, nil
}

// DeleteNode removes one node record.
func (f *File) DeleteNode(ctx context.Context, traj, fullName string) error {
	err := os.Remove(f.path(traj, fullName))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeStorage, err, "delete node %q", fullName)
	}
	return nil
}

// ListTrajectories returns the names of all stored trajectories.
func (f *File) ListTrajectories(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list trajectories")
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Close does nothing for the file backend.
func (f *File) Close() error { return nil }

// path converts a node key to a file path. Node names cannot contain
// path separators, so full names map directly to flat file names.
func (f *File) path(traj, fullName string) string {
	name := fullName
	if name == "" {
		name = rootFile
	}
	return filepath.Join(f.dir, traj, name+".json")
}

// Ensure File implements Backend.
var _ Backend = (*File)(nil)
