package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

var _ Store = &File{}

// File keeps all namespaces in a single JSON document. Every Put rewrites
// the document through a temporary file and a rename.
type File struct {
	mu       sync.RWMutex
	filepath string
	data     map[string]map[string]string
}

func OpenFile(path string) (*File, error) {
	f := &File{
		filepath: path,
		data:     make(map[string]map[string]string),
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to read file %s", path)
	}

	if strings.TrimSpace(string(b)) == "" {
		return f, nil
	}

	if err := json.Unmarshal(b, &f.data); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal prefs from file %s", path)
	}
	if f.data == nil {
		f.data = make(map[string]map[string]string)
	}

	return f, nil
}

func (f *File) GetString(namespace, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ns, ok := f.data[namespace]
	if !ok {
		return "", ErrNotFound
	}
	v, ok := ns[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) PutString(namespace, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ns, ok := f.data[namespace]
	if !ok {
		ns = make(map[string]string)
		f.data[namespace] = ns
	}
	ns[key] = value

	return f.flush()
}

func (f *File) flush() error {
	b, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode prefs")
	}

	dir := filepath.Dir(f.filepath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create temp file in %s", dir)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return pkgerrors.Wrapf(err, "failed to sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return pkgerrors.Wrapf(err, "failed to chmod %s", tmp.Name())
	}

	return pkgerrors.Wrapf(os.Rename(tmp.Name(), f.filepath), "failed to replace %s", f.filepath)
}

func (f *File) Close() error {
	return nil
}
