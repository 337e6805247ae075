package testutil

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing/fstest"
)

// MemFS is an in-memory fsutil.FileSystem over fstest.MapFS. Parent
// directories of stored files are implied.
type MemFS struct {
	mu    sync.Mutex
	files fstest.MapFS
}

// NewMemFS returns a MemFS seeded with files, keyed by path.
func NewMemFS(files map[string]string) *MemFS {
	m := &MemFS{files: fstest.MapFS{}}
	for name, body := range files {
		m.files[mapKey(name)] = &fstest.MapFile{Data: []byte(body), Mode: 0o644}
	}
	return m
}

// mapKey turns an OS path (absolute or relative) into a MapFS key.
func mapKey(name string) string {
	key := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "/")
	if key == "" {
		return "."
	}
	return key
}

func (m *MemFS) Create(name string) (io.WriteCloser, error) {
	return &memWriter{fs: m, key: mapKey(name)}, nil
}

func (m *MemFS) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files.ReadFile(mapKey(name))
}

func (m *MemFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[mapKey(name)] = &fstest.MapFile{Data: bytes.Clone(data), Mode: perm}
	return nil
}

func (m *MemFS) Stat(name string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files.Stat(mapKey(name))
}

func (m *MemFS) MkdirAll(path string, perm os.FileMode) error {
	key := mapKey(path)
	if key == "." {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = &fstest.MapFile{Mode: fs.ModeDir | perm}
	return nil
}

// memWriter publishes its buffer on Close.
type memWriter struct {
	bytes.Buffer
	fs  *MemFS
	key string
}

func (w *memWriter) Close() error {
	return w.fs.WriteFile(w.key, w.Bytes(), 0o644)
}
