// Package contenttest provides an in-memory content.Store for tests.
package contenttest

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/italolelis/bundle_downloader/internal/content"
)

// MemStore holds files in memory. Directories are implied by file keys. Keys registered with Fail
// return that error from Stat, ReadDir and Open. Calls counts every store call.
type MemStore struct {
	mu      sync.RWMutex
	files   map[string][]byte
	failing map[string]error

	Calls atomic.Int64
}

var _ content.Store = (*MemStore)(nil)

// NewMemStore creates a store from key → content.
func NewMemStore(files map[string]string) *MemStore {
	m := &MemStore{files: make(map[string][]byte, len(files)), failing: map[string]error{}}
	for k, v := range files {
		m.Put(k, v)
	}

	return m
}

// Put adds or replaces a file.
func (m *MemStore) Put(key, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[strings.Trim(key, "/")] = []byte(data)
}

// Remove deletes a file.
func (m *MemStore) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, strings.Trim(key, "/"))
}

// Fail makes every call touching key return err.
func (m *MemStore) Fail(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failing[strings.Trim(key, "/")] = err
}

func (m *MemStore) Stat(_ context.Context, key string) (content.Entry, error) {
	m.Calls.Add(1)

	clean, err := content.CleanKey(key)
	if err != nil {
		return content.Entry{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failing[clean]; err != nil {
		return content.Entry{}, err
	}

	if data, ok := m.files[clean]; ok {
		return content.Entry{Key: clean, Name: path.Base(clean), Size: int64(len(data))}, nil
	}

	if m.isDir(clean) {
		return content.Entry{Key: clean, Name: path.Base(clean), IsDir: true}, nil
	}

	return content.Entry{}, fmt.Errorf("stat %s: %w", clean, content.ErrNotExist)
}

func (m *MemStore) ReadDir(_ context.Context, dir string) ([]content.Entry, error) {
	m.Calls.Add(1)

	clean, err := content.CleanKey(dir)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failing[clean]; err != nil {
		return nil, err
	}

	if !m.isDir(clean) {
		return nil, fmt.Errorf("read dir %s: %w", clean, content.ErrNotExist)
	}

	prefix := ""
	if clean != "" {
		prefix = clean + "/"
	}

	children := map[string]content.Entry{}

	for k, data := range m.files {
		if !strings.HasPrefix(k, prefix) {
			continue
		}

		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			children[name] = content.Entry{Key: prefix + name, Name: name, IsDir: true}

			continue
		}

		children[rest] = content.Entry{Key: k, Name: rest, Size: int64(len(data))}
	}

	entries := make([]content.Entry, 0, len(children))
	for _, e := range children {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}

func (m *MemStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.Calls.Add(1)

	clean, err := content.CleanKey(key)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failing[clean]; err != nil {
		return nil, err
	}

	data, ok := m.files[clean]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", clean, content.ErrNotExist)
	}

	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (m *MemStore) isDir(dir string) bool {
	if dir == "" {
		return true
	}

	for k := range m.files {
		if strings.HasPrefix(k, dir+"/") {
			return true
		}
	}

	return false
}
