package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/italolelis/bundle_downloader/internal/content"
)

// Store serves content from a directory on the local file system. Symlinks are followed only
// while their target stays inside the root, and ReadDir never lists links to directories.
type Store struct {
	root string
}

var _ content.Store = (*Store)(nil)

// New returns a store rooted at dir. The directory must exist.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content root: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content root: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to stat content root: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("content root %s is not a directory", dir)
	}

	return &Store{root: resolved}, nil
}

func (s *Store) Stat(ctx context.Context, key string) (content.Entry, error) {
	if err := ctx.Err(); err != nil {
		return content.Entry{}, err
	}

	clean, full, err := s.resolve(key)
	if err != nil {
		return content.Entry{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return content.Entry{}, err
	}

	return toEntry(clean, info), nil
}

func (s *Store) ReadDir(ctx context.Context, dir string) ([]content.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, full, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}

	entries := make([]content.Entry, 0, len(dirEntries))

	for _, de := range dirEntries {
		key := de.Name()
		if clean != "" {
			key = clean + "/" + de.Name()
		}

		if de.Type()&fs.ModeSymlink != 0 {
			// Dangling links and links leaving the root are invisible. Links to directories are
			// not listed either, a link to an ancestor would make the tree infinite.
			_, target, err := s.resolve(key)
			if err != nil {
				continue
			}

			info, err := os.Stat(target)
			if err != nil || info.IsDir() {
				continue
			}

			entries = append(entries, toEntry(key, info))

			continue
		}

		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return nil, err
		}

		entries = append(entries, toEntry(key, info))
	}

	return entries, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, err
	}

	if info.IsDir() {
		f.Close()

		return nil, fmt.Errorf("%s is a directory", key)
	}

	return f, nil
}

// resolve maps a key to an absolute path, following symlinks, and checks the result stays in the
// root. Missing keys report fs.ErrNotExist.
func (s *Store) resolve(key string) (string, string, error) {
	clean, err := content.CleanKey(key)
	if err != nil {
		return "", "", err
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", "", err
	}

	if resolved != s.root && !strings.HasPrefix(resolved, s.root+string(filepath.Separator)) {
		return "", "", content.ErrOutsideRoot
	}

	return clean, resolved, nil
}

func toEntry(key string, info fs.FileInfo) content.Entry {
	return content.Entry{
		Key:     key,
		Name:    filepath.Base(filepath.FromSlash(key)),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
}
