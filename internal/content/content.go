// Package content abstracts the place product files live: a local directory, an S3 bucket
// prefix, or a put.io folder. Keys are slash separated and relative to the store root.
package content

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"
)

// ErrNotExist is returned (possibly wrapped) when a key does not exist in the store.
var ErrNotExist = fs.ErrNotExist

// ErrOutsideRoot is returned for keys that would escape the store root.
var ErrOutsideRoot = errors.New("key escapes content root")

// Entry describes a file or directory in a store.
type Entry struct {
	Key     string // Full key relative to the store root
	Name    string // Last path element
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// Store is the existence check and listing primitive scoped to a declared root.
type Store interface {
	// Stat describes a single key.
	Stat(ctx context.Context, key string) (Entry, error)
	// ReadDir lists the direct children of a directory key. The empty key is the root.
	ReadDir(ctx context.Context, dir string) ([]Entry, error)
	// Open returns the content of a file key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CleanKey canonicalizes a key. Backslashes are treated as separators, leading slashes are
// dropped and dot segments are resolved. Keys that climb above the root are rejected.
func CleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.ReplaceAll(key, "\\", "/"), "/")
	if escapes(key) {
		return "", ErrOutsideRoot
	}

	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", nil
	}

	return cleaned, nil
}

// Join joins a directory key with a relative path and canonicalizes the result.
func Join(dir, rel string) (string, error) {
	dir, err := CleanKey(dir)
	if err != nil {
		return "", err
	}

	return CleanKey(dir + "/" + strings.TrimLeft(strings.ReplaceAll(rel, "\\", "/"), "/"))
}

// Within reports whether key equals dir or lies beneath it. Both must be clean.
func Within(dir, key string) bool {
	if dir == "" {
		return true
	}

	return key == dir || strings.HasPrefix(key, dir+"/")
}

// IsNotExist reports whether err means the key is absent.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

func escapes(key string) bool {
	depth := 0

	for _, seg := range strings.Split(key, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}

	return false
}
