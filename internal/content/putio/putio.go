// Package putio serves product content from a folder tree on put.io.
package putio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/putdotio/go-putio"
	"golang.org/x/oauth2"

	"github.com/italolelis/bundle_downloader/internal/content"
	"github.com/italolelis/bundle_downloader/internal/logctx"
)

// Store maps content keys to files beneath a put.io folder. Every segment of a key is looked up
// by name among the children of its parent folder.
type Store struct {
	putioClient *putio.Client
	httpClient  *http.Client
	rootID      int64
}

var _ content.Store = (*Store)(nil)

// New creates a store authenticated with an OAuth token, rooted at the folder rootID
// (0 is the account root).
func New(token string, rootID int64) *Store {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	oauthClient := oauth2.NewClient(context.Background(), tokenSource)

	return &Store{
		putioClient: putio.NewClient(oauthClient),
		httpClient:  http.DefaultClient,
		rootID:      rootID,
	}
}

// Authenticate checks the token by fetching the account info.
func (s *Store) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	user, err := s.putioClient.Account.Info(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get account info", "err", err)

		return fmt.Errorf("failed to get account info: %w", err)
	}

	logger.InfoContext(ctx, "authenticated with Put.io", "user", user.Username)

	return nil
}

func (s *Store) Stat(ctx context.Context, key string) (content.Entry, error) {
	clean, err := content.CleanKey(key)
	if err != nil {
		return content.Entry{}, err
	}

	f, err := s.lookup(ctx, clean)
	if err != nil {
		return content.Entry{}, err
	}

	return toEntry(clean, f), nil
}

func (s *Store) ReadDir(ctx context.Context, dir string) ([]content.Entry, error) {
	clean, err := content.CleanKey(dir)
	if err != nil {
		return nil, err
	}

	f, err := s.lookup(ctx, clean)
	if err != nil {
		return nil, err
	}

	if !f.IsDir() {
		return nil, fmt.Errorf("%s is not a folder", clean)
	}

	children, _, err := s.putioClient.Files.List(ctx, f.ID)
	if err != nil {
		return nil, wrapErr("list files", clean, err)
	}

	entries := make([]content.Entry, 0, len(children))

	for _, c := range children {
		key := c.Name
		if clean != "" {
			key = clean + "/" + c.Name
		}

		entries = append(entries, toEntry(key, c))
	}

	return entries, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	logger := logctx.LoggerFromContext(ctx)

	clean, err := content.CleanKey(key)
	if err != nil {
		return nil, err
	}

	f, err := s.lookup(ctx, clean)
	if err != nil {
		return nil, err
	}

	if f.IsDir() {
		return nil, fmt.Errorf("%s is a folder", clean)
	}

	url, err := s.putioClient.Files.URL(ctx, f.ID, false)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get file download url", "file_id", f.ID, "err", err)

		return nil, wrapErr("get download url", clean, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()

		return nil, fmt.Errorf("open %s: %w", clean, content.ErrNotExist)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()

		return nil, fmt.Errorf("failed to get file: unexpected status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// lookup walks the key from the root folder, one List call per segment.
func (s *Store) lookup(ctx context.Context, key string) (putio.File, error) {
	current := putio.File{ID: s.rootID, ContentType: "application/x-directory"}
	if key == "" {
		return current, nil
	}

	for _, seg := range strings.Split(key, "/") {
		if !current.IsDir() {
			return putio.File{}, fmt.Errorf("stat %s: %w", key, content.ErrNotExist)
		}

		children, _, err := s.putioClient.Files.List(ctx, current.ID)
		if err != nil {
			return putio.File{}, wrapErr("list files", key, err)
		}

		found := false

		for _, c := range children {
			if c.Name == seg {
				current = c
				found = true

				break
			}
		}

		if !found {
			return putio.File{}, fmt.Errorf("stat %s: %w", key, content.ErrNotExist)
		}
	}

	return current, nil
}

func toEntry(key string, f putio.File) content.Entry {
	return content.Entry{
		Key:   key,
		Name:  path.Base(key),
		Size:  f.Size,
		IsDir: f.IsDir(),
	}
}

func wrapErr(op, key string, err error) error {
	var errResp *putio.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", op, key, content.ErrNotExist)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
