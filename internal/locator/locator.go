// Package locator resolves products and categories to the content files that belong in their
// download bundle.
package locator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/content"
	"github.com/italolelis/bundle_downloader/internal/logctx"
)

// File is one resolved archive member.
type File struct {
	Key       string // Content store key
	EntryName string // Name inside the archive
	Size      int64
}

type Config struct {
	// FolderPrefix holds one folder per product id for products without an explicit folder.
	FolderPrefix string
	// MaxParallel bounds how many products of a category are resolved at once.
	MaxParallel int
}

type Locator struct {
	store content.Store
	table *catalog.Table
	cfg   Config
}

func New(store content.Store, table *catalog.Table, cfg Config) *Locator {
	if cfg.FolderPrefix == "" {
		cfg.FolderPrefix = catalog.DefaultFolderPrefix
	}

	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}

	return &Locator{store: store, table: table, cfg: cfg}
}

// ResolveProductFiles lists the files of a product. Manifest entries that do not exist are
// skipped; a product without a manifest contributes every regular file under its folder.
// An empty result is an *catalog.EmptyResultError.
func (l *Locator) ResolveProductFiles(ctx context.Context, product catalog.Product) ([]File, error) {
	ctx, logger := logctx.With(ctx, "product_id", product.ID)

	var (
		files []File
		err   error
	)

	if product.HasManifest() {
		files, err = l.resolveManifest(ctx, product)
	} else {
		files, err = l.walkFolder(ctx, product.FolderKey(l.cfg.FolderPrefix))
	}

	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		logger.DebugContext(ctx, "product resolved to no files", "manifest", product.HasManifest())

		return nil, &catalog.EmptyResultError{Kind: "product", ID: strconv.FormatInt(product.ID, 10)}
	}

	logger.DebugContext(ctx, "product files resolved", "files", len(files))

	return files, nil
}

func (l *Locator) resolveManifest(ctx context.Context, product catalog.Product) ([]File, error) {
	logger := logctx.LoggerFromContext(ctx)

	files := make([]File, 0, len(product.Files))
	names := newNameSet()

	for i, entry := range product.Files {
		key, err := content.Join("", entry.Path)
		if err != nil || key == "" {
			logger.WarnContext(ctx, "rejecting manifest entry outside content root", "index", i)

			continue
		}

		info, err := l.store.Stat(ctx, key)

		switch {
		case err == nil:
		case content.IsNotExist(err):
			logger.DebugContext(ctx, "skipping missing manifest entry", "index", i)

			continue
		case errors.Is(err, content.ErrOutsideRoot):
			logger.WarnContext(ctx, "rejecting manifest entry outside content root", "index", i)

			continue
		default:
			return nil, &catalog.StoreError{Store: "content", Op: "stat", Err: err}
		}

		if info.IsDir {
			logger.DebugContext(ctx, "skipping manifest entry pointing at a folder", "index", i)

			continue
		}

		size := info.Size
		if size == 0 {
			size = entry.SizeBytes()
		}

		files = append(files, File{
			Key:       key,
			EntryName: names.claim(manifestEntryName(entry, key)),
			Size:      size,
		})
	}

	return files, nil
}

// walkFolder enumerates every regular file beneath folder. Directories are visited through an
// explicit work list so deep trees cannot exhaust the stack.
func (l *Locator) walkFolder(ctx context.Context, folder string) ([]File, error) {
	logger := logctx.LoggerFromContext(ctx)

	root, err := content.CleanKey(folder)
	if err != nil || root == "" {
		logger.WarnContext(ctx, "rejecting product folder outside content root")

		return nil, nil
	}

	var (
		files []File
		dirs  = []string{root}
	)

	for next := 0; next < len(dirs); next++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := dirs[next]

		entries, err := l.store.ReadDir(ctx, dir)

		switch {
		case err == nil:
		case content.IsNotExist(err):
			// A missing product folder simply yields nothing; a sub folder may vanish mid walk.
			continue
		case errors.Is(err, content.ErrOutsideRoot):
			logger.WarnContext(ctx, "rejecting folder outside content root")

			continue
		default:
			return nil, &catalog.StoreError{Store: "content", Op: "read_dir", Err: err}
		}

		slices.SortFunc(entries, func(a, b content.Entry) int { return strings.Compare(a.Name, b.Name) })

		for _, e := range entries {
			key, err := content.CleanKey(e.Key)
			if err != nil || !content.Within(root, key) || key == root {
				logger.WarnContext(ctx, "rejecting entry outside product folder")

				continue
			}

			if e.IsDir {
				dirs = append(dirs, key)

				continue
			}

			files = append(files, File{
				Key:       key,
				EntryName: strings.TrimPrefix(key, root+"/"),
				Size:      e.Size,
			})
		}
	}

	return files, nil
}

// ResolveCategoryFiles resolves every product of a category concurrently. Each product's files are
// placed under a folder named after its title, and products are kept in the given order.
func (l *Locator) ResolveCategoryFiles(ctx context.Context, categoryID string, products []catalog.Product) ([]File, error) {
	ctx, logger := logctx.With(ctx, "category_id", categoryID)

	names, ok := l.table.Lookup(categoryID)
	if !ok {
		return nil, &catalog.IdentifierError{Kind: "category", Value: categoryID, Reason: "unknown category"}
	}

	var members []catalog.Product

	for _, p := range products {
		if catalog.MatchName(names, p.Category) {
			members = append(members, p)
		}
	}

	if len(members) == 0 {
		return nil, &catalog.EmptyResultError{Kind: "category", ID: categoryID}
	}

	prefixes := folderPrefixes(members)
	results := make([][]File, len(members))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.MaxParallel)

	for i, p := range members {
		g.Go(func() error {
			files, err := l.ResolveProductFiles(gctx, p)

			var empty *catalog.EmptyResultError
			if errors.As(err, &empty) {
				return nil
			}

			if err != nil {
				return fmt.Errorf("resolve product %d: %w", p.ID, err)
			}

			for j := range files {
				files[j].EntryName = prefixes[i] + "/" + files[j].EntryName
			}

			results[i] = files

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []File
	for _, r := range results {
		files = append(files, r...)
	}

	if len(files) == 0 {
		return nil, &catalog.EmptyResultError{Kind: "category", ID: categoryID}
	}

	logger.DebugContext(ctx, "category files resolved", "products", len(members), "files", len(files))

	return files, nil
}

// folderPrefixes names one archive folder per product. Titles that sanitize to the same name get
// the product id appended.
func folderPrefixes(products []catalog.Product) []string {
	prefixes := make([]string, len(products))
	used := make(map[string]bool, len(products))

	for i, p := range products {
		prefix := catalog.SanitizeName(p.Title)
		if prefix == "" {
			prefix = "product_" + strconv.FormatInt(p.ID, 10)
		}

		if used[strings.ToLower(prefix)] {
			prefix = prefix + "_" + strconv.FormatInt(p.ID, 10)
		}

		base := prefix
		for n := 2; used[strings.ToLower(prefix)]; n++ {
			prefix = fmt.Sprintf("%s_%d", base, n)
		}

		used[strings.ToLower(prefix)] = true
		prefixes[i] = prefix
	}

	return prefixes
}

// manifestEntryName prefers the declared name, borrowing the extension of the stored file when the
// name has none. Separators are replaced so a name cannot introduce folders.
func manifestEntryName(entry catalog.ManifestEntry, key string) string {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return path.Base(key)
	}

	name = strings.NewReplacer("/", "-", "\\", "-").Replace(name)
	if name == "." || name == ".." {
		return path.Base(key)
	}

	if path.Ext(name) == "" {
		name += path.Ext(key)
	}

	return name
}

// nameSet hands out unique entry names: a repeated "a.png" becomes "a (2).png".
type nameSet map[string]bool

func newNameSet() nameSet { return nameSet{} }

func (s nameSet) claim(name string) string {
	candidate := name

	for n := 2; s[strings.ToLower(candidate)]; n++ {
		ext := path.Ext(name)
		candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
	}

	s[strings.ToLower(candidate)] = true

	return candidate
}
