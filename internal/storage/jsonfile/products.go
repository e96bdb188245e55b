package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/storage"
)

type productRecord struct {
	ID              flexID       `json:"id"`
	Title           string       `json:"title"`
	Name            string       `json:"name"`
	Category        string       `json:"category"`
	Folder          string       `json:"folder"`
	RequiresPayment *bool        `json:"requiresPayment"`
	Price           flexString   `json:"price"`
	Files           []fileRecord `json:"files"`
}

type fileRecord struct {
	Name string     `json:"name"`
	Path string     `json:"path"`
	Size flexString `json:"size"`
}

func (r productRecord) toProduct() (catalog.Product, error) {
	if !r.ID.Set {
		return catalog.Product{}, errors.New("missing id")
	}

	p := catalog.Product{
		ID:       r.ID.Value,
		Title:    strings.TrimSpace(r.Title),
		Category: strings.TrimSpace(r.Category),
		Folder:   strings.TrimSpace(r.Folder),
	}

	if p.Title == "" {
		p.Title = strings.TrimSpace(r.Name)
	}

	// Without an explicit flag only a zero price makes a product free.
	switch {
	case r.RequiresPayment != nil:
		p.RequiresPayment = *r.RequiresPayment
	case r.Price != "":
		price, err := strconv.ParseFloat(strings.TrimSpace(string(r.Price)), 64)
		p.RequiresPayment = err != nil || price > 0
	default:
		p.RequiresPayment = true
	}

	for _, f := range r.Files {
		if strings.TrimSpace(f.Path) == "" {
			continue
		}

		p.Files = append(p.Files, catalog.ManifestEntry{Name: f.Name, Path: f.Path, Size: string(f.Size)})
	}

	return p, nil
}

// ProductRepository reads products from a JSON file.
type ProductRepository struct {
	filename string
}

var _ storage.ProductReader = (*ProductRepository)(nil)

func NewProductRepository(filename string) *ProductRepository {
	return &ProductRepository{filename: filename}
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	products, err := r.load(ctx, "get_product")
	if err != nil {
		return catalog.Product{}, err
	}

	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}

	return catalog.Product{}, storage.ErrProductNotFound
}

func (r *ProductRepository) ListProductsByCategory(ctx context.Context, names []string) ([]catalog.Product, error) {
	products, err := r.load(ctx, "list_by_category")
	if err != nil {
		return nil, err
	}

	var matched []catalog.Product

	for _, p := range products {
		if catalog.MatchName(names, p.Category) {
			matched = append(matched, p)
		}
	}

	slices.SortStableFunc(matched, func(a, b catalog.Product) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})

	return matched, nil
}

func (r *ProductRepository) load(ctx context.Context, op string) ([]catalog.Product, error) {
	records, err := readRecords(r.filename, "products")
	if err != nil {
		return nil, &catalog.StoreError{Store: "products", Op: op, Err: fmt.Errorf("read catalog: %w", err)}
	}

	products := make([]catalog.Product, 0, len(records))

	for i, raw := range records {
		var rec productRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			warnSkipped(ctx, "product", i, err)

			continue
		}

		p, err := rec.toProduct()
		if err != nil {
			warnSkipped(ctx, "product", i, err)

			continue
		}

		products = append(products, p)
	}

	return products, nil
}
