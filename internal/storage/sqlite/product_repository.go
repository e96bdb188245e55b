package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/storage"
)

type ProductRepository struct {
	db *sql.DB
}

var _ storage.ProductReader = (*ProductRepository)(nil)

func NewProductRepository(dbConn *sql.DB) *ProductRepository {
	return &ProductRepository{db: dbConn}
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var p catalog.Product

	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, category, folder, requires_payment FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Category, &p.Folder, &p.RequiresPayment)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Product{}, storage.ErrProductNotFound
	}

	if err != nil {
		return catalog.Product{}, &catalog.StoreError{Store: "products", Op: "get_product", Err: err}
	}

	files, err := r.manifests(ctx, []int64{p.ID})
	if err != nil {
		return catalog.Product{}, &catalog.StoreError{Store: "products", Op: "get_product", Err: err}
	}

	p.Files = files[p.ID]

	return p, nil
}

func (r *ProductRepository) ListProductsByCategory(ctx context.Context, names []string) ([]catalog.Product, error) {
	lowered := make([]any, 0, len(names))

	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			lowered = append(lowered, strings.ToLower(n))
		}
	}

	if len(lowered) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, category, folder, requires_payment
		FROM products
		WHERE lower(trim(category)) IN (`+placeholders(len(lowered))+`)
		ORDER BY id`, lowered...)
	if err != nil {
		return nil, &catalog.StoreError{Store: "products", Op: "list_by_category", Err: err}
	}
	defer rows.Close()

	var (
		products []catalog.Product
		ids      []int64
	)

	for rows.Next() {
		var p catalog.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Category, &p.Folder, &p.RequiresPayment); err != nil {
			return nil, &catalog.StoreError{Store: "products", Op: "list_by_category", Err: err}
		}

		products = append(products, p)
		ids = append(ids, p.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, &catalog.StoreError{Store: "products", Op: "list_by_category", Err: err}
	}

	files, err := r.manifests(ctx, ids)
	if err != nil {
		return nil, &catalog.StoreError{Store: "products", Op: "list_by_category", Err: err}
	}

	for i := range products {
		products[i].Files = files[products[i].ID]
	}

	return products, nil
}

func (r *ProductRepository) manifests(ctx context.Context, ids []int64) (map[int64][]catalog.ManifestEntry, error) {
	out := make(map[int64][]catalog.ManifestEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, name, path, size
		FROM product_files
		WHERE product_id IN (`+placeholders(len(ids))+`)
		ORDER BY product_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			e  catalog.ManifestEntry
		)

		if err := rows.Scan(&id, &e.Name, &e.Path, &e.Size); err != nil {
			return nil, err
		}

		out[id] = append(out[id], e)
	}

	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
