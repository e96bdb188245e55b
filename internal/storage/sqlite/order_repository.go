package sqlite

import (
	"context"
	"database/sql"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/storage"
)

type OrderRepository struct {
	db *sql.DB
}

var _ storage.OrderReader = (*OrderRepository)(nil)

func NewOrderRepository(dbConn *sql.DB) *OrderRepository {
	return &OrderRepository{db: dbConn}
}

// FindOrders matches refs against the id, order_id and session_id columns.
func (r *OrderRepository) FindOrders(ctx context.Context, refs ...string) (storage.OrderSet, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return storage.OrderSet{}, storeErr(err)
	}

	set := storage.OrderSet{Empty: total == 0}

	refs = storage.NonEmptyRefs(refs)
	if set.Empty || len(refs) == 0 {
		return set, nil
	}

	args := make([]any, 0, 3*len(refs))
	for range 3 {
		for _, ref := range refs {
			args = append(args, ref)
		}
	}

	in := placeholders(len(refs))

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, session_id
		FROM orders
		WHERE id IN (`+in+`) OR order_id IN (`+in+`) OR session_id IN (`+in+`)
		ORDER BY id`, args...)
	if err != nil {
		return storage.OrderSet{}, storeErr(err)
	}

	for rows.Next() {
		var o catalog.Order
		if err := rows.Scan(&o.ID, &o.OrderID, &o.SessionID); err != nil {
			rows.Close()

			return storage.OrderSet{}, storeErr(err)
		}

		set.Orders = append(set.Orders, o)
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return storage.OrderSet{}, storeErr(err)
	}

	for i := range set.Orders {
		items, err := r.items(ctx, set.Orders[i].ID)
		if err != nil {
			return storage.OrderSet{}, storeErr(err)
		}

		set.Orders[i].Items = items
	}

	return set, nil
}

func (r *OrderRepository) items(ctx context.Context, orderRef string) ([]catalog.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, category FROM order_items WHERE order_ref = ? ORDER BY rowid`, orderRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []catalog.OrderItem

	for rows.Next() {
		var it catalog.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Category); err != nil {
			return nil, err
		}

		items = append(items, it)
	}

	return items, rows.Err()
}

func storeErr(err error) error {
	return &catalog.StoreError{Store: "orders", Op: "find_orders", Err: err}
}
