package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/storage"
)

type orderRecord struct {
	ID        flexString   `json:"id"`
	OrderID   flexString   `json:"orderId"`
	SessionID flexString   `json:"sessionId"`
	Items     []itemRecord `json:"items"`
}

// Items written by older checkouts carry the product under "id" instead of "productId".
type itemRecord struct {
	ProductID flexID `json:"productId"`
	ID        flexID `json:"id"`
	Category  string `json:"category"`
}

func (r orderRecord) toOrder() (catalog.Order, error) {
	o := catalog.Order{
		ID:        strings.TrimSpace(string(r.ID)),
		OrderID:   strings.TrimSpace(string(r.OrderID)),
		SessionID: strings.TrimSpace(string(r.SessionID)),
	}

	if o.ID == "" && o.OrderID == "" && o.SessionID == "" {
		return catalog.Order{}, errors.New("order has no identifier")
	}

	for _, it := range r.Items {
		item := catalog.OrderItem{Category: strings.TrimSpace(it.Category)}

		switch {
		case it.ProductID.Set:
			item.ProductID = it.ProductID.Value
		case it.ID.Set:
			item.ProductID = it.ID.Value
		}

		if item.ProductID == 0 && item.Category == "" {
			continue
		}

		o.Items = append(o.Items, item)
	}

	return o, nil
}

// OrderRepository reads orders from a JSON file.
type OrderRepository struct {
	filename string
}

var _ storage.OrderReader = (*OrderRepository)(nil)

func NewOrderRepository(filename string) *OrderRepository {
	return &OrderRepository{filename: filename}
}

func (r *OrderRepository) FindOrders(ctx context.Context, refs ...string) (storage.OrderSet, error) {
	records, err := readRecords(r.filename, "orders")
	if err != nil {
		return storage.OrderSet{}, &catalog.StoreError{Store: "orders", Op: "find_orders", Err: fmt.Errorf("read orders: %w", err)}
	}

	refs = storage.NonEmptyRefs(refs)
	set := storage.OrderSet{Empty: true}

	for i, raw := range records {
		var rec orderRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			warnSkipped(ctx, "order", i, err)

			continue
		}

		o, err := rec.toOrder()
		if err != nil {
			warnSkipped(ctx, "order", i, err)

			continue
		}

		set.Empty = false

		if o.Matches(refs...) {
			set.Orders = append(set.Orders, o)
		}
	}

	return set, nil
}
