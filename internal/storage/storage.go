// Package storage defines the read-only accessors for the product catalog and the order
// collection. Both are owned by the storefront; nothing here writes to them.
package storage

import (
	"context"
	"errors"

	"github.com/italolelis/bundle_downloader/internal/catalog"
)

// ErrProductNotFound is returned by ProductReader.GetProduct for unknown ids.
var ErrProductNotFound = errors.New("product not found")

// ProductReader looks up catalog products.
type ProductReader interface {
	// GetProduct returns ErrProductNotFound when the id is unknown and a *catalog.StoreError when
	// the catalog cannot be read.
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	// ListProductsByCategory returns the products whose category equals one of names, ignoring
	// case, ordered by id.
	ListProductsByCategory(ctx context.Context, names []string) ([]catalog.Product, error)
}

// OrderSet is the result of an order lookup.
type OrderSet struct {
	// Orders whose id, order id or session id equals one of the requested refs.
	Orders []catalog.Order
	// Empty reports that the collection holds no orders at all.
	Empty bool
}

// OrderReader finds orders by any of their identifiers. An unreadable collection is reported as a
// *catalog.StoreError so the caller decides how to degrade.
type OrderReader interface {
	FindOrders(ctx context.Context, refs ...string) (OrderSet, error)
}

// NonEmptyRefs drops blank refs. Backends use it so a blank ref never matches a blank column.
func NonEmptyRefs(refs []string) []string {
	out := make([]string, 0, len(refs))

	for _, r := range refs {
		if r != "" {
			out = append(out, r)
		}
	}

	return out
}
