package storage

import (
	"context"
	"errors"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/telemetry"
)

// InstrumentedProductReader wraps a ProductReader with telemetry.
type InstrumentedProductReader struct {
	reader    ProductReader
	telemetry *telemetry.Telemetry
}

// NewInstrumentedProductReader creates a new instrumented product reader.
func NewInstrumentedProductReader(reader ProductReader, tel *telemetry.Telemetry) *InstrumentedProductReader {
	return &InstrumentedProductReader{
		reader:    reader,
		telemetry: tel,
	}
}

// GetProduct retrieves a product with telemetry. An unknown id is not counted as a store error.
func (r *InstrumentedProductReader) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var (
		result catalog.Product
		err    error
	)

	_ = r.telemetry.InstrumentStoreOperation(ctx, "products", "get_product", func(ctx context.Context) error {
		result, err = r.reader.GetProduct(ctx, id)
		if isStoreFailure(err) {
			return err
		}

		return nil
	})

	return result, err
}

// ListProductsByCategory lists products with telemetry.
func (r *InstrumentedProductReader) ListProductsByCategory(ctx context.Context, names []string) ([]catalog.Product, error) {
	var result []catalog.Product

	err := r.telemetry.InstrumentStoreOperation(ctx, "products", "list_by_category", func(ctx context.Context) error {
		var err error

		result, err = r.reader.ListProductsByCategory(ctx, names)

		return err
	})

	return result, err
}

// InstrumentedOrderReader wraps an OrderReader with telemetry.
type InstrumentedOrderReader struct {
	reader    OrderReader
	telemetry *telemetry.Telemetry
}

// NewInstrumentedOrderReader creates a new instrumented order reader.
func NewInstrumentedOrderReader(reader OrderReader, tel *telemetry.Telemetry) *InstrumentedOrderReader {
	return &InstrumentedOrderReader{
		reader:    reader,
		telemetry: tel,
	}
}

// FindOrders finds orders with telemetry.
func (r *InstrumentedOrderReader) FindOrders(ctx context.Context, refs ...string) (OrderSet, error) {
	var result OrderSet

	err := r.telemetry.InstrumentStoreOperation(ctx, "orders", "find_orders", func(ctx context.Context) error {
		var err error

		result, err = r.reader.FindOrders(ctx, refs...)

		return err
	})

	return result, err
}

func isStoreFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrProductNotFound)
}
