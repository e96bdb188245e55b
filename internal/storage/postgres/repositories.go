package postgres

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/storage"
)

type ProductRepository struct {
	db *gorm.DB
}

var _ storage.ProductReader = (*ProductRepository)(nil)

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetProduct(ctx context.Context, id int64) (catalog.Product, error) {
	var m productModel

	err := r.db.WithContext(ctx).
		Preload("Files", orderByPosition).
		Where("id = ?", id).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Product{}, storage.ErrProductNotFound
	}

	if err != nil {
		return catalog.Product{}, &catalog.StoreError{Store: "products", Op: "get_product", Err: err}
	}

	return m.toProduct(), nil
}

func (r *ProductRepository) ListProductsByCategory(ctx context.Context, names []string) ([]catalog.Product, error) {
	lowered := make([]string, 0, len(names))

	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			lowered = append(lowered, strings.ToLower(n))
		}
	}

	if len(lowered) == 0 {
		return nil, nil
	}

	var models []productModel

	err := r.db.WithContext(ctx).
		Preload("Files", orderByPosition).
		Where("lower(trim(category)) IN ?", lowered).
		Order("id").
		Find(&models).Error
	if err != nil {
		return nil, &catalog.StoreError{Store: "products", Op: "list_by_category", Err: err}
	}

	products := make([]catalog.Product, 0, len(models))
	for _, m := range models {
		products = append(products, m.toProduct())
	}

	return products, nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

type OrderRepository struct {
	db *gorm.DB
}

var _ storage.OrderReader = (*OrderRepository)(nil)

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindOrders(ctx context.Context, refs ...string) (storage.OrderSet, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&orderModel{}).Count(&total).Error; err != nil {
		return storage.OrderSet{}, &catalog.StoreError{Store: "orders", Op: "find_orders", Err: err}
	}

	set := storage.OrderSet{Empty: total == 0}

	refs = storage.NonEmptyRefs(refs)
	if set.Empty || len(refs) == 0 {
		return set, nil
	}

	var models []orderModel

	err := db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("id IN ? OR order_id IN ? OR session_id IN ?", refs, refs, refs).
		Order("id").
		Find(&models).Error
	if err != nil {
		return storage.OrderSet{}, &catalog.StoreError{Store: "orders", Op: "find_orders", Err: err}
	}

	for _, m := range models {
		set.Orders = append(set.Orders, m.toOrder())
	}

	return set, nil
}
