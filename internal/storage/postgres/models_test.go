package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/italolelis/bundle_downloader/internal/catalog"
)

func TestProductModel_ToProduct(t *testing.T) {
	m := productModel{
		ID:              3,
		Title:           "Lion of Judah",
		Category:        "Prophetic Art",
		RequiresPayment: true,
		Files: []productFileModel{
			{ProductID: 3, Position: 0, Name: "Lion 8x10", Path: "Digital Products/3/lion-8x10.png", Size: "12 MB"},
		},
	}

	assert.Equal(t, catalog.Product{
		ID:              3,
		Title:           "Lion of Judah",
		Category:        "Prophetic Art",
		RequiresPayment: true,
		Files:           []catalog.ManifestEntry{{Name: "Lion 8x10", Path: "Digital Products/3/lion-8x10.png", Size: "12 MB"}},
	}, m.toProduct())

	assert.Nil(t, productModel{ID: 7}.toProduct().Files)
}

func TestOrderModel_ToOrder(t *testing.T) {
	m := orderModel{
		ID:        "a1",
		OrderID:   "ORD-1700000000000",
		SessionID: "cs_test_abc",
		Items: []orderItemModel{
			{ID: 1, OrderRef: "a1", Category: "Names of God"},
			{ID: 2, OrderRef: "a1", ProductID: 42},
		},
	}

	o := m.toOrder()
	assert.True(t, o.Matches("cs_test_abc"))
	assert.Equal(t, []catalog.OrderItem{{Category: "Names of God"}, {ProductID: 42}}, o.Items)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "products", productModel{}.TableName())
	assert.Equal(t, "product_files", productFileModel{}.TableName())
	assert.Equal(t, "orders", orderModel{}.TableName())
	assert.Equal(t, "order_items", orderItemModel{}.TableName())
}
