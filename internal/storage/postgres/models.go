package postgres

import (
	"github.com/italolelis/bundle_downloader/internal/catalog"
)

type productModel struct {
	ID              int64  `gorm:"column:id;primaryKey"`
	Title           string `gorm:"column:title"`
	Category        string `gorm:"column:category"`
	Folder          string `gorm:"column:folder"`
	RequiresPayment bool   `gorm:"column:requires_payment"`

	Files []productFileModel `gorm:"foreignKey:ProductID;references:ID"`
}

func (productModel) TableName() string { return "products" }

type productFileModel struct {
	ProductID int64  `gorm:"column:product_id;primaryKey"`
	Position  int    `gorm:"column:position;primaryKey"`
	Name      string `gorm:"column:name"`
	Path      string `gorm:"column:path"`
	Size      string `gorm:"column:size"`
}

func (productFileModel) TableName() string { return "product_files" }

type orderModel struct {
	ID        string `gorm:"column:id;primaryKey"`
	OrderID   string `gorm:"column:order_id"`
	SessionID string `gorm:"column:session_id"`

	Items []orderItemModel `gorm:"foreignKey:OrderRef;references:ID"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	OrderRef  string `gorm:"column:order_ref"`
	ProductID int64  `gorm:"column:product_id"`
	Category  string `gorm:"column:category"`
}

func (orderItemModel) TableName() string { return "order_items" }

func (m productModel) toProduct() catalog.Product {
	p := catalog.Product{
		ID:              m.ID,
		Title:           m.Title,
		Category:        m.Category,
		Folder:          m.Folder,
		RequiresPayment: m.RequiresPayment,
	}

	for _, f := range m.Files {
		p.Files = append(p.Files, catalog.ManifestEntry{Name: f.Name, Path: f.Path, Size: f.Size})
	}

	return p
}

func (m orderModel) toOrder() catalog.Order {
	o := catalog.Order{
		ID:        m.ID,
		OrderID:   m.OrderID,
		SessionID: m.SessionID,
	}

	for _, it := range m.Items {
		o.Items = append(o.Items, catalog.OrderItem{ProductID: it.ProductID, Category: it.Category})
	}

	return o
}
