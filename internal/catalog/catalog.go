package catalog

import (
	"fmt"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultFolderPrefix is the content folder that holds one sub-folder per product id.
const DefaultFolderPrefix = "Digital Products"

type Product struct {
	ID              int64
	Title           string
	Category        string
	Folder          string
	RequiresPayment bool
	Files           []ManifestEntry
}

// ManifestEntry is one declared file of a product.
type ManifestEntry struct {
	Name string
	Path string
	Size string
}

// FolderKey returns the content folder of the product. Products without an explicit folder live
// under <prefix>/<id>.
func (p Product) FolderKey(prefix string) string {
	if folder := strings.TrimSpace(p.Folder); folder != "" {
		return folder
	}

	if prefix == "" {
		prefix = DefaultFolderPrefix
	}

	return path.Join(prefix, fmt.Sprintf("%d", p.ID))
}

func (p Product) HasManifest() bool {
	return len(p.Files) > 0
}

// SizeBytes parses the human readable size of the entry. Unparseable sizes report zero.
func (e ManifestEntry) SizeBytes() int64 {
	if e.Size == "" {
		return 0
	}

	n, err := humanize.ParseBytes(e.Size)
	if err != nil {
		return 0
	}

	return int64(n)
}

// Order is a completed checkout as written by the storefront. Orders are never mutated here.
type Order struct {
	ID        string
	OrderID   string
	SessionID string
	Items     []OrderItem
}

// OrderItem references a purchased product, a category, or both.
type OrderItem struct {
	ProductID int64
	Category  string
}

// Matches reports whether any of the order identifiers equals one of refs.
func (o Order) Matches(refs ...string) bool {
	for _, ref := range refs {
		if ref == "" {
			continue
		}

		if o.ID == ref || o.OrderID == ref || o.SessionID == ref {
			return true
		}
	}

	return false
}
