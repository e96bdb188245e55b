// Package verifier decides whether a presented order or session id proves a purchase.
package verifier

import (
	"context"
	"errors"
	"strings"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/logctx"
	"github.com/italolelis/bundle_downloader/internal/storage"
	"github.com/italolelis/bundle_downloader/internal/telemetry"
)

// MinCredentialLength is the shortest order or session id treated as plausibly real.
const MinCredentialLength = 5

// Outcome is the result of a purchase verification.
type Outcome int

const (
	// Denied means no credential, or an implausible one that no order corroborates.
	Denied Outcome = iota
	// Unverifiable means the orders could not corroborate a plausible credential.
	Unverifiable
	// Verified means a matching order contains the product or category.
	Verified
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Unverifiable:
		return "unverifiable"
	default:
		return "denied"
	}
}

// Allowed reports whether the outcome lets the download proceed.
func (o Outcome) Allowed() bool {
	return o != Denied
}

// Credentials are the proofs of purchase presented with a request.
type Credentials struct {
	OrderID   string
	SessionID string
}

// NewCredentials trims both ids.
func NewCredentials(orderID, sessionID string) Credentials {
	return Credentials{OrderID: strings.TrimSpace(orderID), SessionID: strings.TrimSpace(sessionID)}
}

// Present reports whether any credential was supplied.
func (c Credentials) Present() bool {
	return c.OrderID != "" || c.SessionID != ""
}

// Plausible reports whether any supplied credential is long enough to be a real id.
func (c Credentials) Plausible() bool {
	return len(c.OrderID) >= MinCredentialLength || len(c.SessionID) >= MinCredentialLength
}

func (c Credentials) refs() []string {
	return storage.NonEmptyRefs([]string{c.OrderID, c.SessionID})
}

type Verifier struct {
	orders    storage.OrderReader
	products  storage.ProductReader
	table     *catalog.Table
	telemetry *telemetry.Telemetry
}

func New(orders storage.OrderReader, products storage.ProductReader, table *catalog.Table, tel *telemetry.Telemetry) *Verifier {
	return &Verifier{orders: orders, products: products, table: table, telemetry: tel}
}

// VerifyProductPurchase checks the credentials against orders containing the product. An item
// matches when it references the product id, or when its category shares a category group with
// the product's category.
func (v *Verifier) VerifyProductPurchase(ctx context.Context, product catalog.Product, creds Credentials) Outcome {
	ctx, _ = logctx.With(ctx, "product_id", product.ID)

	related := v.table.Related(product.Category)

	matches := func(_ context.Context, item catalog.OrderItem) bool {
		if item.ProductID != 0 && item.ProductID == product.ID {
			return true
		}

		return catalog.MatchName(related, item.Category)
	}

	return v.verify(ctx, "product", creds, matches)
}

// VerifyCategoryPurchase checks the credentials against orders containing any product of the
// category. An item matches by its category, or by the category of the product it references.
// An unknown category is an *catalog.IdentifierError.
func (v *Verifier) VerifyCategoryPurchase(ctx context.Context, categoryID string, creds Credentials) (Outcome, error) {
	names, ok := v.table.Lookup(categoryID)
	if !ok {
		return Denied, &catalog.IdentifierError{Kind: "category", Value: categoryID, Reason: "unknown category"}
	}

	ctx, _ = logctx.With(ctx, "category_id", categoryID)

	categories := map[int64]string{}

	matches := func(ctx context.Context, item catalog.OrderItem) bool {
		if catalog.MatchName(names, item.Category) {
			return true
		}

		if item.ProductID == 0 {
			return false
		}

		category, seen := categories[item.ProductID]
		if !seen {
			category = v.productCategory(ctx, item.ProductID)
			categories[item.ProductID] = category
		}

		return catalog.MatchName(names, category)
	}

	return v.verify(ctx, "category", creds, matches), nil
}

// productCategory returns "" when the product cannot be looked up.
func (v *Verifier) productCategory(ctx context.Context, id int64) string {
	if v.products == nil {
		return ""
	}

	p, err := v.products.GetProduct(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrProductNotFound) {
			logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to look up ordered product", "ordered_product_id", id, "err", err)
		}

		return ""
	}

	return p.Category
}

func (v *Verifier) verify(ctx context.Context, kind string, creds Credentials, matches func(context.Context, catalog.OrderItem) bool) Outcome {
	if !creds.Present() {
		return v.decide(ctx, kind, Denied, "no credential presented")
	}

	fallback := false

	set, err := v.orders.FindOrders(ctx, creds.refs()...)
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "order store unavailable, falling back", "err", err)

		fallback = true
	} else if set.Empty {
		fallback = true
	}

	for _, order := range set.Orders {
		if !order.Matches(creds.refs()...) {
			continue
		}

		for _, item := range order.Items {
			if matches(ctx, item) {
				return v.decide(ctx, kind, Verified, "order contains the purchase", "order", order.ID)
			}
		}
	}

	switch {
	case fallback:
		return v.decide(ctx, kind, Unverifiable, "order store empty or unavailable")
	case !creds.Plausible():
		return v.decide(ctx, kind, Denied, "credential too short and not found")
	default:
		return v.decide(ctx, kind, Unverifiable, "credential plausible but not found")
	}
}

func (v *Verifier) decide(ctx context.Context, kind string, outcome Outcome, reason string, args ...any) Outcome {
	logger := logctx.LoggerFromContext(ctx)

	args = append([]any{"kind", kind, "outcome", outcome.String(), "reason", reason}, args...)
	if outcome == Denied {
		logger.WarnContext(ctx, "purchase verification denied", args...)
	} else {
		logger.InfoContext(ctx, "purchase verification decided", args...)
	}

	v.telemetry.RecordVerification(kind, outcome.String())

	return outcome
}
