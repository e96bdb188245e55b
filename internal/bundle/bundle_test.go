package bundle

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/bundle_downloader/internal/archive"
	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/content/contenttest"
	"github.com/italolelis/bundle_downloader/internal/locator"
	"github.com/italolelis/bundle_downloader/internal/storage/jsonfile"
	"github.com/italolelis/bundle_downloader/internal/verifier"
)

const productsJSON = `[
  {"id": 3, "title": "Lion of Judah", "category": "Prophetic Art", "requiresPayment": true},
  {"id": 5, "title": "El Shaddai", "category": "Names of God", "price": "12.00"},
  {"id": 7, "title": "Empty Folder", "category": "Names of God", "requiresPayment": true},
  {"id": 8, "title": "Free Print!", "category": "Nature", "price": 0}
]`

const ordersJSON = `{"orders": [
  {"id": "a1", "orderId": "ORD-1700000000000", "sessionId": "cs_test_1", "items": [{"category": "Names of God"}]},
  {"id": "a2", "orderId": "ORD-1700000000002", "items": [{"productId": 3}]}
]}`

type fixture struct {
	service *Service
	store   *contenttest.MemStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	productsFile := filepath.Join(dir, "products.json")
	ordersFile := filepath.Join(dir, "orders.json")

	require.NoError(t, os.WriteFile(productsFile, []byte(productsJSON), 0o600))
	require.NoError(t, os.WriteFile(ordersFile, []byte(ordersJSON), 0o600))

	store := contenttest.NewMemStore(map[string]string{
		"Digital Products/3/lion-8x10.png":  "lion small",
		"Digital Products/3/lion-16x20.png": "lion large",
		"Digital Products/5/shaddai.png":    "shaddai",
		"Digital Products/8/free.png":       "free",
	})

	table := catalog.DefaultTable()
	products := jsonfile.NewProductRepository(productsFile)
	orders := jsonfile.NewOrderRepository(ordersFile)

	svc := NewService(
		products,
		verifier.New(orders, products, table, nil),
		locator.New(store, table, locator.Config{MaxParallel: 2}),
		archive.NewStreamer(store),
		table,
		nil,
	)

	return &fixture{service: svc, store: store}
}

func TestPrepareProduct(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		creds     verifier.Credentials
		wantStage Stage
		wantFiles int
		wantName  string
	}{
		{name: "non numeric id", id: "abc", wantStage: StageRejectedBadID},
		{name: "negative id", id: "-3", wantStage: StageRejectedBadID},
		{name: "unknown product", id: "999", creds: verifier.Credentials{OrderID: "ORD-1700000000002"}, wantStage: StageRejectedBadID},
		{name: "paid without credential", id: "3", wantStage: StageRejectedNoCredential},
		{name: "short unknown credential", id: "3", creds: verifier.Credentials{OrderID: "ab"}, wantStage: StageRejectedUnverified},
		{name: "verified by product", id: "3", creds: verifier.Credentials{OrderID: "ORD-1700000000002"}, wantStage: StageSuccess, wantFiles: 2, wantName: "LionofJudah.zip"},
		{name: "verified by related category", id: "3", creds: verifier.Credentials{SessionID: "cs_test_1"}, wantStage: StageSuccess, wantFiles: 2, wantName: "LionofJudah.zip"},
		{name: "plausible unknown credential", id: "5", creds: verifier.Credentials{OrderID: "abcdef"}, wantStage: StageSuccess, wantFiles: 1, wantName: "ElShaddai.zip"},
		{name: "free product", id: " 8 ", wantStage: StageSuccess, wantFiles: 1, wantName: "FreePrint.zip"},
		{name: "empty folder", id: "7", creds: verifier.Credentials{OrderID: "ORD-1700000000000"}, wantStage: StageRejectedEmptySet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			b, err := f.service.PrepareProduct(context.Background(), tt.id, tt.creds)
			if tt.wantStage != StageSuccess {
				require.Error(t, err)
				assert.Equal(t, tt.wantStage, StageFor(err))
				assert.Nil(t, b)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, KindProduct, b.Kind)
			assert.Equal(t, tt.wantName, b.Filename)
			assert.Len(t, b.Files, tt.wantFiles)
		})
	}
}

func TestPrepareProduct_UnknownIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PrepareProduct(context.Background(), "999", verifier.Credentials{})

	var idErr *catalog.IdentifierError
	require.ErrorAs(t, err, &idErr)
	assert.True(t, idErr.NotFound)

	_, err = f.service.PrepareProduct(context.Background(), "x", verifier.Credentials{})
	require.ErrorAs(t, err, &idErr)
	assert.False(t, idErr.NotFound)
}

func TestPrepareProduct_StoreUnavailable(t *testing.T) {
	table := catalog.DefaultTable()
	products := jsonfile.NewProductRepository(filepath.Join(t.TempDir(), "missing.json"))
	store := contenttest.NewMemStore(nil)

	svc := NewService(products, verifier.New(nil, products, table, nil), locator.New(store, table, locator.Config{}),
		archive.NewStreamer(store), table, nil)

	_, err := svc.PrepareProduct(context.Background(), "3", verifier.Credentials{})
	require.ErrorIs(t, err, catalog.ErrStoreUnavailable)
	assert.Equal(t, StageStoreFailed, StageFor(err))
}

func TestPrepareCategory(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		creds     verifier.Credentials
		wantStage Stage
		wantFile  string
		wantFiles int
	}{
		{name: "unknown category", id: "posters", creds: verifier.Credentials{OrderID: "ORD-1700000000000"}, wantStage: StageRejectedBadID},
		{name: "no credential", id: "faith-decor", wantStage: StageRejectedNoCredential},
		{name: "short unknown credential", id: "faith-decor", creds: verifier.Credentials{OrderID: "ab"}, wantStage: StageRejectedUnverified},
		{name: "no products", id: "kids-collection", creds: verifier.Credentials{OrderID: "abcdef"}, wantStage: StageRejectedEmptySet},
		{name: "verified", id: "faith-decor", creds: verifier.Credentials{OrderID: "ORD-1700000000000"}, wantStage: StageSuccess, wantFile: "faith-decor_category.zip", wantFiles: 3},
		{name: "mixed case id", id: "Faith-Decor", creds: verifier.Credentials{OrderID: "ORD-1700000000002"}, wantStage: StageSuccess, wantFile: "faith-decor_category.zip", wantFiles: 3},
		{name: "plausible credential", id: "nature-landscapes", creds: verifier.Credentials{SessionID: "cs_live_unknown"}, wantStage: StageSuccess, wantFile: "nature-landscapes_category.zip", wantFiles: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			b, err := f.service.PrepareCategory(context.Background(), tt.id, tt.creds)
			if tt.wantStage != StageSuccess {
				require.Error(t, err)
				assert.Equal(t, tt.wantStage, StageFor(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, KindCategory, b.Kind)
			assert.Equal(t, tt.wantFile, b.Filename)
			assert.Len(t, b.Files, tt.wantFiles)
		})
	}
}

func TestPrepareCategory_UnknownCategoryReadsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.PrepareCategory(context.Background(), "../etc", verifier.Credentials{OrderID: "ORD-1700000000000"})
	require.Error(t, err)
	assert.Zero(t, f.store.Calls.Load())
}

func TestStreamAndFinish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.service.PrepareProduct(ctx, "3", verifier.Credentials{OrderID: "ORD-1700000000002"})
	require.NoError(t, err)

	a := f.service.Stream(ctx, b)

	_, err = io.ReadAll(a)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	f.service.Finish(ctx, b, a, nil)

	select {
	case failure := <-f.service.OnArchiveFailed():
		t.Fatalf("unexpected failure published: %+v", failure)
	default:
	}
}

func TestFinish_PublishesArchiveFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.service.PrepareProduct(ctx, "8", verifier.Credentials{})
	require.NoError(t, err)

	a := f.service.Stream(ctx, b)
	require.NoError(t, a.Close())

	cause := &catalog.ArchiveError{Entry: "free.png", Err: errors.New("disk gone")}

	f.service.Finish(ctx, b, a, context.Canceled)
	f.service.Finish(ctx, b, a, cause)

	failure := <-f.service.OnArchiveFailed()
	assert.Equal(t, KindProduct, failure.Kind)
	assert.Equal(t, "8", failure.ID)
	assert.Equal(t, "FreePrint.zip", failure.Filename)
	require.ErrorIs(t, failure.Err, cause)

	select {
	case extra := <-f.service.OnArchiveFailed():
		t.Fatalf("cancellation must not be published: %+v", extra)
	default:
	}
}

func TestFinish_DropsWhenQueueFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.service.PrepareProduct(ctx, "8", verifier.Credentials{})
	require.NoError(t, err)

	a := f.service.Stream(ctx, b)
	require.NoError(t, a.Close())

	for range failureBuffer + 5 {
		f.service.Finish(ctx, b, a, errors.New("boom"))
	}

	assert.Len(t, f.service.OnArchiveFailed(), failureBuffer)
}

func TestStageFor(t *testing.T) {
	assert.Equal(t, StageRejectedBadID, StageFor(&catalog.IdentifierError{}))
	assert.Equal(t, StageRejectedNoCredential, StageFor(&catalog.CredentialError{Missing: true}))
	assert.Equal(t, StageRejectedUnverified, StageFor(&catalog.CredentialError{}))
	assert.Equal(t, StageRejectedEmptySet, StageFor(&catalog.EmptyResultError{}))
	assert.Equal(t, StageArchiveFailed, StageFor(&catalog.ArchiveError{}))
	assert.Equal(t, StageStoreFailed, StageFor(&catalog.StoreError{}))
	assert.Equal(t, StageStoreFailed, StageFor(errors.New("anything")))
}
