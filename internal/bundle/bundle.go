// Package bundle runs a download request from identifier validation to the archive stream.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/italolelis/bundle_downloader/internal/archive"
	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/locator"
	"github.com/italolelis/bundle_downloader/internal/logctx"
	"github.com/italolelis/bundle_downloader/internal/storage"
	"github.com/italolelis/bundle_downloader/internal/telemetry"
	"github.com/italolelis/bundle_downloader/internal/verifier"
)

type Kind string

const (
	KindProduct  Kind = "product"
	KindCategory Kind = "category"
)

// Stage is the terminal state of a request.
type Stage string

const (
	StageRejectedBadID        Stage = "rejected_bad_id"
	StageRejectedNoCredential Stage = "rejected_no_credential"
	StageRejectedUnverified   Stage = "rejected_unverified"
	StageRejectedEmptySet     Stage = "rejected_empty_set"
	StageStoreFailed          Stage = "store_failed"
	StageSuccess              Stage = "success"
	StageArchiveFailed        Stage = "archive_failed"
	StageCanceled             Stage = "canceled"
)

// Client facing messages. They never carry store keys or paths.
const (
	msgInvalidProductID   = "Invalid product ID"
	msgProductNotFound    = "Product not found"
	msgPaymentRequired    = "Payment required. Provide the orderId or sessionId of your purchase."
	msgProductUnverified  = "Purchase could not be verified for this product"
	msgInvalidCategory    = "Invalid category"
	msgCategoryUnverified = "Purchase could not be verified for this category"
)

const failureBuffer = 16

// Bundle is a verified, resolved download waiting to be streamed.
type Bundle struct {
	Kind     Kind
	ID       string
	Filename string
	Files    []locator.File
	Outcome  verifier.Outcome

	finish func(telemetry.ArchiveResult)
}

// ArchiveFailure describes a bundle whose archive could not be completed.
type ArchiveFailure struct {
	Kind     Kind
	ID       string
	Filename string
	Stats    archive.Stats
	Err      error
}

type Service struct {
	products  storage.ProductReader
	verifier  *verifier.Verifier
	locator   *locator.Locator
	streamer  *archive.Streamer
	table     *catalog.Table
	telemetry *telemetry.Telemetry
	failures  chan ArchiveFailure
}

func NewService(
	products storage.ProductReader,
	v *verifier.Verifier,
	l *locator.Locator,
	streamer *archive.Streamer,
	table *catalog.Table,
	tel *telemetry.Telemetry,
) *Service {
	return &Service{
		products:  products,
		verifier:  v,
		locator:   l,
		streamer:  streamer,
		table:     table,
		telemetry: tel,
		failures:  make(chan ArchiveFailure, failureBuffer),
	}
}

// OnArchiveFailed delivers archive failures. Failures are dropped while the channel is full.
func (s *Service) OnArchiveFailed() <-chan ArchiveFailure {
	return s.failures
}

// PrepareProduct validates, verifies and resolves a product download. Products that do not
// require payment are served without a credential.
func (s *Service) PrepareProduct(ctx context.Context, rawID string, creds verifier.Credentials) (*Bundle, error) {
	ctx, logger := logctx.With(ctx, "bundle_kind", KindProduct)

	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id < 0 {
		return nil, s.reject(ctx, KindProduct, &catalog.IdentifierError{Kind: "product", Value: rawID, Reason: msgInvalidProductID})
	}

	ctx, logger = logctx.With(ctx, "product_id", id)

	product, err := s.products.GetProduct(ctx, id)
	if errors.Is(err, storage.ErrProductNotFound) {
		return nil, s.reject(ctx, KindProduct, &catalog.IdentifierError{
			Kind: "product", Value: rawID, Reason: msgProductNotFound, NotFound: true,
		})
	}

	if err != nil {
		return nil, s.reject(ctx, KindProduct, fmt.Errorf("failed to load product: %w", err))
	}

	outcome := verifier.Verified

	if product.RequiresPayment {
		if !creds.Present() {
			return nil, s.reject(ctx, KindProduct, &catalog.CredentialError{Missing: true, Reason: msgPaymentRequired})
		}

		outcome = s.verifier.VerifyProductPurchase(ctx, product, creds)
		if !outcome.Allowed() {
			return nil, s.reject(ctx, KindProduct, &catalog.CredentialError{Reason: msgProductUnverified})
		}
	} else {
		logger.DebugContext(ctx, "product is free, skipping purchase verification")
	}

	files, err := s.locator.ResolveProductFiles(ctx, product)
	if err != nil {
		return nil, s.reject(ctx, KindProduct, err)
	}

	return &Bundle{
		Kind:     KindProduct,
		ID:       strconv.FormatInt(id, 10),
		Filename: productFilename(product) + ".zip",
		Files:    files,
		Outcome:  outcome,
	}, nil
}

// PrepareCategory validates, verifies and resolves a category download. A credential is always
// required.
func (s *Service) PrepareCategory(ctx context.Context, categoryID string, creds verifier.Credentials) (*Bundle, error) {
	ctx, _ = logctx.With(ctx, "bundle_kind", KindCategory, "category_id", categoryID)

	names, ok := s.table.Lookup(categoryID)
	if !ok {
		return nil, s.reject(ctx, KindCategory, &catalog.IdentifierError{Kind: "category", Value: categoryID, Reason: msgInvalidCategory})
	}

	if !creds.Present() {
		return nil, s.reject(ctx, KindCategory, &catalog.CredentialError{Missing: true, Reason: msgPaymentRequired})
	}

	outcome, err := s.verifier.VerifyCategoryPurchase(ctx, categoryID, creds)
	if err != nil {
		return nil, s.reject(ctx, KindCategory, err)
	}

	if !outcome.Allowed() {
		return nil, s.reject(ctx, KindCategory, &catalog.CredentialError{Reason: msgCategoryUnverified})
	}

	products, err := s.products.ListProductsByCategory(ctx, names)
	if err != nil {
		return nil, s.reject(ctx, KindCategory, fmt.Errorf("failed to list category products: %w", err))
	}

	id := strings.ToLower(strings.TrimSpace(categoryID))

	if len(products) == 0 {
		return nil, s.reject(ctx, KindCategory, &catalog.EmptyResultError{Kind: "category", ID: id})
	}

	files, err := s.locator.ResolveCategoryFiles(ctx, id, products)
	if err != nil {
		return nil, s.reject(ctx, KindCategory, err)
	}

	return &Bundle{
		Kind:     KindCategory,
		ID:       id,
		Filename: id + "_category.zip",
		Files:    files,
		Outcome:  outcome,
	}, nil
}

// Stream starts the archive of a prepared bundle. Finish must be called once the archive has been
// consumed or abandoned.
func (s *Service) Stream(ctx context.Context, b *Bundle) *archive.Archive {
	ctx, b.finish = s.telemetry.InstrumentArchive(ctx, string(b.Kind))

	logctx.LoggerFromContext(ctx).InfoContext(ctx, "streaming bundle",
		"filename", b.Filename,
		"files", len(b.Files),
		"outcome", b.Outcome.String())

	return s.streamer.Open(ctx, b.Files)
}

// Finish records the terminal stage of a streamed bundle. A non-nil err other than a client
// cancellation is published on OnArchiveFailed.
func (s *Service) Finish(ctx context.Context, b *Bundle, a *archive.Archive, err error) {
	logger := logctx.LoggerFromContext(ctx)
	stats := a.Stats()

	stage, status := StageSuccess, "success"

	switch {
	case err == nil:
		logger.InfoContext(ctx, "bundle delivered", "filename", b.Filename, "entries", stats.Entries, "skipped", stats.Skipped)
	case errors.Is(err, context.Canceled):
		stage, status = StageCanceled, "canceled"

		logger.WarnContext(ctx, "bundle download canceled", "filename", b.Filename, "entries", stats.Entries)
	default:
		stage, status = StageArchiveFailed, "failed"

		logger.ErrorContext(ctx, "bundle archive failed", "filename", b.Filename, "entries", stats.Entries, "err", err)
		s.publish(ctx, ArchiveFailure{Kind: b.Kind, ID: b.ID, Filename: b.Filename, Stats: stats, Err: err})
	}

	if b.finish != nil {
		b.finish(telemetry.ArchiveResult{
			Status:  status,
			Entries: stats.Entries,
			Skipped: stats.Skipped,
			Bytes:   stats.Bytes,
		})
		b.finish = nil
	}

	s.telemetry.RecordBundleRequest(string(b.Kind), string(stage))
}

func (s *Service) publish(ctx context.Context, f ArchiveFailure) {
	select {
	case s.failures <- f:
	default:
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "dropping archive failure notification, queue full")
	}
}

// reject logs and counts a request that ended before streaming.
func (s *Service) reject(ctx context.Context, kind Kind, err error) error {
	stage := StageFor(err)
	logger := logctx.LoggerFromContext(ctx)

	if stage == StageStoreFailed {
		logger.ErrorContext(ctx, "bundle request failed", "stage", stage, "err", err)
	} else {
		logger.InfoContext(ctx, "bundle request rejected", "stage", stage, "err", err)
	}

	s.telemetry.RecordBundleRequest(string(kind), string(stage))

	return err
}

// StageFor maps a preparation error to its terminal stage.
func StageFor(err error) Stage {
	var (
		idErr    *catalog.IdentifierError
		credErr  *catalog.CredentialError
		emptyErr *catalog.EmptyResultError
		archErr  *catalog.ArchiveError
	)

	switch {
	case errors.As(err, &idErr):
		return StageRejectedBadID
	case errors.As(err, &credErr):
		if credErr.Missing {
			return StageRejectedNoCredential
		}

		return StageRejectedUnverified
	case errors.As(err, &emptyErr):
		return StageRejectedEmptySet
	case errors.As(err, &archErr):
		return StageArchiveFailed
	default:
		return StageStoreFailed
	}
}

func productFilename(p catalog.Product) string {
	if name := catalog.StripName(p.Title); name != "" {
		return name
	}

	return "product_" + strconv.FormatInt(p.ID, 10)
}
