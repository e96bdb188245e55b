package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/italolelis/bundle_downloader/internal/archive"
	"github.com/italolelis/bundle_downloader/internal/bundle"
	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/logctx"
	"github.com/italolelis/bundle_downloader/internal/verifier"
)

const streamBufferSize = 32 * 1024

type errorResponse struct {
	Error string `json:"error"`
}

type BundleHandler struct {
	service *bundle.Service
}

// NewBundleHandler creates a new bundle download handler.
func NewBundleHandler(service *bundle.Service) *BundleHandler {
	return &BundleHandler{service: service}
}

func (h *BundleHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/products/{id}/download-all", h.HandleProductDownload)
	r.Get("/categories/{categoryId}/download", h.HandleCategoryDownload)

	return r
}

// HandleProductDownload streams every file of one product.
func (h *BundleHandler) HandleProductDownload(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.PrepareProduct(r.Context(), chi.URLParam(r, "id"), credentialsFrom(r))
	if err != nil {
		writeError(w, r, err)

		return
	}

	h.stream(w, r, b)
}

// HandleCategoryDownload streams every file of every product in a category.
func (h *BundleHandler) HandleCategoryDownload(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.PrepareCategory(r.Context(), chi.URLParam(r, "categoryId"), credentialsFrom(r))
	if err != nil {
		writeError(w, r, err)

		return
	}

	h.stream(w, r, b)
}

// stream holds the response headers back until the archive produced its first bytes, so early
// failures still get a JSON error. Once bytes were sent the connection is aborted instead.
func (h *BundleHandler) stream(w http.ResponseWriter, r *http.Request, b *bundle.Bundle) {
	ctx := r.Context()

	a := h.service.Stream(ctx, b)
	defer a.Close()

	buf := make([]byte, streamBufferSize)

	n, readErr := readFirst(a, buf)
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		h.service.Finish(ctx, b, a, readErr)

		if !errors.Is(readErr, context.Canceled) {
			writeError(w, r, readErr)
		}

		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, b.Filename))
	w.WriteHeader(http.StatusOK)

	if err := copyArchive(w, a, buf, n, readErr); err != nil {
		h.service.Finish(ctx, b, a, err)

		var archErr *catalog.ArchiveError
		if errors.As(err, &archErr) && !errors.Is(err, context.Canceled) {
			panic(http.ErrAbortHandler)
		}

		return
	}

	h.service.Finish(ctx, b, a, nil)
}

// copyArchive writes the already read first chunk and then the rest of the archive. Write
// failures mean the client went away and are reported as cancellations.
func copyArchive(w http.ResponseWriter, a *archive.Archive, buf []byte, n int, readErr error) error {
	for {
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return errors.Join(context.Canceled, err)
			}
		}

		if errors.Is(readErr, io.EOF) {
			return nil
		}

		if readErr != nil {
			return readErr
		}

		n, readErr = a.Read(buf)
	}
}

func readFirst(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func credentialsFrom(r *http.Request) verifier.Credentials {
	q := r.URL.Query()

	return verifier.NewCredentials(q.Get("orderId"), q.Get("sessionId"))
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if encodeErr := json.NewEncoder(w).Encode(errorResponse{Error: message}); encodeErr != nil {
		logger := logctx.LoggerFromContext(r.Context())
		logger.ErrorContext(r.Context(), "failed to encode error response", "err", encodeErr)
	}
}

// errorStatus converts bundle errors to a status code and a message safe to show to clients.
func errorStatus(err error) (int, string) {
	var idErr *catalog.IdentifierError
	if errors.As(err, &idErr) {
		if idErr.NotFound {
			return http.StatusNotFound, idErr.Reason
		}

		return http.StatusBadRequest, idErr.Reason
	}

	var credErr *catalog.CredentialError
	if errors.As(err, &credErr) {
		return http.StatusForbidden, credErr.Reason
	}

	var emptyErr *catalog.EmptyResultError
	if errors.As(err, &emptyErr) {
		return http.StatusNotFound, fmt.Sprintf("No downloadable files found for this %s", emptyErr.Kind)
	}

	var archErr *catalog.ArchiveError
	if errors.As(err, &archErr) {
		return http.StatusInternalServerError, "Failed to create archive"
	}

	if errors.Is(err, catalog.ErrStoreUnavailable) {
		return http.StatusInternalServerError, "Service temporarily unavailable"
	}

	return http.StatusInternalServerError, "Internal server error"
}
