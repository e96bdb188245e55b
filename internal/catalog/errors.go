package catalog

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable is matched by every StoreError.
var ErrStoreUnavailable = errors.New("store unavailable")

// IdentifierError represents a malformed or unknown product or category identifier.
type IdentifierError struct {
	Kind     string // "product" or "category"
	Value    string // The identifier as received
	Reason   string // Human-readable explanation, safe to show to clients
	NotFound bool   // Well-formed but unknown identifier
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid %s identifier %q: %s", e.Kind, e.Value, e.Reason)
}

// CredentialError represents a missing or rejected proof of purchase.
type CredentialError struct {
	Missing bool   // No order or session id was presented
	Reason  string // Human-readable explanation, safe to show to clients
}

func (e *CredentialError) Error() string {
	if e.Missing {
		return fmt.Sprintf("credential missing: %s", e.Reason)
	}

	return fmt.Sprintf("credential denied: %s", e.Reason)
}

// StoreError represents a product, order or content store that could not be read.
type StoreError struct {
	Store string // e.g. "orders", "products", "content"
	Op    string // The operation that failed
	Err   error  // Underlying error, if any
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s store unavailable during %s: %v", e.Store, e.Op, e.Err)
	}

	return fmt.Sprintf("%s store unavailable during %s", e.Store, e.Op)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// EmptyResultError is returned when a product or category resolves to no files or products.
type EmptyResultError struct {
	Kind string // "product" or "category"
	ID   string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no files found for %s %s", e.Kind, e.ID)
}

// ArchiveError represents an irrecoverable failure while building an archive.
type ArchiveError struct {
	Entry string // Archive entry being written when the failure happened, if any
	Err   error  // Underlying error
}

func (e *ArchiveError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("archive failed at entry %q: %v", e.Entry, e.Err)
	}

	return fmt.Sprintf("archive failed: %v", e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}
