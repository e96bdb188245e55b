package content

import (
	"context"
	"io"

	"github.com/italolelis/bundle_downloader/internal/telemetry"
)

// InstrumentedStore wraps a Store with telemetry. Absent keys are not counted as errors.
type InstrumentedStore struct {
	store     Store
	telemetry *telemetry.Telemetry
	name      string
}

var _ Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore creates a new instrumented store. name labels the backend, e.g. "content_s3".
func NewInstrumentedStore(store Store, tel *telemetry.Telemetry, name string) *InstrumentedStore {
	return &InstrumentedStore{
		store:     store,
		telemetry: tel,
		name:      name,
	}
}

func (s *InstrumentedStore) Stat(ctx context.Context, key string) (Entry, error) {
	var (
		result Entry
		err    error
	)

	_ = s.telemetry.InstrumentStoreOperation(ctx, s.name, "stat", func(ctx context.Context) error {
		result, err = s.store.Stat(ctx, key)

		return failure(err)
	})

	return result, err
}

func (s *InstrumentedStore) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	var (
		result []Entry
		err    error
	)

	_ = s.telemetry.InstrumentStoreOperation(ctx, s.name, "read_dir", func(ctx context.Context) error {
		result, err = s.store.ReadDir(ctx, dir)

		return failure(err)
	})

	return result, err
}

// Open instruments opening the file only; reading the body is accounted to the archive.
func (s *InstrumentedStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var (
		result io.ReadCloser
		err    error
	)

	_ = s.telemetry.InstrumentStoreOperation(ctx, s.name, "open", func(ctx context.Context) error {
		result, err = s.store.Open(ctx, key)

		return failure(err)
	})

	return result, err
}

func failure(err error) error {
	if IsNotExist(err) {
		return nil
	}

	return err
}
