package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Span attributes here feed metrics, so they stay low cardinality: operation names, store
// names and statuses. Product ids, order ids and entry names belong in logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation instruments a generic operation with telemetry.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentStoreOperation instruments product, order and content store calls.
func (t *Telemetry) InstrumentStoreOperation(ctx context.Context, store, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, store+"_"+operation, "store", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordStoreOperation(store, operation, status, time.Since(start))

	return err
}

// InstrumentArchive tracks an archive for its whole streaming lifetime. The returned func must be
// called exactly once with the final result.
func (t *Telemetry) InstrumentArchive(ctx context.Context, kind string) (context.Context, func(ArchiveResult)) {
	if t == nil || t.tracer == nil {
		return ctx, func(ArchiveResult) {}
	}

	start := time.Now()

	t.IncrementActiveArchives()

	ctx, span := t.tracer.Start(ctx, "archive_stream")
	span.SetAttributes(attribute.String("bundle.kind", kind))

	return ctx, func(r ArchiveResult) {
		defer span.End()
		defer t.DecrementActiveArchives()

		if r.Duration == 0 {
			r.Duration = time.Since(start)
		}

		span.SetAttributes(
			attribute.String("status", r.Status),
			attribute.Int("archive.entries", r.Entries),
			attribute.Int("archive.skipped", r.Skipped),
		)

		if r.Status != "success" {
			span.SetStatus(codes.Error, "archive "+r.Status)
		}

		t.RecordArchive(r)
	}
}
