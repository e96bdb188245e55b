package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter
	registry      *prom.Registry

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	bundleRequestsTotal   metric.Int64Counter
	verificationsTotal    metric.Int64Counter
	archivesActive        metric.Int64UpDownCounter
	archiveDuration       metric.Float64Histogram
	archiveBytesTotal     metric.Int64Counter
	archiveEntriesTotal   metric.Int64Counter
	archiveSkippedTotal   metric.Int64Counter
	storeOperationsTotal  metric.Int64Counter
	storeOperationLatency metric.Float64Histogram
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	OTLPInterval   time.Duration
}

// New creates a new telemetry instance. A disabled instance is safe to use and records nothing.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	registry := prom.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(exporter)}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		interval := cfg.OTLPInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter, sdkmetric.WithInterval(interval))))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)

	otel.SetMeterProvider(meterProvider)

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         meterProvider.Meter(cfg.ServiceName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
		exporter:      exporter,
		registry:      registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime instrumentation: %w", err)
	}

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.Tracer("")
	}

	return t.tracer
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
	}
}

func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordBundleRequest records the terminal stage of a bundle request.
func (t *Telemetry) RecordBundleRequest(kind, stage string) {
	if t != nil && t.bundleRequestsTotal != nil {
		t.bundleRequestsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("kind", kind),
				attribute.String("stage", stage),
			),
		)
	}
}

// RecordVerification records a purchase verification outcome.
func (t *Telemetry) RecordVerification(kind, outcome string) {
	if t != nil && t.verificationsTotal != nil {
		t.verificationsTotal.Add(context.Background(), 1,
			metric.WithAttributes(
				attribute.String("kind", kind),
				attribute.String("outcome", outcome),
			),
		)
	}
}

// ArchiveResult summarises a finished archive stream.
type ArchiveResult struct {
	Status   string
	Entries  int
	Skipped  int
	Bytes    int64
	Duration time.Duration
}

// RecordArchive records archive stream metrics.
func (t *Telemetry) RecordArchive(r ArchiveResult) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", r.Status))

	if t.archiveDuration != nil {
		t.archiveDuration.Record(context.Background(), r.Duration.Seconds(), attrs)
	}

	if t.archiveBytesTotal != nil {
		t.archiveBytesTotal.Add(context.Background(), r.Bytes, attrs)
	}

	if t.archiveEntriesTotal != nil {
		t.archiveEntriesTotal.Add(context.Background(), int64(r.Entries), attrs)
	}

	if t.archiveSkippedTotal != nil && r.Skipped > 0 {
		t.archiveSkippedTotal.Add(context.Background(), int64(r.Skipped))
	}
}

func (t *Telemetry) IncrementActiveArchives() {
	if t != nil && t.archivesActive != nil {
		t.archivesActive.Add(context.Background(), 1)
	}
}

func (t *Telemetry) DecrementActiveArchives() {
	if t != nil && t.archivesActive != nil {
		t.archivesActive.Add(context.Background(), -1)
	}
}

// RecordStoreOperation records product, order and content store operation metrics.
func (t *Telemetry) RecordStoreOperation(store, operation, status string, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.storeOperationsTotal != nil {
		t.storeOperationsTotal.Add(context.Background(), 1, attrs)
	}

	if t.storeOperationLatency != nil {
		t.storeOperationLatency.Record(context.Background(), duration.Seconds(), attrs)
	}
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}

	return t.meterProvider.Shutdown(ctx)
}

func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	return t.initializeBusinessMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var errs []error

	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("http_requests_total", err))

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	errs = append(errs, wrapInstrumentErr("http_request_duration_seconds", err))

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("http_requests_in_flight", err))

	return errors.Join(errs...)
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var errs []error

	var err error

	t.bundleRequestsTotal, err = t.meter.Int64Counter(
		"bundle_requests_total",
		metric.WithDescription("Total number of bundle download requests by terminal stage"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("bundle_requests_total", err))

	t.verificationsTotal, err = t.meter.Int64Counter(
		"verifications_total",
		metric.WithDescription("Total number of purchase verifications by outcome"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("verifications_total", err))

	t.archivesActive, err = t.meter.Int64UpDownCounter(
		"archives_active",
		metric.WithDescription("Number of archives currently streaming"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("archives_active", err))

	t.archiveDuration, err = t.meter.Float64Histogram(
		"archive_duration_seconds",
		metric.WithDescription("Archive stream duration in seconds"),
		metric.WithUnit("s"),
	)
	errs = append(errs, wrapInstrumentErr("archive_duration_seconds", err))

	t.archiveBytesTotal, err = t.meter.Int64Counter(
		"archive_bytes_total",
		metric.WithDescription("Total number of uncompressed bytes read into archives"),
		metric.WithUnit("By"),
	)
	errs = append(errs, wrapInstrumentErr("archive_bytes_total", err))

	t.archiveEntriesTotal, err = t.meter.Int64Counter(
		"archive_entries_total",
		metric.WithDescription("Total number of archive entries written"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("archive_entries_total", err))

	t.archiveSkippedTotal, err = t.meter.Int64Counter(
		"archive_entries_skipped_total",
		metric.WithDescription("Total number of archive entries skipped because the file disappeared"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("archive_entries_skipped_total", err))

	t.storeOperationsTotal, err = t.meter.Int64Counter(
		"store_operations_total",
		metric.WithDescription("Total number of store operations"),
		metric.WithUnit("1"),
	)
	errs = append(errs, wrapInstrumentErr("store_operations_total", err))

	t.storeOperationLatency, err = t.meter.Float64Histogram(
		"store_operation_duration_seconds",
		metric.WithDescription("Store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	errs = append(errs, wrapInstrumentErr("store_operation_duration_seconds", err))

	return errors.Join(errs...)
}

func wrapInstrumentErr(name string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("failed to create %s instrument: %w", name, err)
}
