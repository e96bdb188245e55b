package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/italolelis/bundle_downloader/internal/archive"
	"github.com/italolelis/bundle_downloader/internal/awsutil"
	"github.com/italolelis/bundle_downloader/internal/bundle"
	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/config"
	"github.com/italolelis/bundle_downloader/internal/content"
	"github.com/italolelis/bundle_downloader/internal/content/local"
	"github.com/italolelis/bundle_downloader/internal/content/putio"
	"github.com/italolelis/bundle_downloader/internal/content/s3store"
	"github.com/italolelis/bundle_downloader/internal/http/rest"
	"github.com/italolelis/bundle_downloader/internal/locator"
	"github.com/italolelis/bundle_downloader/internal/logctx"
	"github.com/italolelis/bundle_downloader/internal/notifier"
	"github.com/italolelis/bundle_downloader/internal/storage"
	ddbstore "github.com/italolelis/bundle_downloader/internal/storage/dynamodb"
	"github.com/italolelis/bundle_downloader/internal/storage/jsonfile"
	"github.com/italolelis/bundle_downloader/internal/storage/postgres"
	"github.com/italolelis/bundle_downloader/internal/storage/sqlite"
	"github.com/italolelis/bundle_downloader/internal/telemetry"
	"github.com/italolelis/bundle_downloader/internal/verifier"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("bundle downloader starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInterval:   cfg.Telemetry.OTLPInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Stores
	table, err := buildCategoryTable(cfg)
	if err != nil {
		return err
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close(ctx)

	products := storage.NewInstrumentedProductReader(stores.products, tel)
	orders := storage.NewInstrumentedOrderReader(stores.orders, tel)

	backend, err := buildContentStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build content store: %w", err)
	}

	contentStore := content.NewInstrumentedStore(backend, tel, "content_"+cfg.Content.Backend)

	// =========================================================================
	// Start Bundle Service
	svc := bundle.NewService(
		products,
		verifier.New(orders, products, table, tel),
		locator.New(contentStore, table, locator.Config{
			FolderPrefix: cfg.Content.FolderPrefix,
			MaxParallel:  cfg.MaxParallel,
		}),
		archive.NewStreamer(contentStore),
		table,
		tel,
	)

	// =========================================================================
	// Start Notification
	setupNotificationForArchiveFailures(ctx, svc, cfg)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, svc, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("serving bundle downloads",
		"catalog_driver", cfg.Catalog.Driver,
		"orders_driver", cfg.Orders.Driver,
		"content_backend", cfg.Content.Backend,
		"categories", len(table.IDs()),
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding downloads a deadline for completion.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

func setupNotificationForArchiveFailures(ctx context.Context, svc *bundle.Service, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	if cfg.DiscordWebhookURL == "" {
		// Drain so failures are not kept around; they are already logged by the service.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-svc.OnArchiveFailed():
				}
			}
		}()

		return
	}

	logger.Info("archive failures will be sent to discord")

	go notifier.WatchArchiveFailures(ctx, notifier.NewDiscordNotifier(cfg.DiscordWebhookURL), svc.OnArchiveFailed())
}

func buildCategoryTable(cfg *config.Config) (*catalog.Table, error) {
	if cfg.CategoryTableFile == "" {
		return catalog.DefaultTable(), nil
	}

	table, err := catalog.LoadTable(cfg.CategoryTableFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load category table: %w", err)
	}

	return table, nil
}

type storeSet struct {
	products storage.ProductReader
	orders   storage.OrderReader
	closers  []func() error
}

func (s *storeSet) Close(ctx context.Context) {
	for _, c := range s.closers {
		if err := c(); err != nil {
			logctx.LoggerFromContext(ctx).Error("failed to close store", "err", err)
		}
	}
}

// openStores is an abstract factory for the catalog and order readers. SQLite and Postgres
// connections are opened once and shared when both sides use the same driver.
func openStores(ctx context.Context, cfg *config.Config) (*storeSet, error) {
	s := &storeSet{}

	var (
		sqliteDB *sql.DB
		pgDB     *gorm.DB
	)

	sqliteConn := func() (*sql.DB, error) {
		if sqliteDB != nil {
			return sqliteDB, nil
		}

		db, err := sqlite.InitDB(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}

		sqliteDB = db
		s.closers = append(s.closers, db.Close)

		return db, nil
	}

	pgConn := func() (*gorm.DB, error) {
		if pgDB != nil {
			return pgDB, nil
		}

		db, err := postgres.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}

		pgDB = db
		s.closers = append(s.closers, func() error { return postgres.Close(db) })

		return db, nil
	}

	switch cfg.Catalog.Driver {
	case config.DriverFile:
		s.products = jsonfile.NewProductRepository(cfg.Catalog.File)
	case config.DriverSQLite:
		db, err := sqliteConn()
		if err != nil {
			return nil, err
		}

		s.products = sqlite.NewProductRepository(db)
	case config.DriverPostgres:
		db, err := pgConn()
		if err != nil {
			return nil, err
		}

		s.products = postgres.NewProductRepository(db)
	default:
		return nil, fmt.Errorf("invalid catalog driver: %s", cfg.Catalog.Driver)
	}

	switch cfg.Orders.Driver {
	case config.DriverFile:
		s.orders = jsonfile.NewOrderRepository(cfg.Orders.File)
	case config.DriverSQLite:
		db, err := sqliteConn()
		if err != nil {
			s.Close(ctx)

			return nil, err
		}

		s.orders = sqlite.NewOrderRepository(db)
	case config.DriverPostgres:
		db, err := pgConn()
		if err != nil {
			s.Close(ctx)

			return nil, err
		}

		s.orders = postgres.NewOrderRepository(db)
	case config.DriverDynamoDB:
		awsCfg, err := awsutil.Load(ctx, cfg.AWS.Region, cfg.AWS.EndpointURL)
		if err != nil {
			s.Close(ctx)

			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}

		s.orders = ddbstore.NewOrderRepository(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.OrdersTable)
	default:
		s.Close(ctx)

		return nil, fmt.Errorf("invalid orders driver: %s", cfg.Orders.Driver)
	}

	return s, nil
}

// buildContentStore is an abstract factory for the content backend.
func buildContentStore(ctx context.Context, cfg *config.Config) (content.Store, error) {
	switch cfg.Content.Backend {
	case config.BackendLocal:
		return local.New(cfg.Content.Root)
	case config.BackendS3:
		awsCfg, err := awsutil.Load(ctx, cfg.AWS.Region, cfg.AWS.EndpointURL)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWS.EndpointURL != ""
		})

		return s3store.New(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	case config.BackendPutio:
		store := putio.New(cfg.Putio.Token, cfg.Putio.RootFolderID)
		if err := store.Authenticate(ctx); err != nil {
			return nil, fmt.Errorf("authentication error: %w", err)
		}

		return store, nil
	}

	return nil, fmt.Errorf("invalid content backend: %s", cfg.Content.Backend)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, svc *bundle.Service, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Method(http.MethodGet, "/metrics", tel.Handler())
	r.Mount("/", rest.NewBundleHandler(svc).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, cfg.Telemetry.ServiceName),
		// Downloads in flight keep streaming through the shutdown grace period.
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}
}
