package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverDynamoDB = "dynamodb"

	BackendLocal = "local"
	BackendS3    = "s3"
	BackendPutio = "putio"
)

// Config struct for environment variables.
type Config struct {
	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	MaxParallel       int    `envconfig:"MAX_PARALLEL" default:"4"`
	CategoryTableFile string `envconfig:"CATEGORY_TABLE_FILE"`

	Catalog struct {
		Driver string `split_words:"true" default:"file"`
		File   string `split_words:"true" default:"data/products.json"`
	}

	Orders struct {
		Driver string `split_words:"true" default:"file"`
		File   string `split_words:"true" default:"data/orders.json"`
	}

	// SQLite database shared by the catalog and orders when their driver is sqlite.
	DBPath string `envconfig:"DB_PATH" default:"storefront.db"`

	Postgres struct {
		URL      string `split_words:"true"`
		MaxConns int32  `split_words:"true" default:"10"`
	}

	DynamoDB struct {
		OrdersTable string `split_words:"true"`
	}

	Content struct {
		Backend      string `split_words:"true" default:"local"`
		Root         string `split_words:"true" default:"public"`
		FolderPrefix string `split_words:"true" default:"Digital Products"`
	}

	AWS struct {
		Region      string `split_words:"true" default:"us-east-1"`
		EndpointURL string `split_words:"true"`
	}

	S3 struct {
		Bucket string `split_words:"true"`
		Prefix string `split_words:"true"`
	}

	Putio struct {
		Token        string `split_words:"true"`
		RootFolderID int64  `split_words:"true" default:"0"`
	}

	Telemetry struct {
		Enabled      bool          `split_words:"true" default:"true"`
		ServiceName  string        `split_words:"true" default:"bundle_downloader"`
		OTLPEndpoint string        `envconfig:"OTLP_ENDPOINT"`
		OTLPInterval time.Duration `envconfig:"OTLP_INTERVAL" default:"30s"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks driver names and the settings each selected backend needs.
func (c *Config) Validate() error {
	var errs []error

	switch c.Catalog.Driver {
	case DriverFile, DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres catalog"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid catalog driver: %s", c.Catalog.Driver))
	}

	switch c.Orders.Driver {
	case DriverFile, DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for postgres orders"))
		}
	case DriverDynamoDB:
		if c.DynamoDB.OrdersTable == "" {
			errs = append(errs, errors.New("DYNAMODB_ORDERS_TABLE is required for dynamodb orders"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid orders driver: %s", c.Orders.Driver))
	}

	switch c.Content.Backend {
	case BackendLocal:
		if c.Content.Root == "" {
			errs = append(errs, errors.New("CONTENT_ROOT is required for the local content backend"))
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 content backend"))
		}
	case BackendPutio:
		if c.Putio.Token == "" {
			errs = append(errs, errors.New("PUTIO_TOKEN is required for the putio content backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid content backend: %s", c.Content.Backend))
	}

	if c.MaxParallel < 1 {
		errs = append(errs, fmt.Errorf("MAX_PARALLEL must be positive, got %d", c.MaxParallel))
	}

	return errors.Join(errs...)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
