package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "backoffice.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)
	inferStorageProvider(&cfg.Storage)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "BACKOFFICE_PORT")
	setString(&cfg.Server.CORSOrigin, "BACKOFFICE_CORS_ORIGIN")
	setBool(&cfg.Server.AuthEnabled, "BACKOFFICE_AUTH_ENABLED")
	setString(&cfg.Server.BaseURL, "BACKOFFICE_BASE_URL")
	setString(&cfg.Auth.JWTSecret, "BACKOFFICE_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenExpiry, "BACKOFFICE_ACCESS_TOKEN_EXPIRY")
	setInt(&cfg.Auth.BcryptCost, "BACKOFFICE_BCRYPT_COST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "BACKOFFICE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "BACKOFFICE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "BACKOFFICE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "BACKOFFICE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "BACKOFFICE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.TaskStream, "BACKOFFICE_NATS_TASK_STREAM")
	setString(&cfg.NATS.CacheBucket, "BACKOFFICE_NATS_CACHE_BUCKET")
	setString(&cfg.Logging.Level, "BACKOFFICE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "BACKOFFICE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "BACKOFFICE_LOG_ASYNC")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "BACKOFFICE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "BACKOFFICE_CACHE_L1_TTL")
	setDuration(&cfg.Cache.L2TTL, "BACKOFFICE_CACHE_L2_TTL")
	setDuration(&cfg.Permissions.CacheTTL, "BACKOFFICE_PERMISSIONS_CACHE_TTL")

	// Rows
	setInt(&cfg.Rows.DefaultPageSize, "BACKOFFICE_ROWS_PAGE_SIZE")
	setInt(&cfg.Rows.MaxPageSize, "BACKOFFICE_ROWS_MAX_PAGE_SIZE")
	setString(&cfg.Rows.FolioPrefix, "BACKOFFICE_FOLIO_PREFIX")
	setInt(&cfg.Rows.FolioPad, "BACKOFFICE_FOLIO_PAD")

	// Storage
	setString(&cfg.Storage.Provider, "BACKOFFICE_STORAGE_PROVIDER")
	setString(&cfg.Storage.SupabaseURL, "SUPABASE_API_URL")
	setString(&cfg.Storage.SupabaseKey, "SUPABASE_KEY")
	setString(&cfg.Storage.Bucket, "BACKOFFICE_STORAGE_BUCKET")
	setString(&cfg.Storage.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.Storage.S3Region, "AWS_REGION")
	setString(&cfg.Storage.S3AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Storage.S3SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&cfg.Storage.S3PublicURL, "S3_PUBLIC_URL")
	setBool(&cfg.Storage.S3PathStyle, "S3_FORCE_PATH_STYLE")

	// SMTP
	setString(&cfg.SMTP.Host, "SMTP_HOST")
	setInt(&cfg.SMTP.Port, "SMTP_PORT")
	setString(&cfg.SMTP.From, "SMTP_FROM")
	setString(&cfg.SMTP.Password, "SMTP_PASSWORD")

	setInt(&cfg.Breaker.MaxFailures, "BACKOFFICE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "BACKOFFICE_BREAKER_TIMEOUT")

	setInt(&cfg.Tasks.MaxDeliver, "BACKOFFICE_TASKS_MAX_DELIVER")
	setInt(&cfg.Tasks.Concurrency, "BACKOFFICE_TASKS_CONCURRENCY")

	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

// inferStorageProvider picks a provider from the credentials present when
// none was configured explicitly.
func inferStorageProvider(s *Storage) {
	if s.Provider != "" {
		return
	}
	switch {
	case s.SupabaseURL != "" && s.SupabaseKey != "":
		s.Provider = "supabase"
	case s.S3AccessKeyID != "" && s.S3SecretAccessKey != "":
		s.Provider = "s3"
	default:
		s.Provider = "none"
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Server.AuthEnabled && len(cfg.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rows.DefaultPageSize < 1 {
		return errors.New("rows.default_page_size must be >= 1")
	}
	if cfg.Rows.MaxPageSize < cfg.Rows.DefaultPageSize {
		return errors.New("rows.max_page_size must be >= rows.default_page_size")
	}
	if cfg.Tasks.MaxDeliver < 1 {
		return errors.New("tasks.max_deliver must be >= 1")
	}
	switch cfg.Storage.Provider {
	case "none":
	case "supabase":
		if cfg.Storage.SupabaseURL == "" || cfg.Storage.SupabaseKey == "" {
			return errors.New("storage.supabase_url and storage.supabase_key are required for the supabase provider")
		}
	case "s3":
		if cfg.Storage.S3Region == "" && cfg.Storage.S3Endpoint == "" {
			return errors.New("storage.s3_region or storage.s3_endpoint is required for the s3 provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", cfg.Storage.Provider)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
