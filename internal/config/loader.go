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
const DefaultConfigFile = "relaydesk.yaml"

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
	setString(&cfg.Server.Port, "RELAYDESK_PORT")
	setString(&cfg.Server.CORSOrigin, "RELAYDESK_CORS_ORIGIN")
	setInt64(&cfg.Server.WebhookWorkers, "RELAYDESK_WEBHOOK_WORKERS")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RELAYDESK_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RELAYDESK_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RELAYDESK_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RELAYDESK_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RELAYDESK_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.WhatsApp.AppSecret, "WHATSAPP_APP_SECRET")
	setString(&cfg.WhatsApp.VerifyToken, "WHATSAPP_WEBHOOK_VERIFY_TOKEN")
	setString(&cfg.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
	setString(&cfg.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	setString(&cfg.WhatsApp.APIVersion, "WHATSAPP_API_VERSION")

	setString(&cfg.Automation.URL, "AUTOMATION_URL")
	setString(&cfg.Automation.Secret, "AUTOMATION_WEBHOOK_SECRET")
	setDuration(&cfg.Automation.Timeout, "AUTOMATION_TIMEOUT")

	setString(&cfg.Logging.Level, "RELAYDESK_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RELAYDESK_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RELAYDESK_LOG_ASYNC")

	setInt64(&cfg.Cache.MaxSizeMB, "RELAYDESK_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.DedupTTL, "RELAYDESK_DEDUP_TTL")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "RELAYDESK_OTLP_INSECURE")
}

func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.WhatsApp.AppSecret == "" {
		return errors.New("whatsapp.app_secret is required")
	}
	if cfg.WhatsApp.VerifyToken == "" {
		return errors.New("whatsapp.verify_token is required")
	}
	if cfg.Automation.Timeout <= 0 {
		return errors.New("automation.timeout must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
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

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
