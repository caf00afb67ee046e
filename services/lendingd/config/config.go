package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lendledger/gateway/middleware"
	"lendledger/native/lending"
	"lendledger/storage"
)

const (
	defaultListen    = ":8080"
	defaultGenesis   = "lendingd/genesis.toml"
	defaultStorePath = "lendingd/ledger"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress string              `yaml:"listen"`
	ReadTimeout   time.Duration       `yaml:"read_timeout"`
	WriteTimeout  time.Duration       `yaml:"write_timeout"`
	IdleTimeout   time.Duration       `yaml:"idle_timeout"`
	GenesisPath   string              `yaml:"genesis"`
	Storage       StorageConfig       `yaml:"storage"`
	Lending       LendingConfig       `yaml:"lending"`
	Payouts       PayoutConfig        `yaml:"payouts"`
	TLS           TLSConfig           `yaml:"tls"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimits    map[string]Limit    `yaml:"rate_limits"`
	CORS          CORSConfig          `yaml:"cors"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// Location returns the path or DSN handed to storage.Open.
func (s StorageConfig) Location() string {
	switch s.Backend {
	case "postgres", "sqlite":
		if s.DSN != "" {
			return s.DSN
		}
	}
	return s.Path
}

// LendingConfig maps onto lending.Params.
type LendingConfig struct {
	DepositMode     string `yaml:"deposit_mode"`
	FixedBorrowRate string `yaml:"fixed_borrow_rate"`
	MaxLTVBps       uint64 `yaml:"max_ltv_bps"`
	PayoutDenom     string `yaml:"payout_denom"`
}

// Params converts the section into engine parameters.
func (l LendingConfig) Params() (lending.Params, error) {
	params := lending.Params{
		DepositMode: lending.DepositMode(l.DepositMode),
		MaxLTVBps:   l.MaxLTVBps,
		PayoutDenom: l.PayoutDenom,
	}.Normalize()
	if strings.TrimSpace(l.FixedBorrowRate) != "" {
		rate, err := lending.ParseDecimal(l.FixedBorrowRate)
		if err != nil {
			return lending.Params{}, fmt.Errorf("fixed_borrow_rate: %w", err)
		}
		params.FixedBorrowRate = &rate
	}
	if err := params.Validate(); err != nil {
		return lending.Params{}, err
	}
	return params, nil
}

// PayoutConfig tunes the outbox processor.
type PayoutConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	PoliciesPath string        `yaml:"policies"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer JWT verification.
type AuthConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	HMACSecret  string        `yaml:"hmac_secret"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	AdminScopes []string      `yaml:"admin_scopes"`
	ClockSkew   time.Duration `yaml:"clock_skew"`
}

// IsEnabled reports whether authentication is on. It defaults to true.
func (a AuthConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Limit is a per-route rate limit.
type Limit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ObservabilityConfig struct {
	Metrics     bool `yaml:"metrics"`
	Tracing     bool `yaml:"tracing"`
	LogRequests bool `yaml:"log_requests"`
}

// LoggingConfig selects the level and optional rotated log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML configuration from disk, applies LEND_* environment
// overrides and validates the result. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddress: defaultListen,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		GenesisPath:   defaultGenesis,
		Storage:       StorageConfig{Backend: storage.BackendLevelDB, Path: defaultStorePath},
		Payouts:       PayoutConfig{PollInterval: 5 * time.Second, BatchSize: 100},
		Observability: ObservabilityConfig{Metrics: true, Tracing: true, LogRequests: true},
	}
}

const (
	envListen        = "LEND_LISTEN"
	envStorageDSN    = "LEND_STORAGE_DSN"
	envHMACSecret    = "LEND_AUTH_HMAC_SECRET"
	envAllowInsecure = "LEND_ALLOW_INSECURE"
	envLogLevel      = "LEND_LOG_LEVEL"
)

func (cfg *Config) applyEnv() {
	cfg.ListenAddress = stringFromEnv(envListen, cfg.ListenAddress)
	cfg.Storage.DSN = stringFromEnv(envStorageDSN, cfg.Storage.DSN)
	cfg.Auth.HMACSecret = stringFromEnv(envHMACSecret, cfg.Auth.HMACSecret)
	cfg.TLS.AllowInsecure = boolFromEnv(envAllowInsecure, cfg.TLS.AllowInsecure)
	cfg.Logging.Level = stringFromEnv(envLogLevel, cfg.Logging.Level)
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.GenesisPath = strings.TrimSpace(cfg.GenesisPath)
	if cfg.GenesisPath == "" {
		cfg.GenesisPath = defaultGenesis
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendLevelDB
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Storage.DSN = strings.TrimSpace(cfg.Storage.DSN)
	if cfg.Payouts.PollInterval <= 0 {
		cfg.Payouts.PollInterval = 5 * time.Second
	}
	if cfg.Payouts.BatchSize <= 0 {
		cfg.Payouts.BatchSize = 100
	}
	cfg.Payouts.PoliciesPath = strings.TrimSpace(cfg.Payouts.PoliciesPath)
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.TLS.ClientCAPath = strings.TrimSpace(cfg.TLS.ClientCAPath)
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	scopes := make([]string, 0, len(cfg.Auth.AdminScopes))
	for _, scope := range cfg.Auth.AdminScopes {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	if len(scopes) == 0 {
		scopes = []string{middleware.DefaultAdminScope}
	}
	cfg.Auth.AdminScopes = scopes
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	switch cfg.Storage.Backend {
	case storage.BackendMemory:
	case storage.BackendLevelDB, storage.BackendBolt:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for %s backend", cfg.Storage.Backend)
		}
	case storage.BackendPostgres, storage.BackendSQLite:
		if cfg.Storage.Location() == "" {
			return fmt.Errorf("storage: dsn required for %s backend", cfg.Storage.Backend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	if _, err := cfg.Lending.Params(); err != nil {
		return fmt.Errorf("lending: %w", err)
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if cfg.Auth.IsEnabled() && cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret required when auth is enabled")
	}
	for name, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: values must be non-negative", name)
		}
	}
	return nil
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

// Enabled reports whether the server terminates TLS.
func (cfg TLSConfig) Enabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func boolFromEnv(key string, fallback bool) bool {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}
