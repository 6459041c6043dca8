// Package config provides application configuration loaded from environment variables.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port                 string        // e.g. "8080"
	BackofficePort       string        // e.g. "8081"
	Env                  string        // "development" | "production"
	ReadTimeout          time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
	BackofficeAllowedIPs string        // comma-separated IPs; "" = allow all
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// JWTConfig holds JWT signing settings.
type JWTConfig struct {
	AccessSecret  string        // must be set
	RefreshSecret string        // must be set
	AccessTTL     time.Duration // default 15m
	RefreshTTL    time.Duration // default 720h (30 days)
}

// OracleConfig holds exchange API settings for the USD index price feed.
type OracleConfig struct {
	BinanceURL   string        // default "https://api.binance.com"
	BybitURL     string        // default "https://api.bybit.com"
	OKXURL       string        // default "https://www.okx.com"
	FetchTimeout time.Duration // default 2s
	CacheTTL     time.Duration // default 5s
	// Weight percentages (must sum to 100)
	BinanceWeight int // default 50
	BybitWeight   int // default 30
	OKXWeight     int // default 20
}

// RiskConfig holds lending risk engine settings.
type RiskConfig struct {
	CloseFactor       float64       // max fraction of debt covered per liquidation, default 0.5
	MinLiquidationUsd float64       // opportunities below this are skipped, default 1
	SnapshotStaleAge  time.Duration // snapshot older than this is flagged stale, default 5m
}

// ScannerConfig holds liquidation scanner settings.
type ScannerConfig struct {
	ScanInterval     time.Duration // default 30s
	ScanBatchSize    int           // candidates per scan, default 100
	RecomputesPerSec float64       // rate limit on per-candidate recomputes, default 20
	RefreshInterval  time.Duration // stale-snapshot refresh loop, default 1m
	RefreshBatchSize int           // stale snapshots per refresh pass, default 50
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	JWT     JWTConfig
	Oracle  OracleConfig
	Risk    RiskConfig
	Scanner ScannerConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	var errs []error

	// JWT secrets are mandatory
	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be set"))
	}

	// In production, DB DSN must be explicit
	if c.IsProd() && c.DB.DSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
	}

	// Oracle weights must sum to 100
	total := c.Oracle.BinanceWeight + c.Oracle.BybitWeight + c.Oracle.OKXWeight
	if total != 100 {
		errs = append(errs, fmt.Errorf(
			"oracle weights must sum to 100, got %d (Binance=%d Bybit=%d OKX=%d)",
			total, c.Oracle.BinanceWeight, c.Oracle.BybitWeight, c.Oracle.OKXWeight,
		))
	}

	// Close factor sanity check
	if c.Risk.CloseFactor <= 0 || c.Risk.CloseFactor > 1 {
		errs = append(errs, fmt.Errorf(
			"RISK_CLOSE_FACTOR must be in (0, 1], got %.4f", c.Risk.CloseFactor,
		))
	}
	if c.Risk.MinLiquidationUsd < 0 {
		errs = append(errs, fmt.Errorf(
			"RISK_MIN_LIQUIDATION_USD must be >= 0, got %.4f", c.Risk.MinLiquidationUsd,
		))
	}

	if c.Scanner.RecomputesPerSec <= 0 {
		errs = append(errs, fmt.Errorf(
			"SCANNER_RECOMPUTES_PER_SEC must be positive, got %.2f", c.Scanner.RecomputesPerSec,
		))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from environment variables.
// Panics if loading fails — call this early in main() to catch misconfigurations
// at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Internal loader
// ──────────────────────────────────────────────────────────────────────────────

func load() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	cfg.Server = ServerConfig{
		Port:                 getEnv("SERVER_PORT", "8080"),
		BackofficePort:       getEnv("BACKOFFICE_PORT", "8081"),
		Env:                  getEnv("ENVIRONMENT", "development"),
		ReadTimeout:          getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:         getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		BackofficeAllowedIPs: getEnv("BACKOFFICE_ALLOWED_IPS", ""),
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "lumenfi_lending"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{
		AccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		RefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("JWT_REFRESH_TTL", 30*24*time.Hour),
	}

	// ── Oracle ────────────────────────────────────────────────────────────────
	binW, err := getInt("ORACLE_BINANCE_WEIGHT", 50)
	if err != nil {
		return nil, fmt.Errorf("ORACLE_BINANCE_WEIGHT: %w", err)
	}
	byW, err := getInt("ORACLE_BYBIT_WEIGHT", 30)
	if err != nil {
		return nil, fmt.Errorf("ORACLE_BYBIT_WEIGHT: %w", err)
	}
	okxW, err := getInt("ORACLE_OKX_WEIGHT", 20)
	if err != nil {
		return nil, fmt.Errorf("ORACLE_OKX_WEIGHT: %w", err)
	}

	cfg.Oracle = OracleConfig{
		BinanceURL:    getEnv("ORACLE_BINANCE_URL", "https://api.binance.com"),
		BybitURL:      getEnv("ORACLE_BYBIT_URL", "https://api.bybit.com"),
		OKXURL:        getEnv("ORACLE_OKX_URL", "https://www.okx.com"),
		FetchTimeout:  getDuration("ORACLE_FETCH_TIMEOUT", 2*time.Second),
		CacheTTL:      getDuration("ORACLE_CACHE_TTL", 5*time.Second),
		BinanceWeight: binW,
		BybitWeight:   byW,
		OKXWeight:     okxW,
	}

	// ── Risk ──────────────────────────────────────────────────────────────────
	closeFactor, err := getFloat("RISK_CLOSE_FACTOR", 0.5)
	if err != nil {
		return nil, fmt.Errorf("RISK_CLOSE_FACTOR: %w", err)
	}
	minLiq, err := getFloat("RISK_MIN_LIQUIDATION_USD", 1)
	if err != nil {
		return nil, fmt.Errorf("RISK_MIN_LIQUIDATION_USD: %w", err)
	}

	cfg.Risk = RiskConfig{
		CloseFactor:       closeFactor,
		MinLiquidationUsd: minLiq,
		SnapshotStaleAge:  getDuration("RISK_SNAPSHOT_STALE_AGE", 5*time.Minute),
	}

	// ── Scanner ───────────────────────────────────────────────────────────────
	batch, err := getInt("SCANNER_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("SCANNER_BATCH_SIZE: %w", err)
	}
	rps, err := getFloat("SCANNER_RECOMPUTES_PER_SEC", 20)
	if err != nil {
		return nil, fmt.Errorf("SCANNER_RECOMPUTES_PER_SEC: %w", err)
	}
	refreshBatch, err := getInt("SCANNER_REFRESH_BATCH_SIZE", 50)
	if err != nil {
		return nil, fmt.Errorf("SCANNER_REFRESH_BATCH_SIZE: %w", err)
	}

	cfg.Scanner = ScannerConfig{
		ScanInterval:     getDuration("SCANNER_SCAN_INTERVAL", 30*time.Second),
		ScanBatchSize:    batch,
		RecomputesPerSec: rps,
		RefreshInterval:  getDuration("SCANNER_REFRESH_INTERVAL", time.Minute),
		RefreshBatchSize: refreshBatch,
	}

	return cfg, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Log warning and fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
