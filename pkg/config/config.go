package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerFile     = "file"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Config holds process configuration.
type Config struct {
	PolicyPath   string
	Ledger       string
	LedgerDSN    string
	RedisAddr    string
	NotarySeed   string
	CollusionKey string
	ArchiveURL   string
	TimeBudget   time.Duration
	EvidenceRPS  float64
	OTelEnabled  bool
	OTelEndpoint string
	LogLevel     string
	LogFormat    string
}

// Load loads configuration from environment variables.
// Unparseable numeric values fall back to their defaults; Validate reports
// the remaining inconsistencies.
func Load() *Config {
	ledger := os.Getenv("SEASA_LEDGER")
	if ledger == "" {
		ledger = LedgerMemory
	}

	dsn := os.Getenv("SEASA_LEDGER_DSN")
	if dsn == "" {
		switch ledger {
		case LedgerFile:
			dsn = "seasa-audit.jsonl"
		case LedgerSQLite:
			dsn = "seasa-audit.db"
		case LedgerPostgres:
			dsn = "postgres://seasa@localhost:5432/seasa?sslmode=disable"
		}
	}

	var budget time.Duration
	if v := os.Getenv("SEASA_TIME_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			budget = d
		}
	}

	rps := 50.0
	if v := os.Getenv("SEASA_EVIDENCE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			rps = f
		}
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text"
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	return &Config{
		PolicyPath:   os.Getenv("SEASA_POLICY_PATH"),
		Ledger:       ledger,
		LedgerDSN:    dsn,
		RedisAddr:    os.Getenv("SEASA_REDIS_ADDR"),
		NotarySeed:   os.Getenv("SEASA_NOTARY_SEED"),
		CollusionKey: os.Getenv("SEASA_COLLUSION_KEY"),
		ArchiveURL:   os.Getenv("SEASA_ARCHIVE_URL"),
		TimeBudget:   budget,
		EvidenceRPS:  rps,
		OTelEnabled:  os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint: endpoint,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
	}
}

// Validate checks values Load cannot repair.
func (c *Config) Validate() error {
	switch c.Ledger {
	case LedgerMemory, LedgerFile, LedgerSQLite, LedgerPostgres:
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger)
	}
	if _, err := c.NotarySeedBytes(); err != nil {
		return err
	}
	if _, err := c.CollusionKeyBytes(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// NotarySeedBytes decodes SEASA_NOTARY_SEED. Nil means unset.
func (c *Config) NotarySeedBytes() ([]byte, error) {
	return decodeHex("SEASA_NOTARY_SEED", c.NotarySeed)
}

// CollusionKeyBytes decodes SEASA_COLLUSION_KEY. Nil means unset.
func (c *Config) CollusionKeyBytes() ([]byte, error) {
	return decodeHex("SEASA_COLLUSION_KEY", c.CollusionKey)
}

func decodeHex(name, v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not hex: %w", name, err)
	}
	if len(b) < 16 {
		return nil, fmt.Errorf("config: %s must be at least 16 bytes", name)
	}
	return b, nil
}
