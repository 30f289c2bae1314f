// Package config loads tecp-ledgerd's runtime configuration: plain
// env vars for the usual 12-factor knobs (port, log level, store DSN),
// extended with an optional YAML issuer-config file for the things
// that don't fit an env var well (keyring seed material and the active
// kid, per-policy CEL expressions), matching the teacher's
// Load-from-os.Getenv pattern in core/pkg/config/config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds tecp-ledgerd's process-level configuration.
type Config struct {
	Port         string
	LogLevel     string
	StoreDriver  string // "memory", "postgres", "sqlite"
	StoreDSN     string
	RedisAddr    string
	RateLimitRPS float64
	IssuerFile   string
	OTLPEndpoint string // empty disables metrics export
	S3Bucket     string // empty disables STH archival
	S3Region     string
	S3Endpoint   string
	S3Prefix     string
}

// Load reads configuration from environment variables, defaulting
// anything unset.
func Load() *Config {
	port := os.Getenv("TECP_PORT")
	if port == "" {
		port = "8088"
	}

	logLevel := os.Getenv("TECP_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	driver := os.Getenv("TECP_STORE_DRIVER")
	if driver == "" {
		driver = "memory"
	}

	dsn := os.Getenv("TECP_STORE_DSN")

	rps := 50.0
	if v := os.Getenv("TECP_RATE_LIMIT_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			rps = parsed
		}
	}

	return &Config{
		Port:         port,
		LogLevel:     logLevel,
		StoreDriver:  driver,
		StoreDSN:     dsn,
		RedisAddr:    os.Getenv("TECP_REDIS_ADDR"),
		RateLimitRPS: rps,
		IssuerFile:   os.Getenv("TECP_ISSUER_CONFIG"),
		OTLPEndpoint: os.Getenv("TECP_OTLP_ENDPOINT"),
		S3Bucket:     os.Getenv("TECP_ARCHIVE_S3_BUCKET"),
		S3Region:     os.Getenv("TECP_ARCHIVE_S3_REGION"),
		S3Endpoint:   os.Getenv("TECP_ARCHIVE_S3_ENDPOINT"),
		S3Prefix:     os.Getenv("TECP_ARCHIVE_S3_PREFIX"),
	}
}

// KeySpec is one keyring entry as expressed in the issuer config file.
type KeySpec struct {
	Kid       string    `yaml:"kid"`
	SeedHex   string    `yaml:"seed_hex"`
	Status    string    `yaml:"status"`
	NotBefore time.Time `yaml:"not_before"`
	NotAfter  time.Time `yaml:"not_after"`
}

// PolicySpec is one CEL-backed declarative policy as expressed in the
// issuer config file.
type PolicySpec struct {
	ID         string `yaml:"id"`
	Expression string `yaml:"expression"`
}

// IssuerConfig is the YAML-described surface the env-var Config can't
// reasonably express: which keys this issuer holds and which
// CEL policies it exposes by id.
type IssuerConfig struct {
	ActiveKid string       `yaml:"active_kid"`
	Keys      []KeySpec    `yaml:"keys"`
	Policies  []PolicySpec `yaml:"policies"`
}

// LoadIssuerConfig reads and parses the YAML file at path. A missing
// IssuerFile in Config is not an error at this layer; callers decide
// whether an issuer with no configured keys is acceptable (it never is
// outside of a throwaway dev instance).
func LoadIssuerConfig(path string) (*IssuerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read issuer config %s: %w", path, err)
	}
	var ic IssuerConfig
	if err := yaml.Unmarshal(raw, &ic); err != nil {
		return nil, fmt.Errorf("parse issuer config %s: %w", path, err)
	}
	return &ic, nil
}
