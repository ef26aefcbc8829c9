package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benedict2310/sftpwizard/internal/conntest"
	"github.com/benedict2310/sftpwizard/internal/transport"
)

const (
	DefaultBindAddr             = "127.0.0.1"
	DefaultPort                 = 3001
	DefaultDataDir              = "/var/lib/sftpwizardd"
	DefaultLogLevel             = "info"
	DefaultMaxConcurrentTests   = 16
	DefaultMaxConnections       = 256
	DefaultMaxBodyBytes         = 256 << 10
	DefaultRateLimitPerSecond   = 1.0
	DefaultRateLimitBurst       = 5
	DefaultHistoryRetentionDays = 30
	DefaultMaxRetriesLimit      = 10
	DefaultMaxTestSeconds       = 300

	// StatusCodesCompat answers every rejected test with 400.
	StatusCodesCompat = "compat"
	// StatusCodesDistinct answers validation errors with 422 and connection
	// failures with 502.
	StatusCodesDistinct = "distinct"
)

type Config struct {
	BindAddr           string          `yaml:"bind"`
	Port               int             `yaml:"port"`
	DataDir            string          `yaml:"dataDir"`
	LogLevel           string          `yaml:"logLevel"`
	DBPath             string          `yaml:"dbPath"`
	DBWAL              bool            `yaml:"dbWAL"`
	APIToken           string          `yaml:"apiToken,omitempty"`
	History            HistoryConfig   `yaml:"history"`
	MaxConcurrentTests int             `yaml:"maxConcurrentTests"`
	MaxConnections     int             `yaml:"maxConnections"`
	MaxBodyBytes       int             `yaml:"maxBodyBytes"`
	// MaxRetriesLimit caps the maxRetries a request may ask for.
	MaxRetriesLimit    int             `yaml:"maxRetriesLimit"`
	// MaxTestSeconds bounds one connection test including retry waits.
	MaxTestSeconds     int             `yaml:"maxTestSeconds"`
	RateLimit          RateLimitConfig `yaml:"rateLimit"`
	RetryPolicy        string          `yaml:"retryPolicy"`
	StatusCodes        string          `yaml:"statusCodes"`
	KnownHostsPath     string          `yaml:"knownHostsPath,omitempty"`
	Proxy              string          `yaml:"proxy,omitempty"`
}

type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// RetentionDays <= 0 keeps entries forever.
	RetentionDays int `yaml:"retentionDays"`
}

// RateLimitConfig limits connection tests per client address. PerSecond <= 0
// disables the limiter.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst"`
}

func DefaultConfig() Config {
	return Config{
		BindAddr:           DefaultBindAddr,
		Port:               DefaultPort,
		DataDir:            DefaultDataDir,
		LogLevel:           DefaultLogLevel,
		DBPath:             "",
		DBWAL:              true,
		APIToken:           "",
		History:            HistoryConfig{Enabled: true, RetentionDays: DefaultHistoryRetentionDays},
		MaxConcurrentTests: DefaultMaxConcurrentTests,
		MaxConnections:     DefaultMaxConnections,
		MaxBodyBytes:       DefaultMaxBodyBytes,
		MaxRetriesLimit:    DefaultMaxRetriesLimit,
		MaxTestSeconds:     DefaultMaxTestSeconds,
		RateLimit:          RateLimitConfig{PerSecond: DefaultRateLimitPerSecond, Burst: DefaultRateLimitBurst},
		RetryPolicy:        string(conntest.RetryAll),
		StatusCodes:        StatusCodesCompat,
	}
}

func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(configPath) != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}
	cfg.APIToken = strings.TrimSpace(cfg.APIToken)

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"SFTPWIZARDD_BIND":         &cfg.BindAddr,
		"SFTPWIZARDD_DATA_DIR":     &cfg.DataDir,
		"SFTPWIZARDD_DB_PATH":      &cfg.DBPath,
		"SFTPWIZARDD_API_TOKEN":    &cfg.APIToken,
		"SFTPWIZARDD_RETRY_POLICY": &cfg.RetryPolicy,
		"SFTPWIZARDD_STATUS_CODES": &cfg.StatusCodes,
		"SFTPWIZARDD_KNOWN_HOSTS":  &cfg.KnownHostsPath,
		"SFTPWIZARDD_PROXY":        &cfg.Proxy,
	}
	for key, dst := range strs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(os.Getenv("SFTPWIZARDD_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	ints := map[string]*int{
		"SFTPWIZARDD_PORT":                   &cfg.Port,
		"SFTPWIZARDD_MAX_CONCURRENT_TESTS":   &cfg.MaxConcurrentTests,
		"SFTPWIZARDD_MAX_CONNECTIONS":        &cfg.MaxConnections,
		"SFTPWIZARDD_MAX_BODY_BYTES":         &cfg.MaxBodyBytes,
		"SFTPWIZARDD_MAX_RETRIES_LIMIT":      &cfg.MaxRetriesLimit,
		"SFTPWIZARDD_MAX_TEST_SECONDS":       &cfg.MaxTestSeconds,
		"SFTPWIZARDD_RATE_LIMIT_BURST":       &cfg.RateLimit.Burst,
		"SFTPWIZARDD_HISTORY_RETENTION_DAYS": &cfg.History.RetentionDays,
	}
	for key, dst := range ints {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s=%q: %w", key, v, err)
			}
			*dst = parsed
		}
	}

	bools := map[string]*bool{
		"SFTPWIZARDD_DB_WAL":          &cfg.DBWAL,
		"SFTPWIZARDD_HISTORY_ENABLED": &cfg.History.Enabled,
	}
	for key, dst := range bools {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse %s=%q: %w", key, v, err)
			}
			*dst = parsed
		}
	}

	if v := strings.TrimSpace(os.Getenv("SFTPWIZARDD_RATE_LIMIT_PER_SECOND")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse SFTPWIZARDD_RATE_LIMIT_PER_SECOND=%q: %w", v, err)
		}
		cfg.RateLimit.PerSecond = parsed
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("bind address is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in range 0..65535")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory is required")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxConcurrentTests < 0 {
		return fmt.Errorf("maxConcurrentTests must be >= 0")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("maxConnections must be >= 0")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("maxBodyBytes must be >= 0")
	}
	if c.MaxRetriesLimit < 0 {
		return fmt.Errorf("maxRetriesLimit must be >= 0")
	}
	if c.MaxTestSeconds < 0 {
		return fmt.Errorf("maxTestSeconds must be >= 0")
	}
	if c.RateLimit.PerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rateLimit.burst must be >= 1 when rateLimit.perSecond is set")
	}
	if _, err := conntest.ParseRetryPolicy(c.RetryPolicy); err != nil {
		return err
	}
	switch strings.TrimSpace(c.StatusCodes) {
	case "", StatusCodesCompat, StatusCodesDistinct:
	default:
		return fmt.Errorf("invalid statusCodes %q (expected %s|%s)", c.StatusCodes, StatusCodesCompat, StatusCodesDistinct)
	}
	if _, err := transport.NewDialer(c.Proxy); err != nil {
		return err
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

func (c Config) maxConcurrentTests() int64 {
	// 0 means "use server default", not "unlimited".
	if c.MaxConcurrentTests <= 0 {
		return DefaultMaxConcurrentTests
	}
	return int64(c.MaxConcurrentTests)
}

func (c Config) maxBodyBytes() int64 {
	if c.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return int64(c.MaxBodyBytes)
}

func (c Config) maxRetriesLimit() int {
	if c.MaxRetriesLimit <= 0 {
		return DefaultMaxRetriesLimit
	}
	return c.MaxRetriesLimit
}

func (c Config) maxTestDuration() time.Duration {
	if c.MaxTestSeconds <= 0 {
		return DefaultMaxTestSeconds * time.Second
	}
	return time.Duration(c.MaxTestSeconds) * time.Second
}
