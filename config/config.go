// Package config loads the journal configuration from JOURNAL_ prefixed environment variables.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/aouyang1/photojournal/remote"
)

const Prefix = "JOURNAL"

type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8080"`
	DataDir   string `envconfig:"DATA_DIR" default:"./data"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Remote store. Both URL and KEY must be set for the remote tier to exist.
	RemoteDriver  string        `envconfig:"REMOTE_DRIVER" default:"postgres"`
	RemoteURL     string        `envconfig:"REMOTE_URL"`
	RemoteKey     string        `envconfig:"REMOTE_KEY"`
	RemoteTable   string        `envconfig:"REMOTE_TABLE" default:"app_state"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"5s"`

	S3Bucket      string `envconfig:"S3_BUCKET"`
	S3Region      string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKeyID string `envconfig:"S3_ACCESS_KEY_ID"`
	S3Prefix      string `envconfig:"S3_PREFIX" default:"journal"`

	// Image classifier
	ClassifierAPIKey      string        `envconfig:"CLASSIFIER_API_KEY"`
	ClassifierCredentials string        `envconfig:"CLASSIFIER_CREDENTIALS"`
	ClassifyTimeout       time.Duration `envconfig:"CLASSIFY_TIMEOUT" default:"20s"`

	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"20971520"`
	MaxDimension   int   `envconfig:"MAX_DIMENSION" default:"2400"`

	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL" default:"1m"`

	// Inbox import is disabled while InboxDir is empty
	InboxDir      string        `envconfig:"INBOX_DIR"`
	InboxInterval time.Duration `envconfig:"INBOX_INTERVAL" default:"1m"`
}

// ResolveDefaults normalises values and rejects combinations the journal cannot run with.
func (c *Config) ResolveDefaults() error {
	c.RemoteDriver = strings.ToLower(strings.TrimSpace(c.RemoteDriver))
	if c.RemoteDriver == "" {
		c.RemoteDriver = remote.DriverPostgres
	}
	switch c.RemoteDriver {
	case remote.DriverPostgres, remote.DriverS3:
	default:
		return fmt.Errorf("unsupported REMOTE_DRIVER: %s", c.RemoteDriver)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		return fmt.Errorf("unsupported LOG_FORMAT: %s", c.LogFormat)
	}

	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("MAX_DIMENSION must not be negative, got %d", c.MaxDimension)
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = time.Minute
	}
	if c.InboxInterval <= 0 {
		c.InboxInterval = time.Minute
	}
	return nil
}

// New parses the environment, e.g. JOURNAL_REMOTE_URL, JOURNAL_DATA_DIR.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a local-only config rooted at dataDir.
func NewForTesting(dataDir string) *Config {
	return &Config{
		HTTPAddr:        "127.0.0.1:0",
		DataDir:         dataDir,
		LogLevel:        "debug",
		LogFormat:       "text",
		RemoteDriver:    remote.DriverPostgres,
		RemoteTable:     "app_state",
		RemoteTimeout:   time.Second,
		S3Region:        "us-east-1",
		S3Prefix:        "journal",
		ClassifyTimeout: time.Second,
		MaxUploadBytes:  20 << 20,
		MaxDimension:    2400,
		ProbeInterval:   time.Minute,
		InboxInterval:   time.Minute,
	}
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

// RemoteConfigured reports whether both the remote endpoint and credential are present.
func (c *Config) RemoteConfigured() bool {
	return c.Remote().Configured()
}

func (c *Config) Remote() remote.Config {
	return remote.Config{
		Driver:        c.RemoteDriver,
		Endpoint:      c.RemoteURL,
		Credential:    c.RemoteKey,
		Table:         c.RemoteTable,
		S3Bucket:      c.S3Bucket,
		S3Region:      c.S3Region,
		S3AccessKeyID: c.S3AccessKeyID,
		S3Prefix:      c.S3Prefix,
	}
}

func (c *Config) ClassifierConfigured() bool {
	return strings.TrimSpace(c.ClassifierAPIKey) != "" || strings.TrimSpace(c.ClassifierCredentials) != ""
}

func (c *Config) InboxEnabled() bool {
	return strings.TrimSpace(c.InboxDir) != ""
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// LogValue keeps credentials out of the startup log line.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_addr", c.HTTPAddr),
		slog.String("data_dir", c.DataDir),
		slog.String("remote_driver", c.RemoteDriver),
		slog.Bool("remote_configured", c.RemoteConfigured()),
		slog.Bool("classifier_configured", c.ClassifierConfigured()),
		slog.Int("max_dimension", c.MaxDimension),
		slog.Duration("probe_interval", c.ProbeInterval),
		slog.Bool("inbox_enabled", c.InboxEnabled()),
	)
}
