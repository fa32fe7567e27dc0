package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultPollIntervalSeconds is the delay between file size checks.
	DefaultPollIntervalSeconds = 1

	// DefaultStableTimeoutSeconds bounds how long a file is watched for
	// stability before it is left for a later event.
	DefaultStableTimeoutSeconds = 60

	// DefaultFailureBackoffSeconds is the pause after a failed upload.
	DefaultFailureBackoffSeconds = 60

	// DefaultS3Region is used when no region is configured.
	DefaultS3Region = "us-east-1"
)

// Config is the root configuration for shippoor.
type Config struct {
	Global GlobalConfig `yaml:"global"`
	Watch  WatchConfig  `yaml:"watch"`
	S3     *S3Config    `yaml:"s3,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// WatchConfig tunes the stabilization and upload pipeline.
type WatchConfig struct {
	Hostname              string `yaml:"hostname"`
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	StableTimeoutSeconds  int    `yaml:"stable_timeout_seconds"`
	FailureBackoffSeconds int    `yaml:"failure_backoff_seconds"`
}

// S3Config contains destination storage settings for S3-compatible stores.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region,omitempty"`
	EndpointURL     string `yaml:"endpoint_url,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty"`
	StorageClass    string `yaml:"storage_class,omitempty"`
	ACL             string `yaml:"acl,omitempty"`

	// Preflight writes a probe object at startup to fail fast on
	// misconfiguration before any file is touched.
	Preflight bool `yaml:"preflight,omitempty"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	return cfg
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Watch.PollIntervalSeconds == 0 {
		c.Watch.PollIntervalSeconds = DefaultPollIntervalSeconds
	}

	if c.Watch.StableTimeoutSeconds == 0 {
		c.Watch.StableTimeoutSeconds = DefaultStableTimeoutSeconds
	}

	if c.Watch.FailureBackoffSeconds == 0 {
		c.Watch.FailureBackoffSeconds = DefaultFailureBackoffSeconds
	}

	if c.S3 != nil && c.S3.Region == "" {
		c.S3.Region = DefaultS3Region
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Watch.PollIntervalSeconds < 0 {
		return fmt.Errorf("poll_interval_seconds must not be negative")
	}

	if c.Watch.StableTimeoutSeconds < 0 {
		return fmt.Errorf("stable_timeout_seconds must not be negative")
	}

	if c.Watch.FailureBackoffSeconds < 0 {
		return fmt.Errorf("failure_backoff_seconds must not be negative")
	}

	if c.S3 != nil {
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			return fmt.Errorf("access_key_id and secret_access_key must be set together")
		}

		if c.S3.Preflight && c.S3.Bucket == "" {
			return fmt.Errorf("preflight requires a bucket")
		}
	}

	return nil
}

// Bucket returns the configured destination bucket, or "" when uploads are
// disabled.
func (c *Config) Bucket() string {
	if c.S3 == nil {
		return ""
	}

	return c.S3.Bucket
}
