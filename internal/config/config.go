// Package config loads and validates docresolver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Resolver ResolverConfig `mapstructure:"resolver"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ResolverConfig governs mirror selection and the resolution retry loop.
type ResolverConfig struct {
	// Mirrors seeds the mirror directory; when empty, mirrors are discovered
	// from AggregatorURL.
	Mirrors           []string      `mapstructure:"mirrors"`
	AggregatorURL     string        `mapstructure:"aggregator_url"`
	MirrorPattern     string        `mapstructure:"mirror_pattern"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	MaxMirrorAttempts int           `mapstructure:"max_mirror_attempts"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	ContentType       string        `mapstructure:"content_type"`
	ContentExtensions []string      `mapstructure:"content_extensions"`
}

// HTTPConfig configures the mirror HTTP client.
type HTTPConfig struct {
	UserAgent          string        `mapstructure:"user_agent"`
	Timeout            time.Duration `mapstructure:"timeout"`
	Proxy              string        `mapstructure:"proxy"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	RateLimitRPS       float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
	MaxBodyBytes       int           `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the headless render fallback.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxParallel int           `mapstructure:"max_parallel"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	// PromotionThreshold is the page size below which script-heavy mirror
	// pages are rendered.
	PromotionThreshold int `mapstructure:"promotion_threshold"`
}

// StorageConfig selects where documents are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	OutputDir string `mapstructure:"output_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional resolution ledger.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// BatchConfig sizes the batch worker pool.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Storage backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCRESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resolver.mirrors", []string{})
	v.SetDefault("resolver.aggregator_url", "https://sci-hub.now.sh/")
	v.SetDefault("resolver.mirror_pattern", `sci-hub\.[a-z]{2,4}`)
	v.SetDefault("resolver.max_attempts", 3)
	v.SetDefault("resolver.max_mirror_attempts", 16)
	v.SetDefault("resolver.backoff_base", "500ms")
	v.SetDefault("resolver.backoff_max", "10s")
	v.SetDefault("resolver.content_type", "application/pdf")
	v.SetDefault("resolver.content_extensions", []string{"pdf"})
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.proxy", "")
	v.SetDefault("http.insecure_skip_verify", true)
	v.SetDefault("http.rate_limit_rps", 1.0)
	v.SetDefault("http.rate_limit_burst", 2)
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", "45s")
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.output_dir", ".")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "resolutions")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("batch.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "2m")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Resolver.MaxAttempts <= 0 {
		return fmt.Errorf("resolver.max_attempts must be > 0")
	}
	if c.Resolver.MaxMirrorAttempts <= 0 {
		return fmt.Errorf("resolver.max_mirror_attempts must be > 0")
	}
	if len(c.Resolver.Mirrors) == 0 && c.Resolver.AggregatorURL == "" {
		return fmt.Errorf("resolver.mirrors or resolver.aggregator_url must be set")
	}
	if c.Resolver.ContentType == "" {
		return fmt.Errorf("resolver.content_type must be set")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rate_limit_rps must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.OutputDir == "" {
			return fmt.Errorf("storage.output_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("batch.workers must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}
