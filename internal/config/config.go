// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/progress-monitor/internal/metering"
)

// EnvPrefix namespaces environment overrides, e.g. PROGMON_SERVER_PORT.
const EnvPrefix = "PROGMON"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metering MeteringConfig `mapstructure:"metering"`
	Progress ProgressConfig `mapstructure:"progress"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MeteringConfig selects which operations are tracked and how often they notify.
type MeteringConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Threshold int64    `mapstructure:"threshold"`
	Methods   []string `mapstructure:"methods"`
	Hosts     []string `mapstructure:"hosts"`
	// Watch reloads this section when the config file changes.
	Watch bool `mapstructure:"watch"`
}

// Policy converts the section into a metering policy.
func (m MeteringConfig) Policy() metering.Policy {
	if !m.Enabled {
		return metering.DefaultPolicy{}
	}
	return metering.NewRulesPolicy(metering.Rules{
		Enabled:   true,
		Threshold: m.Threshold,
		Methods:   m.Methods,
		Hosts:     m.Hosts,
	})
}

// ProgressConfig tunes the async hub and chooses sinks.
type ProgressConfig struct {
	Hub   HubConfig   `mapstructure:"hub"`
	Sinks SinksConfig `mapstructure:"sinks"`
}

// HubConfig mirrors progress.HubConfig.
type HubConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	// CoalesceUpdates forwards only the newest update per source in a batch.
	CoalesceUpdates bool `mapstructure:"coalesce_updates"`
}

// SinksConfig enables individual sinks.
type SinksConfig struct {
	Log        bool `mapstructure:"log"`
	Prometheus bool `mapstructure:"prometheus"`
	Store      bool `mapstructure:"store"`
	PubSub     bool `mapstructure:"pubsub"`
}

// DBConfig controls the transfer history store.
type DBConfig struct {
	// Driver is "memory" or "postgres".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// StorageConfig sets where fetched bodies land when no explicit destination is given.
type StorageConfig struct {
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// Destination returns the default fetch destination. A bucket wins over a
// local directory; "" means the working directory.
func (s StorageConfig) Destination() string {
	if s.GCSBucket != "" {
		return "gs://" + s.GCSBucket + "/"
	}
	return s.LocalDir
}

// PubSubConfig holds the topic progress events are published to.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// TracingConfig controls the OpenTelemetry span listener.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// FetchConfig drives the fetch command.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	// NoColor disables ANSI colors in the progress renderer.
	NoColor bool `mapstructure:"no_color"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v, err := newViper(path)
	if err != nil {
		return Config{}, err
	}
	return decode(v)
}

// LoadDotEnv exports variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load dotenv %s: %w", path, err)
	}
	return nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (Config, error) {
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metering.enabled", true)
	v.SetDefault("metering.threshold", metering.DefaultThreshold)
	v.SetDefault("metering.methods", []string{})
	v.SetDefault("metering.hosts", []string{})
	v.SetDefault("metering.watch", false)
	v.SetDefault("progress.hub.buffer_size", 4096)
	v.SetDefault("progress.hub.max_batch_events", 1000)
	v.SetDefault("progress.hub.max_batch_wait", 500*time.Millisecond)
	v.SetDefault("progress.hub.sink_timeout", 10*time.Second)
	v.SetDefault("progress.hub.coalesce_updates", false)
	v.SetDefault("progress.sinks.log", true)
	v.SetDefault("progress.sinks.prometheus", true)
	v.SetDefault("progress.sinks.store", true)
	v.SetDefault("progress.sinks.pubsub", false)
	v.SetDefault("db.driver", "memory")
	v.SetDefault("db.table", "transfers")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db.ensure_schema", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "progress-monitor")
	v.SetDefault("fetch.timeout", 10*time.Minute)
	v.SetDefault("fetch.user_agent", "progress-monitor/0.1")
	v.SetDefault("fetch.no_color", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Metering.Threshold < 0 {
		return fmt.Errorf("metering.threshold must be >= 0")
	}
	if c.Progress.Hub.BufferSize <= 0 {
		return fmt.Errorf("progress.hub.buffer_size must be > 0")
	}
	if c.Progress.Hub.MaxBatchEvents <= 0 {
		return fmt.Errorf("progress.hub.max_batch_events must be > 0")
	}
	if c.Progress.Hub.MaxBatchWait <= 0 {
		return fmt.Errorf("progress.hub.max_batch_wait must be > 0")
	}
	switch c.DB.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is postgres")
		}
	default:
		return fmt.Errorf("db.driver must be memory or postgres, got %q", c.DB.Driver)
	}
	if c.Progress.Sinks.PubSub && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when the pubsub sink is enabled")
	}
	return nil
}
