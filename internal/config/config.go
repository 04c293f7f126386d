// Package config loads application configuration from file and
// environment and installs the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Contact    ContactConfig    `yaml:"contact" mapstructure:"contact"`
	Mail       MailConfig       `yaml:"mail" mapstructure:"mail"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DiscoveryConfig configures building discovery.
type DiscoveryConfig struct {
	// Source is "overpass" or "mock".
	Source      string `yaml:"source" mapstructure:"source"`
	OverpassURL string `yaml:"overpass_url" mapstructure:"overpass_url"`
}

// GeocodeConfig configures address standardization.
type GeocodeConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	NominatimURL string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
}

// ContactConfig configures the contact resolution cascade.
type ContactConfig struct {
	// ConfigPath points at the YAML trust-weight table; empty uses the
	// built-in defaults.
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
}

// MailConfig configures the outreach transport.
type MailConfig struct {
	// Transport is "rest" or "mock".
	Transport string `yaml:"transport" mapstructure:"transport"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
}

// PipelineConfig tunes the coordinator.
type PipelineConfig struct {
	MaxConcurrentBuildings int    `yaml:"max_concurrent_buildings" mapstructure:"max_concurrent_buildings"`
	StageTimeoutSecs       int    `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
	ReconcileSchedule      string `yaml:"reconcile_schedule" mapstructure:"reconcile_schedule"`
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures alerting thresholds.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold   float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	ContactFailThreshold float64 `yaml:"contact_fail_threshold" mapstructure:"contact_fail_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MissingSettingError is a typed startup error: a selected backend needs
// a setting that was not provided.
type MissingSettingError struct {
	Key    string
	Reason string
}

func (e *MissingSettingError) Error() string {
	return "config: missing " + e.Key + ": " + e.Reason
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "outreach.db")
	v.SetDefault("discovery.source", "overpass")
	v.SetDefault("discovery.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.nominatim_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("mail.transport", "mock")
	v.SetDefault("pipeline.max_concurrent_buildings", 5)
	v.SetDefault("pipeline.stage_timeout_secs", 120)
	v.SetDefault("pipeline.reconcile_schedule", "@every 15m")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.error_rate_threshold", 0.25)
	v.SetDefault("monitoring.contact_fail_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that every selected backend has the settings it needs.
// Failures surface at startup, not on first use.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return &MissingSettingError{Key: "store.sqlite_path", Reason: "sqlite driver selected"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return &MissingSettingError{Key: "store.database_url", Reason: "postgres driver selected"}
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	switch c.Discovery.Source {
	case "overpass", "mock":
	default:
		return eris.Errorf("config: unknown discovery source %q", c.Discovery.Source)
	}

	switch c.Mail.Transport {
	case "rest":
		if c.Mail.BaseURL == "" {
			return &MissingSettingError{Key: "mail.base_url", Reason: "rest transport selected"}
		}
		if c.Mail.APIKey == "" {
			return &MissingSettingError{Key: "mail.api_key", Reason: "rest transport selected"}
		}
	case "mock":
	default:
		return eris.Errorf("config: unknown mail transport %q", c.Mail.Transport)
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
