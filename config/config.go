// Package config loads server configuration from config.yaml, .env and
// MAINT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/warp/maintenance-engine/maintenance"
)

// EnvPrefix prefixes every environment override: MAINT_SERVER_PORT, ...
const EnvPrefix = "MAINT"

type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Database DatabaseConfig       `mapstructure:"database"`
	Log      LogConfig            `mapstructure:"log"`
	Clock    ClockConfig          `mapstructure:"clock"`
	Ledger   LedgerConfig         `mapstructure:"ledger"`
	Sectors  []maintenance.Sector `mapstructure:"sectors"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `mapstructure:"max_upload_mb"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3, pgx, mysql
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type ClockConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type LedgerConfig struct {
	// ReportAttribution credits report rows whose identifier is missing from
	// the roster to the technician and client written on the report.
	ReportAttribution bool `mapstructure:"report_attribution"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/maintenance.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("clock.timezone", maintenance.DefaultTimezone)
	v.SetDefault("ledger.report_attribution", true)
}

// Load reads configuration. path names a config file; when empty,
// config.yaml is looked up in ./config and the working directory and may be
// absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Sectors) == 0 {
		cfg.Sectors = maintenance.DefaultSectors()
	}
	overrideFromEnv(&cfg)
	return &cfg, cfg.Validate()
}

// overrideFromEnv applies list-valued variables, which AutomaticEnv does
// not split.
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "pgx", "mysql":
	default:
		return fmt.Errorf("database.driver must be sqlite3, pgx or mysql, got %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}
	return nil
}

// NewLogger builds the process logger from c.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	logger.SetLevel(level)
	switch c.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("log.format must be text or json, got %q", c.Format)
	}
	return logger, nil
}
