package config

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Engine          EngineConfig          `mapstructure:"engine"`
	Instrumentation InstrumentationConfig `mapstructure:"instrumentation"`
	JWTSecret       string                `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

type EngineConfig struct {
	SweepIntervalSec   int `mapstructure:"sweep_interval_sec"`
	BulkBatchSize      int `mapstructure:"bulk_batch_size"`
	BulkWorkers        int `mapstructure:"bulk_workers"`
	WebhookMaxAttempts int `mapstructure:"webhook_max_attempts"`
}

type InstrumentationConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	FlushIntervalMs int  `mapstructure:"flush_interval_ms"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("database.path", "./data")
	viper.SetDefault("jwt_secret", "changeme-secret")
	viper.SetDefault("engine.sweep_interval_sec", 60)
	viper.SetDefault("engine.bulk_batch_size", 50)
	viper.SetDefault("engine.bulk_workers", 10)
	viper.SetDefault("engine.webhook_max_attempts", 3)
	viper.SetDefault("instrumentation.enabled", true)
	viper.SetDefault("instrumentation.buffer_size", 500)
	viper.SetDefault("instrumentation.flush_interval_ms", 100)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Println("No app.yaml found, using defaults and environment")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
