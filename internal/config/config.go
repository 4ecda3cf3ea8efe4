// Package config loads the transfer engine's runtime configuration: source
// and target server definitions, workspace location, and the optional
// status/observability stack. Grounded on the teacher's viper-based loader
// (internal/config/config.go in the hub).
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the root configuration tree.
type Config struct {
	Application Application `mapstructure:"application"`
	Workspace   Workspace   `mapstructure:"workspace"`
	Source      Server      `mapstructure:"source"`
	Target      Server      `mapstructure:"target"`
	Storage     Storage     `mapstructure:"storage"`
	FKIndex     FKIndex     `mapstructure:"fk_index"`
	Redis       Redis       `mapstructure:"redis"`
	Status      Status      `mapstructure:"status"`
	LogLevel    string      `mapstructure:"log_level"`
}

// Application carries the tool's name and version. Version is written to
// workspace metadata (§6, `version`); Name is not read, and the metadata's
// `application` field is always "journal-migrator".
type Application struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Workspace locates the on-disk staging directory (§3's <data_dir>).
type Workspace struct {
	DataDir string `mapstructure:"data_dir"`
}

// Server is a connector's view of one remote endpoint, matching spec.md §6's
// server definition: {type, host, username?, password?, port?}, extended
// with an optional bearer token for JWT auth.
type Server struct {
	Type        string `mapstructure:"type"` // "http" or "ssh"
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Token       string `mapstructure:"token"`
	TokenSecret string `mapstructure:"token_secret"`
	TimeoutSecs int    `mapstructure:"timeout_seconds"`
}

// Enabled reports whether a server definition was actually supplied. An
// empty Host disables the corresponding stage's network leg (§4.8).
func (s Server) Enabled() bool {
	return s.Host != ""
}

// Storage configures the workspace's staging backend (filesystem/s3/azure).
type Storage struct {
	Backend   string `mapstructure:"backend"`
	BasePath  string `mapstructure:"base_path"`
	S3Bucket  string `mapstructure:"s3_bucket"`
	S3Region  string `mapstructure:"s3_region"`
	AzureAcct string `mapstructure:"azure_account"`
	AzureKey  string `mapstructure:"azure_key"`
	AzureCtnr string `mapstructure:"azure_container"`
}

// FKIndex configures the lazily-built foreign-key acceleration cache.
type FKIndex struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// Redis configures the optional progress pub/sub fan-out. No cursor cache
// is kept in Redis.
type Redis struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Status configures the local read-only HTTP status/websocket server.
type Status struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load applies defaults, then config.yaml from the working directory (or
// ./config), then environment variables, from lowest to highest precedence.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("application.name", "journal-migrator")
	viper.SetDefault("application.version", "dev")
	viper.SetDefault("workspace.data_dir", "./data")
	viper.SetDefault("source.type", "http")
	viper.SetDefault("target.type", "http")
	viper.SetDefault("source.timeout_seconds", 30)
	viper.SetDefault("target.timeout_seconds", 30)
	viper.SetDefault("storage.backend", "filesystem")
	viper.SetDefault("storage.base_path", "./data")
	viper.SetDefault("fk_index.driver", "sqlite")
	viper.SetDefault("fk_index.dsn", "./data/fkindex.db")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("status.enabled", false)
	viper.SetDefault("status.addr", ":4500")
	viper.SetDefault("log_level", "info")

	viper.AutomaticEnv()

	viper.BindEnv("source.host", "SOURCE_HOST")
	viper.BindEnv("source.username", "SOURCE_USERNAME")
	viper.BindEnv("source.password", "SOURCE_PASSWORD")
	viper.BindEnv("source.token", "SOURCE_TOKEN")
	viper.BindEnv("target.host", "TARGET_HOST")
	viper.BindEnv("target.username", "TARGET_USERNAME")
	viper.BindEnv("target.password", "TARGET_PASSWORD")
	viper.BindEnv("target.token", "TARGET_TOKEN")
	viper.BindEnv("workspace.data_dir", "WORKSPACE_DATA_DIR")
	viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	viper.BindEnv("redis.enabled", "REDIS_ENABLED")
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("status.enabled", "STATUS_ENABLED")
	viper.BindEnv("status.addr", "STATUS_ADDR")
	viper.BindEnv("log_level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
