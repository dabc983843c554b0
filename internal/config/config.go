// Package config loads application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Downloads  DownloadsConfig  `mapstructure:"downloads"`
	Library    LibraryConfig    `mapstructure:"library"`
	AutoSelect AutoSelectConfig `mapstructure:"auto_select"`
	Health     HealthConfig     `mapstructure:"health"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// DownloadsConfig holds download handling configuration. RemotePath and
// LocalPath describe the same directory as seen by the download client and
// by this process, used for path remapping after completion.
type DownloadsConfig struct {
	LocalPath             string        `mapstructure:"local_path"`
	RemotePath            string        `mapstructure:"remote_path"`
	RemoveCompletedUsenet bool          `mapstructure:"remove_completed_usenet"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
}

// LibraryConfig holds output paths and naming templates for the organized
// library.
type LibraryConfig struct {
	AudiobookOutputPath string `mapstructure:"audiobook_output_path"`
	EbookOutputPath     string `mapstructure:"ebook_output_path"`
	AudiobookTemplate   string `mapstructure:"audiobook_template"`
	EbookTemplate       string `mapstructure:"ebook_template"`
}

// AutoSelectConfig holds thresholds for automatic result selection.
type AutoSelectConfig struct {
	MinSeeders          int `mapstructure:"min_seeders"`
	ConfidenceThreshold int `mapstructure:"confidence_threshold"`
}

// HealthConfig holds health monitoring configuration.
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.shelfarr")
	}

	v.SetEnvPrefix("SHELFARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars and defaults still apply.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./data/shelfarr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("downloads.local_path", "/downloads")
	v.SetDefault("downloads.remote_path", "")
	v.SetDefault("downloads.remove_completed_usenet", false)
	v.SetDefault("downloads.poll_interval", 30*time.Second)

	v.SetDefault("library.audiobook_output_path", "/audiobooks")
	v.SetDefault("library.ebook_output_path", "/ebooks")
	v.SetDefault("library.audiobook_template", "{author}/{title}")
	v.SetDefault("library.ebook_template", "{author}/{title}")

	v.SetDefault("auto_select.min_seeders", 1)
	v.SetDefault("auto_select.confidence_threshold", 90)

	v.SetDefault("health.interval", 5*time.Minute)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
