// Package config loads dbai settings from ~/.config/dbai/config.yaml and
// DBAI_* environment variables. Secrets never live here; passwords go to the
// secret backend selected by secrets.backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configDir  = "dbai"
	configFile = "config"
	configType = "yaml"
	envPrefix  = "DBAI"
)

// Secret backends.
const (
	SecretsKeychain = "keychain"
	SecretsFile     = "file"
	SecretsMemory   = "memory"
)

// Config holds the application settings.
type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	Log     LogConfig     `mapstructure:"log"`
	Query   QueryConfig   `mapstructure:"query"`
	Connect ConnectConfig `mapstructure:"connect"`
	Health  HealthConfig  `mapstructure:"health"`
	Secrets SecretsConfig `mapstructure:"secrets"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type QueryConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	DefaultMaxRows int           `mapstructure:"default_max_rows"`
	HistoryLimit   int           `mapstructure:"history_limit"`
}

type ConnectConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Enabled  bool          `mapstructure:"enabled"`
}

type SecretsConfig struct {
	Backend      string `mapstructure:"backend"`
	FileDir      string `mapstructure:"file_dir"`
	FilePassword string `mapstructure:"file_password"`
}

// DBPath is the location of the application's own SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "dbai.db")
}

// LogPath is where the desktop app writes its log.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "dbai.log")
}

// Load reads configuration. path may be empty, in which case the default
// location is used and a missing file yields defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("config dir: %w", err)
		}
		v.SetConfigName(configFile)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Dir returns ~/.config/dbai.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configDir), nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".local", "share", "dbai")

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("query.default_timeout", 30*time.Second)
	v.SetDefault("query.default_max_rows", 1000)
	v.SetDefault("query.history_limit", 50)
	v.SetDefault("connect.timeout", 10*time.Second)
	v.SetDefault("health.interval", 30*time.Second)
	v.SetDefault("health.enabled", true)
	v.SetDefault("secrets.backend", SecretsKeychain)
	v.SetDefault("secrets.file_dir", filepath.Join(dataDir, "secrets"))
	v.SetDefault("secrets.file_password", "")
}

func (c *Config) validate() error {
	switch c.Secrets.Backend {
	case SecretsKeychain, SecretsFile, SecretsMemory:
	default:
		return fmt.Errorf("config: unknown secrets.backend %q", c.Secrets.Backend)
	}
	if c.Query.DefaultTimeout <= 0 {
		return fmt.Errorf("config: query.default_timeout must be positive")
	}
	if c.Connect.Timeout <= 0 {
		return fmt.Errorf("config: connect.timeout must be positive")
	}
	if c.Health.Enabled && c.Health.Interval < time.Second {
		return fmt.Errorf("config: health.interval must be at least 1s")
	}
	return nil
}
