// Package config loads recordbook settings from an optional YAML file, a
// .env file and RECORDBOOK_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Library LibraryConfig `mapstructure:"library"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LibraryConfig struct {
	LoanDays   int `mapstructure:"loan_days"`
	FinePerDay int `mapstructure:"fine_per_day"`
}

// Load reads configuration. An explicit path must exist; otherwise
// recordbook.yaml is looked up in the working directory and
// $HOME/.config/recordbook, and may be absent.
func Load(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RECORDBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("recordbook")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "recordbook"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "recordbook.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("library.loan_days", 14)
	v.SetDefault("library.fine_per_day", 5)
}

// loadEnvFile loads the first .env found in the working directory or its
// parent. Variables already set in the environment win.
func loadEnvFile() {
	for _, p := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err == nil {
			return
		}
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q (want %s or %s)", c.Storage.Driver, DriverSQLite, DriverMemory)
	}
	if c.Library.LoanDays <= 0 {
		return fmt.Errorf("library.loan_days must be positive, got %d", c.Library.LoanDays)
	}
	if c.Library.FinePerDay <= 0 {
		return fmt.Errorf("library.fine_per_day must be positive, got %d", c.Library.FinePerDay)
	}
	return nil
}
