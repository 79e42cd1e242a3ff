package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/datallboy/gofichier/internal/domain"
	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir           string        `mapstructure:"out_dir" yaml:"out_dir"`
	TimeoutSeconds   int           `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Proxy            string        `mapstructure:"proxy" yaml:"proxy"`
	ChunkSize        int           `mapstructure:"chunk_size" yaml:"chunk_size"`
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	MaxTransfers     int           `mapstructure:"max_transfers" yaml:"max_transfers"`
}

type ResolverConfig struct {
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

const (
	DefaultChunkSize        = 64 * 1024
	DefaultProgressInterval = 500 * time.Millisecond
	DefaultUserAgent        = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
)

// Load reads path (default config.yaml). A missing default file is not an
// error: every key has a default and can be set from GOFICHIER_* variables.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", domain.DefaultDownloadDir)
	v.SetDefault("download.timeout_seconds", domain.DefaultTimeoutSeconds)
	v.SetDefault("download.proxy", "")
	v.SetDefault("download.chunk_size", DefaultChunkSize)
	v.SetDefault("download.progress_interval", DefaultProgressInterval)
	v.SetDefault("download.max_transfers", 1)
	v.SetDefault("resolver.user_agent", DefaultUserAgent)
	v.SetDefault("log.path", "gofichier.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.sqlite_path", "./data/gofichier.db")

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	v.SetEnvPrefix("GOFICHIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.MaxTransfers <= 0 {
		c.Download.MaxTransfers = 1
	}

	if c.Download.ChunkSize <= 0 {
		c.Download.ChunkSize = DefaultChunkSize
	}

	if c.Download.ProgressInterval <= 0 {
		c.Download.ProgressInterval = DefaultProgressInterval
	}

	if c.Download.TimeoutSeconds < 0 {
		return errors.New("download.timeout_seconds cannot be negative")
	}

	if c.Store.SQLitePath == "" {
		return errors.New("store.sqlite_path is required")
	}

	return nil
}

// DefaultSettings are the user settings used until one is saved.
func (c *Config) DefaultSettings() domain.Settings {
	return domain.Settings{
		DownloadDirectory: c.Download.OutDir,
		ThemeIndex:        domain.ThemeLight,
		TimeoutSeconds:    c.Download.TimeoutSeconds,
		Proxy:             c.Download.Proxy,
	}.Normalize()
}
