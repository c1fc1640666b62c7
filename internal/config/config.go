// Package config loads cozysyncd's runtime configuration from a file,
// environment variables, and CLI flags, in that order of increasing
// precedence, via github.com/spf13/viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	DefaultDataDir = filepath.Join(home, "cozysync")
	configFileName = "config"
)

// WatchMode selects which of the local/remote watchers cozysyncd brings
// up, mirroring engine.Mode without importing internal/engine from here.
type WatchMode string

const (
	WatchModeFull WatchMode = "full"
	WatchModePull WatchMode = "pull"
	WatchModePush WatchMode = "push"
)

// Config is cozysyncd's resolved runtime configuration.
type Config struct {
	DataDir         string        `mapstructure:"data_dir"`
	ServerURL       string        `mapstructure:"server_url"`
	Token           string        `mapstructure:"token"`
	WatchMode       WatchMode     `mapstructure:"watch_mode"`
	RemoteHeartbeat time.Duration `mapstructure:"remote_heartbeat"`
	TrashingDelay   time.Duration `mapstructure:"trashing_delay"`
	RemotePoll      time.Duration `mapstructure:"remote_poll"`
}

// Validate reports whether cfg is usable, normalizing DataDir to an
// absolute path as a side effect.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	abs, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: resolve data_dir: %w", err)
	}
	c.DataDir = abs

	if c.ServerURL == "" {
		return errors.New("config: server_url is required")
	}

	switch c.WatchMode {
	case WatchModeFull, WatchModePull, WatchModePush:
	case "":
		c.WatchMode = WatchModeFull
	default:
		return fmt.Errorf("config: unknown watch_mode %q", c.WatchMode)
	}

	if c.RemoteHeartbeat <= 0 {
		c.RemoteHeartbeat = 2 * time.Second
	}
	if c.TrashingDelay <= 0 {
		c.TrashingDelay = 1 * time.Second
	}
	if c.RemotePoll <= 0 {
		c.RemotePoll = 5 * time.Second
	}
	return nil
}

// Load reads configFile (if non-empty) or searches the default
// locations (~/.cozysync/config.{yaml,json}, ~/.config/cozysync), binds
// the COZYSYNC_* environment prefix, and returns the resolved Config.
// It never fails on a missing config file — env vars and flag
// defaults alone are enough to run.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(filepath.Join(home, ".cozysync"))
		v.AddConfigPath(filepath.Join(home, ".config/cozysync"))
		v.SetConfigName(configFileName)
	}

	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("watch_mode", string(WatchModeFull))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.SetEnvPrefix("COZYSYNC")
	v.AutomaticEnv()

	cfg := &Config{
		DataDir:         v.GetString("data_dir"),
		ServerURL:       v.GetString("server_url"),
		Token:           v.GetString("token"),
		WatchMode:       WatchMode(v.GetString("watch_mode")),
		RemoteHeartbeat: v.GetDuration("remote_heartbeat"),
		TrashingDelay:   v.GetDuration("trashing_delay"),
		RemotePoll:      v.GetDuration("remote_poll"),
	}
	return cfg, nil
}
