package railconfig

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Shell holds the process-level settings that are safe to change without
// touching the wire format: listen address, server display name, log
// level, max players, metrics listen address. The spec.md §6 wire tunables
// above are deliberately absent from this struct.
type Shell struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	ServerName  string `mapstructure:"server_name"`
	LogLevel    string `mapstructure:"log_level"`
	MaxPlayers  int    `mapstructure:"max_players"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("listen_addr", "0.0.0.0:7777")
	v.SetDefault("server_name", "railgunnet")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_players", 64)
	v.SetDefault("metrics_addr", "127.0.0.1:9090")
}

// Load reads a YAML config at path (if present), overlays RAILGUNNET_*
// environment variables, and returns the resulting Shell.
func Load(path string) (*Shell, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("railgunnet")
	v.AutomaticEnv()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("railconfig: reading %s: %w", path, err)
			}
		}
	}

	var s Shell
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("railconfig: unmarshal: %w", err)
	}
	return &s, nil
}

// WatchReload re-reads path on every write and invokes onChange with the
// updated Shell. It never hot-reloads the wire tunables (there is nothing
// to watch there — they are compile-time constants in this package).
func WatchReload(path string, onChange func(*Shell)) error {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("railgunnet")
	v.AutomaticEnv()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("railconfig: reading %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var s Shell
		if err := v.Unmarshal(&s); err != nil {
			return
		}
		onChange(&s)
	})
	v.WatchConfig()
	return nil
}
