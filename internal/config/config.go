// Package config loads askd's engine configuration from flags, the
// ASK_* environment, and an optional project config file, layering
// them with github.com/spf13/viper the way the reference corpus layers
// its own config.yaml/env/flag precedence.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved engine configuration.
type Config struct {
	// DatabasePath is where the SQLite-backed dependency database
	// lives.
	DatabasePath string
	// ProcessLimit bounds concurrent child processes; <= 0 means
	// unbounded.
	ProcessLimit int
	// LogLevel is one of debug/info/warn/error.
	LogLevel string
	// LogJSON selects JSON log encoding over text.
	LogJSON bool
	// LogPath, if set, routes logs to a rotated file instead of
	// stderr.
	LogPath string
	// Watch enables fsnotify-driven rebuilds on dependency change.
	Watch bool
	// StatusAddr, if non-empty, serves the live status dashboard on
	// this address (e.g. ":8080").
	StatusAddr string
}

const envPrefix = "ASK"

// BindFlags registers this package's flags on fs, for a cobra command
// to call in its PersistentFlags/Flags setup.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("db", ".ask/ask.db", "path to the dependency database")
	fs.Int("jobs", 0, "maximum concurrent child processes (0 = unbounded)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Bool("log-json", false, "emit logs as JSON instead of text")
	fs.String("log-file", "", "rotate logs to this file instead of stderr")
	fs.Bool("watch", false, "re-run the root question when its dependencies change")
	fs.String("status-addr", "", "address to serve the live status dashboard on (empty disables it)")
}

// Load builds a viper instance bound to fs, the ASK_* environment, and
// an optional config file discovered at <projectDir>/.ask.yaml (or
// .ask.toml/.ask.json — viper resolves the extension), then decodes it
// into a Config.
func Load(fs *pflag.FlagSet, projectDir string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("config: bind flags: %w", err)
	}

	if projectDir != "" {
		v.SetConfigName(".ask")
		v.AddConfigPath(projectDir)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return Config{}, fmt.Errorf("config: read %s: %w", filepath.Join(projectDir, ".ask.yaml"), err)
			}
		}
	}

	cfg := Config{
		DatabasePath: v.GetString("db"),
		ProcessLimit: v.GetInt("jobs"),
		LogLevel:     v.GetString("log-level"),
		LogJSON:      v.GetBool("log-json"),
		LogPath:      v.GetString("log-file"),
		Watch:        v.GetBool("watch"),
		StatusAddr:   v.GetString("status-addr"),
	}
	return cfg, nil
}
