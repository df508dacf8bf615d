package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"autoexport/internal/blob"
	"autoexport/internal/persistence"
)

// Config is the process configuration: TOML file, then AUTOEXPORT_*
// variables, then flags.
type Config struct {
	Log     LogConfig          `toml:"log"`
	Store   persistence.Config `toml:"store"`
	Blob    blob.Config        `toml:"blob"`
	Metrics MetricsConfig      `toml:"metrics"`
	Watch   WatchConfig        `toml:"watch"`
}

// LogConfig selects the log handler and verbosity.
type LogConfig struct {
	Format string `toml:"format" env:"AUTOEXPORT_LOG_FORMAT"`
	Level  string `toml:"level" env:"AUTOEXPORT_LOG_LEVEL"`
	// Trace writes one JSON line per finished span to stderr.
	Trace bool `toml:"trace" env:"AUTOEXPORT_TRACE"`
}

// MetricsConfig serves /metrics and /debug/vars on Addr during watch; empty
// Addr disables the server.
type MetricsConfig struct {
	Addr string `toml:"addr" env:"AUTOEXPORT_METRICS_ADDR"`
}

// WatchConfig tunes watch mode. Debounce is how long edits must settle
// before a cycle starts.
type WatchConfig struct {
	Debounce time.Duration `toml:"debounce" env:"AUTOEXPORT_WATCH_DEBOUNCE"`
}

func defaultConfig() Config {
	return Config{
		Log:   LogConfig{Format: "text", Level: "info"},
		Watch: WatchConfig{Debounce: 250 * time.Millisecond},
	}
}

// loadConfig reads path (optional) over the defaults and applies the
// environment. Unknown TOML keys are rejected.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := persistence.ApplyEnv(&cfg.Store); err != nil {
		return Config{}, err
	}
	if err := blob.ApplyEnv(&cfg.Blob); err != nil {
		return Config{}, err
	}
	for _, section := range []any{&cfg.Log, &cfg.Metrics, &cfg.Watch} {
		if err := env.Parse(section); err != nil {
			return Config{}, fmt.Errorf("parse env: %w", err)
		}
	}
	return cfg, nil
}
