package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/dataimport/internal/resolve"
)

// Config represents the complete dataimport configuration
type Config struct {
	Resolve  ResolveConfig  `mapstructure:"resolve" yaml:"resolve"`
	Viewport ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	Eager    EagerConfig    `mapstructure:"eager" yaml:"eager"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// ResolveConfig controls how module keys become URIs
type ResolveConfig struct {
	// Aliases maps alias names to URI prefixes. A key "%name%/x.mjs" resolves
	// to the prefix followed by "x.mjs". Names are case-insensitive when read
	// from a config file.
	Aliases map[string]string `mapstructure:"aliases" yaml:"aliases"`
	// Nonce is attached to non-aliased URIs as nonce=<value> (default: none)
	Nonce string `mapstructure:"nonce" yaml:"nonce"`
	// Location is the document URL; a debug query flag on it enables
	// cache-busting parameters
	Location string `mapstructure:"location" yaml:"location"`
}

// ResolverConfig converts the section into a resolve.Config.
func (r ResolveConfig) ResolverConfig() resolve.Config {
	return resolve.Config{
		Aliases:  r.Aliases,
		Nonce:    r.Nonce,
		Location: r.Location,
	}
}

// ViewportConfig controls the simulated viewport used by `dataimport run`
type ViewportConfig struct {
	// Height is the visible height in pixels (default: 800)
	Height int `mapstructure:"height" yaml:"height"`
	// ScrollStep is how far each simulated scroll moves (default: 400)
	ScrollStep int `mapstructure:"scroll_step" yaml:"scroll_step"`
}

// EagerConfig controls eager loading
type EagerConfig struct {
	// MaxConcurrency caps loads in flight; 0 issues every load at once (default: 0)
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where imports.log is written; empty logs to stderr (default: "")
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Format is the stderr format: "json" or "text" (default: "text")
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Resolve: ResolveConfig{
			Aliases: map[string]string{},
		},
		Viewport: ViewportConfig{
			Height:     800,
			ScrollStep: 400,
		},
		Eager: EagerConfig{
			MaxConcurrency: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Resolve defaults
	viper.SetDefault("resolve.aliases", defaults.Resolve.Aliases)
	viper.SetDefault("resolve.nonce", defaults.Resolve.Nonce)
	viper.SetDefault("resolve.location", defaults.Resolve.Location)

	// Viewport defaults
	viper.SetDefault("viewport.height", defaults.Viewport.Height)
	viper.SetDefault("viewport.scroll_step", defaults.Viewport.ScrollStep)

	// Eager defaults
	viper.SetDefault("eager.max_concurrency", defaults.Eager.MaxConcurrency)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.format", defaults.Logging.Format)
}

// Load reads the configuration from viper and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dataimport")
	}
	// Fall back to ~/.config/dataimport
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dataimport"
	}
	return filepath.Join(home, ".config", "dataimport")
}

// ConfigFile returns the path to the default config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
