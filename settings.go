package flexconfig

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings holds source options that deployments usually supply through the
// environment rather than code.
type Settings struct {
	Optional       bool          `env:"OPTIONAL"`
	ReloadInterval time.Duration `env:"RELOAD_INTERVAL"`
	JSONProcessing bool          `env:"JSON_PROCESSING"`
	JSONKeys       []string      `env:"JSON_KEYS" envSeparator:","`
	VersionStage   string        `env:"VERSION_STAGE"`
	ListDelimiter  string        `env:"LIST_DELIMITER"`
}

// SettingsFromEnv reads Settings from variables named prefix + field tag,
// for example FLEX_RELOAD_INTERVAL=5m for the prefix "FLEX_".
func SettingsFromEnv(prefix string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: prefix}); err != nil {
		return Settings{}, fmt.Errorf("flexconfig: read settings: %w", err)
	}
	return s, nil
}

// Options converts the settings into source options.
func (s Settings) Options() []Option {
	opts := []Option{
		WithOptional(s.Optional),
		WithJSONProcessing(s.JSONProcessing),
	}
	if s.ReloadInterval > 0 {
		opts = append(opts, WithReloadInterval(s.ReloadInterval))
	}
	if len(s.JSONKeys) > 0 {
		opts = append(opts, WithJSONKeys(s.JSONKeys...))
	}
	if s.VersionStage != "" {
		opts = append(opts, WithVersionStage(s.VersionStage))
	}
	if s.ListDelimiter != "" {
		opts = append(opts, WithListDelimiter(s.ListDelimiter))
	}
	return opts
}
