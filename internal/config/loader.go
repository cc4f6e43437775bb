package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	globalConfigDir = ".tabwarden"
	configFileName  = "config.yaml"
)

// Loader handles loading and merging configuration files
type Loader struct {
	globalPath   string
	explicitPath string
}

// NewLoader creates a new configuration loader. explicitPath overrides
// the global config when non-empty.
func NewLoader(explicitPath string) (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	return &Loader{
		globalPath:   filepath.Join(homeDir, globalConfigDir, configFileName),
		explicitPath: explicitPath,
	}, nil
}

// Load loads and merges configuration: defaults, then the global file,
// then the explicit file when one was given.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := l.loadFile(l.globalPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	if globalCfg != nil {
		cfg = mergeConfigs(cfg, globalCfg)
	}

	if l.explicitPath != "" {
		explicitCfg, err := l.loadFile(l.explicitPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", l.explicitPath, err)
		}
		cfg = mergeConfigs(cfg, explicitCfg)
	}

	return cfg, nil
}

func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// mergeConfigs merges two configurations, with override taking
// precedence for set values
func mergeConfigs(base, override *Config) *Config {
	result := &Config{
		Version: coalesce(override.Version, base.Version),
		Settings: Settings{
			LogLevel:     coalesce(override.Settings.LogLevel, base.Settings.LogLevel),
			LogFile:      coalesce(override.Settings.LogFile, base.Settings.LogFile),
			DatabasePath: coalesce(override.Settings.DatabasePath, base.Settings.DatabasePath),
			Daemon:       mergeDaemon(base.Settings.Daemon, override.Settings.Daemon),
		},
		Tracking:      mergeTracking(base.Tracking, override.Tracking),
		Interventions: mergeInterventions(base.Interventions, override.Interventions),
		Quality:       mergeQuality(base.Quality, override.Quality),
	}

	return result
}

func mergeDaemon(base, override Daemon) Daemon {
	result := base
	if override.Port != 0 {
		result.Port = override.Port
	}
	if override.PIDFile != "" {
		result.PIDFile = override.PIDFile
	}
	return result
}

func mergeTracking(base, override Tracking) Tracking {
	result := base
	if override.Mode != "" {
		result.Mode = override.Mode
	}
	if override.IdleTimeoutMin != 0 {
		result.IdleTimeoutMin = override.IdleTimeoutMin
	}
	if override.TickSeconds != 0 {
		result.TickSeconds = override.TickSeconds
	}
	if override.PollMillis != 0 {
		result.PollMillis = override.PollMillis
	}
	if override.BrowserControlURL != "" {
		result.BrowserControlURL = override.BrowserControlURL
	}
	return result
}

func mergeInterventions(base, override Interventions) Interventions {
	result := base
	if override.CooldownMinutes != 0 {
		result.CooldownMinutes = override.CooldownMinutes
	}
	if override.BreakMinutes != 0 {
		result.BreakMinutes = override.BreakMinutes
	}
	if override.BreakReturnWindowMin != 0 {
		result.BreakReturnWindowMin = override.BreakReturnWindowMin
	}
	if override.SnoozeLimitPerHour != 0 {
		result.SnoozeLimitPerHour = override.SnoozeLimitPerHour
	}
	if override.SnoozeWindowMin != 0 {
		result.SnoozeWindowMin = override.SnoozeWindowMin
	}
	return result
}

func mergeQuality(base, override Quality) Quality {
	result := base
	if override.MinRows != 0 {
		result.MinRows = override.MinRows
	}
	if override.MinClassRows != 0 {
		result.MinClassRows = override.MinClassRows
	}
	if override.MinResponseRate != 0 {
		result.MinResponseRate = override.MinResponseRate
	}
	if override.MaxDisagreementRate != 0 {
		result.MaxDisagreementRate = override.MaxDisagreementRate
	}
	return result
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// GlobalConfigPath returns the path to the global config file
func (l *Loader) GlobalConfigPath() string {
	return l.globalPath
}
