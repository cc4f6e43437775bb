package config

// Config represents the complete tabwarden configuration
type Config struct {
	Version       string        `yaml:"version"`
	Settings      Settings      `yaml:"settings"`
	Tracking      Tracking      `yaml:"tracking"`
	Interventions Interventions `yaml:"interventions"`
	Quality       Quality       `yaml:"quality"`
}

// Settings contains global configuration settings
type Settings struct {
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file,omitempty"`
	DatabasePath string `yaml:"database_path,omitempty"`
	Daemon       Daemon `yaml:"daemon"`
}

// Daemon configures the loopback messaging server
type Daemon struct {
	Port    int    `yaml:"port"`
	PIDFile string `yaml:"pid_file,omitempty"`
}

// Tracking configures the session engine
type Tracking struct {
	Mode           string `yaml:"mode"`
	IdleTimeoutMin int    `yaml:"idle_timeout_min"`
	TickSeconds    int    `yaml:"tick_seconds"`
	PollMillis     int    `yaml:"poll_millis"`

	// BrowserControlURL points at an already-running DevTools endpoint.
	// Empty means launch a browser on demand.
	BrowserControlURL string `yaml:"browser_control_url,omitempty"`
}

// Interventions configures stage escalation behavior
type Interventions struct {
	CooldownMinutes      int `yaml:"cooldown_minutes"`
	BreakMinutes         int `yaml:"break_minutes"`
	BreakReturnWindowMin int `yaml:"break_return_window_min"`
	SnoozeLimitPerHour   int `yaml:"snooze_limit_per_hour"`
	SnoozeWindowMin      int `yaml:"snooze_window_min"`
}

// Quality holds the training-readiness gate thresholds
type Quality struct {
	MinRows             int     `yaml:"min_rows"`
	MinClassRows        int     `yaml:"min_class_rows"`
	MinResponseRate     float64 `yaml:"min_response_rate"`
	MaxDisagreementRate float64 `yaml:"max_disagreement_rate"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Settings: Settings{
			LogLevel: "info",
			Daemon: Daemon{
				Port: 8746,
			},
		},
		Tracking: Tracking{
			Mode:           "default",
			IdleTimeoutMin: 5,
			TickSeconds:    30,
			PollMillis:     2000,
		},
		Interventions: Interventions{
			CooldownMinutes:      10,
			BreakMinutes:         5,
			BreakReturnWindowMin: 10,
			SnoozeLimitPerHour:   3,
			SnoozeWindowMin:      60,
		},
		Quality: Quality{
			MinRows:             60,
			MinClassRows:        10,
			MinResponseRate:     0.4,
			MaxDisagreementRate: 0.6,
		},
	}
}
