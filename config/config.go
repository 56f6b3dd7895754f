// config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// SessionConfig declares one daily trading window in session-local time.
type SessionConfig struct {
	Start string `yaml:"start"` // "HH:MM"
	End   string `yaml:"end"`
}

// LiquidityConfig controls how candidate liquidity levels are identified
// ahead of each session.
type LiquidityConfig struct {
	// Mode selects the identification strategy: "session_bar" takes the
	// single bar preceding the session start, "pivots" scans a lookback
	// window for swing extremes.
	Mode                 string `yaml:"mode"`
	LookbackBars         int    `yaml:"lookback_bars"`
	MaxLevels            int    `yaml:"max_levels"`
	MinutesBeforeSession int    `yaml:"minutes_before_session"`
	CandleCount          int    `yaml:"candle_count"`
}

// SwingConfig controls the post-sweep structural reference search.
type SwingConfig struct {
	// Strategy selects the locator: "pivot" or "pattern".
	Strategy           string `yaml:"strategy"`
	LookbackBars       int    `yaml:"lookback_bars"`
	CandleCount        int    `yaml:"candle_count"`
	PatternTimeoutBars int    `yaml:"pattern_timeout_bars"`
}

// RiskConfig bounds signal geometry and position sizing.
type RiskConfig struct {
	MinRR           float64 `yaml:"min_rr"`
	MaxRR           float64 `yaml:"max_rr"`
	RiskPercent     float64 `yaml:"risk_percent"`
	StopBufferTicks int     `yaml:"stop_buffer_ticks"`
	MinStopTicks    int     `yaml:"min_stop_ticks"`
}

// DailyConfig holds the per-day circuit breakers.
type DailyConfig struct {
	MaxTrades       int     `yaml:"max_trades"`
	ProfitTargetPct float64 `yaml:"profit_target_pct"`
}

// InstrumentConfig describes the traded contract for simulation mode; in
// live mode the venue's symbol info takes precedence.
type InstrumentConfig struct {
	TickSize   float64 `yaml:"tick_size"`
	TickValue  float64 `yaml:"tick_value"`
	MinVolume  float64 `yaml:"min_volume"`
	MaxVolume  float64 `yaml:"max_volume"`
	VolumeStep float64 `yaml:"volume_step"`
	Equity     float64 `yaml:"equity"` // starting simulated equity
}

// FeedConfig points at the market-data stream.
type FeedConfig struct {
	URL string `yaml:"url"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds general, non-strategy configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds       int    `yaml:"http_timeout_seconds"`
	HeartbeatIntervalMinutes int    `yaml:"heartbeat_interval_minutes"`
	EquityRefreshSeconds     int    `yaml:"equity_refresh_seconds"`
	OrderPollSeconds         int    `yaml:"order_poll_seconds"`
	LogDirectory             string `yaml:"log_directory"`
	StateDirectory           string `yaml:"state_directory"`
	JournalPath              string `yaml:"journal_path"` // empty disables the sqlite journal
}

// Config is the top-level configuration structure.
type Config struct {
	Symbol             string            `yaml:"symbol"`
	Timezone           string            `yaml:"timezone"`
	ContextTimeframe   string            `yaml:"context_timeframe"`
	ExecutionTimeframe string            `yaml:"execution_timeframe"`
	Sessions           []SessionConfig   `yaml:"sessions"`
	BufferMinutes      int               `yaml:"buffer_minutes"`
	Liquidity          *LiquidityConfig  `yaml:"liquidity"`
	Swing              *SwingConfig      `yaml:"swing"`
	BOSTimeoutBars     int               `yaml:"bos_timeout_bars"`
	Risk               *RiskConfig       `yaml:"risk"`
	Daily              *DailyConfig      `yaml:"daily"`
	Instrument         *InstrumentConfig `yaml:"instrument"`
	Feed               *FeedConfig       `yaml:"feed"`
	UseSimulation      bool              `yaml:"use_simulation"`
	Normal             *NormalConfig     `yaml:"normal_config"`
	Logs               *LogConfig        `yaml:"logs"`

	// Warnings collects non-fatal fallbacks applied while loading, to be
	// logged once the logging system is up.
	Warnings []string `yaml:"-"`
}

// NewConfig allocates nested structs and sets the documented defaults that
// unparseable or absent optional values fall back to.
func NewConfig() *Config {
	return &Config{
		Timezone:           "America/New_York",
		ContextTimeframe:   "m15",
		ExecutionTimeframe: "m1",
		Sessions: []SessionConfig{
			{Start: "03:00", End: "04:00"},
			{Start: "10:00", End: "11:00"},
			{Start: "14:00", End: "15:00"},
		},
		BufferMinutes:  30,
		BOSTimeoutBars: 30,
		Liquidity: &LiquidityConfig{
			Mode:                 "session_bar",
			LookbackBars:         60,
			MaxLevels:            5,
			MinutesBeforeSession: 15,
			CandleCount:          2,
		},
		Swing: &SwingConfig{
			Strategy:           "pivot",
			LookbackBars:       20,
			CandleCount:        1,
			PatternTimeoutBars: 15,
		},
		Risk:       &RiskConfig{StopBufferTicks: 2, MinStopTicks: 1},
		Daily:      &DailyConfig{},
		Instrument: &InstrumentConfig{},
		Feed:       &FeedConfig{},
		Normal:     &NormalConfig{OrderPollSeconds: 2},
		Logs:       &LogConfig{},
	}
}

// LoadConfig loads configuration from a given path, applies defaults, and
// validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Error: Config file not found at %s. Program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg.applyFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFallbacks replaces unparseable or missing optional values with their
// documented defaults and records a diagnostic for each. These conditions
// are deliberately non-fatal.
func (c *Config) applyFallbacks() {
	def := NewConfig()

	if c.Timezone == "" {
		c.Timezone = def.Timezone
		c.Warnings = append(c.Warnings, fmt.Sprintf("timezone not set, defaulting to %s", def.Timezone))
	}
	if !knownTimeframe(c.ContextTimeframe) {
		c.Warnings = append(c.Warnings, fmt.Sprintf("context_timeframe %q unknown, defaulting to %s", c.ContextTimeframe, def.ContextTimeframe))
		c.ContextTimeframe = def.ContextTimeframe
	}
	if !knownTimeframe(c.ExecutionTimeframe) {
		c.Warnings = append(c.Warnings, fmt.Sprintf("execution_timeframe %q unknown, defaulting to %s", c.ExecutionTimeframe, def.ExecutionTimeframe))
		c.ExecutionTimeframe = def.ExecutionTimeframe
	}
	if len(c.Sessions) == 0 || len(c.Sessions) > 3 {
		c.Warnings = append(c.Warnings, "sessions absent or more than 3, using the default three windows")
		c.Sessions = def.Sessions
	}
	for i, s := range c.Sessions {
		if !validClock(s.Start) || !validClock(s.End) {
			c.Warnings = append(c.Warnings, fmt.Sprintf("session %d window %q-%q unparseable, using default %s-%s",
				i+1, s.Start, s.End, def.Sessions[i%len(def.Sessions)].Start, def.Sessions[i%len(def.Sessions)].End))
			c.Sessions[i] = def.Sessions[i%len(def.Sessions)]
		}
	}
	if c.BufferMinutes <= 0 {
		c.BufferMinutes = def.BufferMinutes
	}
	if c.BOSTimeoutBars <= 0 {
		c.BOSTimeoutBars = def.BOSTimeoutBars
	}
	if c.Liquidity == nil {
		c.Liquidity = def.Liquidity
	}
	if c.Swing == nil {
		c.Swing = def.Swing
	}
	if c.Risk == nil {
		c.Risk = def.Risk
	}
	if c.Risk.StopBufferTicks <= 0 {
		c.Risk.StopBufferTicks = def.Risk.StopBufferTicks
	}
	if c.Risk.MinStopTicks <= 0 {
		c.Risk.MinStopTicks = def.Risk.MinStopTicks
	}
	if c.Normal != nil && c.Normal.OrderPollSeconds <= 0 {
		c.Normal.OrderPollSeconds = def.Normal.OrderPollSeconds
	}
}

func validClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for i, ch := range []byte(s) {
		if i == 2 {
			continue
		}
		if ch < '0' || ch > '9' {
			return false
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	return h < 24 && m < 60
}

func knownTimeframe(name string) bool {
	switch name {
	case "m1", "m2", "m3", "m5", "m15", "m30", "h1", "h4", "d1":
		return true
	}
	return false
}

// Validate checks the logical consistency and completeness of the entire
// configuration.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("Critical config missing: 'symbol' must be explicitly specified in config.yaml")
	}

	if c.Liquidity.Mode != "session_bar" && c.Liquidity.Mode != "pivots" {
		return fmt.Errorf("Config error: liquidity.mode must be 'session_bar' or 'pivots', got %q", c.Liquidity.Mode)
	}
	if c.Liquidity.Mode == "pivots" {
		if c.Liquidity.LookbackBars <= 0 {
			return fmt.Errorf("Critical config missing: 'liquidity.lookback_bars' must be positive in pivots mode")
		}
		if c.Liquidity.MaxLevels <= 0 {
			return fmt.Errorf("Critical config missing: 'liquidity.max_levels' must be positive in pivots mode")
		}
		if c.Liquidity.CandleCount <= 0 {
			return fmt.Errorf("Critical config missing: 'liquidity.candle_count' must be positive in pivots mode")
		}
		if c.Liquidity.MinutesBeforeSession < 0 {
			return fmt.Errorf("Config error: liquidity.minutes_before_session cannot be negative")
		}
	}

	if c.Swing.Strategy != "pivot" && c.Swing.Strategy != "pattern" {
		return fmt.Errorf("Config error: swing.strategy must be 'pivot' or 'pattern', got %q", c.Swing.Strategy)
	}
	if c.Swing.Strategy == "pivot" {
		if c.Swing.LookbackBars <= 0 {
			return fmt.Errorf("Critical config missing: 'swing.lookback_bars' must be positive for the pivot strategy")
		}
		if c.Swing.CandleCount <= 0 {
			return fmt.Errorf("Critical config missing: 'swing.candle_count' must be positive for the pivot strategy")
		}
	}
	if c.Swing.Strategy == "pattern" && c.Swing.PatternTimeoutBars <= 0 {
		return fmt.Errorf("Critical config missing: 'swing.pattern_timeout_bars' must be positive for the pattern strategy")
	}

	if c.Risk.MinRR <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.min_rr' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.MaxRR < c.Risk.MinRR {
		return fmt.Errorf("Config error: risk.max_rr (%.2f) must be >= risk.min_rr (%.2f)", c.Risk.MaxRR, c.Risk.MinRR)
	}
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 100 {
		return fmt.Errorf("Critical config missing: 'risk.risk_percent' must be in (0, 100]")
	}

	if c.Daily == nil || c.Daily.MaxTrades <= 0 {
		return fmt.Errorf("Critical config missing: 'daily.max_trades' must be explicitly specified in config.yaml and be positive")
	}
	if c.Daily.ProfitTargetPct < 0 {
		return fmt.Errorf("Config error: daily.profit_target_pct cannot be negative")
	}

	if c.UseSimulation {
		if c.Instrument == nil || c.Instrument.TickSize <= 0 || c.Instrument.TickValue <= 0 {
			return fmt.Errorf("Critical config missing: 'instrument.tick_size' and 'instrument.tick_value' must be positive in simulation mode")
		}
		if c.Instrument.MinVolume <= 0 || c.Instrument.VolumeStep <= 0 {
			return fmt.Errorf("Critical config missing: 'instrument.min_volume' and 'instrument.volume_step' must be positive in simulation mode")
		}
		if c.Instrument.Equity <= 0 {
			return fmt.Errorf("Critical config missing: 'instrument.equity' must be positive in simulation mode")
		}
	}
	if c.Feed == nil || c.Feed.URL == "" {
		return fmt.Errorf("Critical config missing: 'feed.url' must be explicitly specified in config.yaml")
	}

	if c.Normal == nil {
		return fmt.Errorf("Critical config missing: 'normal_config' configuration block must be provided in config.yaml")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.http_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.HeartbeatIntervalMinutes <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.heartbeat_interval_minutes' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.EquityRefreshSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.equity_refresh_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.LogDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.log_directory' must be explicitly specified in config.yaml (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.state_directory' must be explicitly specified in config.yaml (e.g., 'state')")
	}

	if c.Logs == nil {
		return fmt.Errorf("Critical config missing: 'logs' configuration block must be provided in config.yaml")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("Critical config missing: 'logs.log_level' must be explicitly specified in config.yaml (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_size_mb' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxBackups <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_backups' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_age_days' must be explicitly specified in config.yaml and be positive")
	}

	return nil
}

// EnvConfig carries venue credentials loaded from the environment.
type EnvConfig struct {
	ApiKey    string
	ApiSecret string
	BaseURL   string
}

func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		ApiKey:    os.Getenv("BROKER_API_KEY"),
		ApiSecret: os.Getenv("BROKER_API_SECRET"),
		BaseURL:   os.Getenv("BROKER_BASE_URL"),
	}
}
