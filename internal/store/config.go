package store

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type InstrumentConfig struct {
	Symbol string `yaml:"symbol"`
	Kind   string `yaml:"kind"` // INDEX or EQUITY, any case
}

type Config struct {
	Port        int                `yaml:"port"`
	DataDir     string             `yaml:"data_dir"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Upstream    struct {
		BaseURL            string        `yaml:"base_url"`
		RequestTimeout     time.Duration `yaml:"request_timeout"`
		MinRequestInterval time.Duration `yaml:"min_request_interval"`
	} `yaml:"upstream"`
	Session struct {
		TTL             time.Duration `yaml:"ttl"`
		StepDelay       time.Duration `yaml:"step_delay"`
		RedirectDelay   time.Duration `yaml:"redirect_delay"`
		AcquireAttempts int           `yaml:"acquire_attempts"`
		UserAgents      []string      `yaml:"user_agents"`
		BlockedTitles   []string      `yaml:"blocked_titles"`
		Persistence     string        `yaml:"persistence"` // FILE, SQLITE or NONE
		File            string        `yaml:"file"`
		SQLitePath      string        `yaml:"sqlite_path"`
	} `yaml:"session"`
	Fetch struct {
		MaxAttempts int           `yaml:"max_attempts"`
		RetryUnit   time.Duration `yaml:"retry_unit"`
	} `yaml:"fetch"`
	Refresh struct {
		Interval             time.Duration `yaml:"interval"`
		SessionRenewal       time.Duration `yaml:"session_renewal"`
		PostSessionDelay     time.Duration `yaml:"post_session_delay"`
		InterInstrumentDelay time.Duration `yaml:"inter_instrument_delay"`
		HistoryCapacity      int           `yaml:"history_capacity"`
	} `yaml:"refresh"`
	Window struct {
		Timezone string `yaml:"timezone"`
		Start    string `yaml:"start"` // HH:MM:SS
		End      string `yaml:"end"`
		Weekdays []int  `yaml:"weekdays"` // 0=Sunday
	} `yaml:"window"`
	EOD struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"eod"`
}

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d:[0-5]\d$`)

func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/117.0",
	}
}

// Default returns a config with every field at its production default.
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

// ApplyDefaults fills zero-valued fields. Durations set to a negative value
// in YAML are clamped to zero so tests and local runs can disable pauses.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if len(c.Instruments) == 0 {
		c.Instruments = []InstrumentConfig{
			{Symbol: "NIFTY", Kind: "INDEX"},
			{Symbol: "TCS", Kind: "EQUITY"},
			{Symbol: "RELIANCE", Kind: "EQUITY"},
			{Symbol: "BAJFINANCE", Kind: "EQUITY"},
		}
	}
	for i := range c.Instruments {
		c.Instruments[i].Symbol = strings.ToUpper(strings.TrimSpace(c.Instruments[i].Symbol))
		c.Instruments[i].Kind = strings.ToUpper(strings.TrimSpace(c.Instruments[i].Kind))
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://www.nseindia.com"
	}
	defaultDuration(&c.Upstream.RequestTimeout, 30*time.Second)
	defaultDuration(&c.Upstream.MinRequestInterval, 500*time.Millisecond)

	defaultDuration(&c.Session.TTL, 8*time.Minute)
	defaultDuration(&c.Session.StepDelay, 2*time.Second)
	defaultDuration(&c.Session.RedirectDelay, time.Second)
	if c.Session.AcquireAttempts == 0 {
		c.Session.AcquireAttempts = 1
	}
	if len(c.Session.UserAgents) == 0 {
		c.Session.UserAgents = DefaultUserAgents()
	}
	if len(c.Session.BlockedTitles) == 0 {
		c.Session.BlockedTitles = []string{"Access Denied"}
	}
	c.Session.Persistence = strings.ToUpper(c.Session.Persistence)
	if c.Session.Persistence == "" {
		c.Session.Persistence = "FILE"
	}
	if c.Session.File == "" {
		c.Session.File = "nse_cookies.json"
	}
	if c.Session.SQLitePath == "" {
		c.Session.SQLitePath = "session.db"
	}

	if c.Fetch.MaxAttempts == 0 {
		c.Fetch.MaxAttempts = 3
	}
	defaultDuration(&c.Fetch.RetryUnit, 2*time.Second)

	defaultDuration(&c.Refresh.Interval, 3*time.Minute)
	defaultDuration(&c.Refresh.SessionRenewal, 7*time.Minute)
	defaultDuration(&c.Refresh.PostSessionDelay, 2*time.Second)
	defaultDuration(&c.Refresh.InterInstrumentDelay, 3*time.Second)
	if c.Refresh.HistoryCapacity == 0 {
		c.Refresh.HistoryCapacity = 100
	}

	if c.Window.Timezone == "" {
		c.Window.Timezone = "Asia/Kolkata"
	}
	if c.Window.Start == "" {
		c.Window.Start = "09:15:30"
	}
	if c.Window.End == "" {
		c.Window.End = "15:35:00"
	}
	if len(c.Window.Weekdays) == 0 {
		c.Window.Weekdays = []int{1, 2, 3, 4, 5}
	}
}

func defaultDuration(d *time.Duration, def time.Duration) {
	switch {
	case *d == 0:
		*d = def
	case *d < 0:
		*d = 0
	}
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("NSE_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if len(c.Instruments) == 0 {
		return errors.New("instruments cannot be empty")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Symbol == "" {
			return errors.New("instrument symbol cannot be empty")
		}
		if inst.Kind != "INDEX" && inst.Kind != "EQUITY" {
			return fmt.Errorf("instrument %s: kind must be 'INDEX' or 'EQUITY', got '%s'", inst.Symbol, inst.Kind)
		}
		if seen[inst.Symbol] {
			return fmt.Errorf("duplicate instrument %s", inst.Symbol)
		}
		seen[inst.Symbol] = true
	}
	switch c.Session.Persistence {
	case "FILE", "SQLITE", "NONE":
	default:
		return fmt.Errorf("session.persistence must be 'FILE', 'SQLITE' or 'NONE', got '%s'", c.Session.Persistence)
	}
	if c.Session.AcquireAttempts < 1 {
		return fmt.Errorf("session.acquire_attempts must be at least 1, got %d", c.Session.AcquireAttempts)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Refresh.HistoryCapacity < 1 {
		return fmt.Errorf("refresh.history_capacity must be at least 1, got %d", c.Refresh.HistoryCapacity)
	}
	if c.Refresh.Interval <= 0 || c.Refresh.SessionRenewal <= 0 {
		return errors.New("refresh.interval and refresh.session_renewal must be positive")
	}
	if !clockPattern.MatchString(c.Window.Start) || !clockPattern.MatchString(c.Window.End) {
		return fmt.Errorf("window start/end must be HH:MM:SS, got '%s'/'%s'", c.Window.Start, c.Window.End)
	}
	if c.Window.Start >= c.Window.End {
		return fmt.Errorf("window start %s must be before end %s", c.Window.Start, c.Window.End)
	}
	for _, d := range c.Window.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("window weekday %d out of range 0-6", d)
		}
	}
	return nil
}

// IST is the fixed +05:30 zone used when tzdata is unavailable.
var IST = time.FixedZone("IST", 19800)

// Location resolves the trading-window timezone, falling back to IST.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		return IST
	}
	return loc
}

// LoadConfig reads path, applies defaults and environment overrides, and
// validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.ApplyDefaults()
	c.ApplyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
