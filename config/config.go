// Package config provides YAML configuration for running parkwatch as a
// standalone binary.
//
// Example configuration:
//
//	target_date: "03/29"
//	match_mode: lenient
//	time_unit: 1s
//
//	delays:
//	  sold_out: 5
//	  not_found: 2
//	  stale_refetch: 1
//
//	portal:
//	  driver: browser
//	  login_url: https://parking.crystalmountainresort.com/login/
//	  headless: false
//
//	alert:
//	  repetitions: 10
//	  webhook_url: ${PARKWATCH_WEBHOOK:-}
//
//	server:
//	  port: 8080
//
// Credentials never appear in the file. They are read from the environment,
// or a .env file, by [LoadCredentials].
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/parkwatch"
)

// Portal drivers.
const (
	DriverBrowser = "browser"
	DriverHTTP    = "http"
)

// Defaults applied by [Parse].
const (
	DefaultTimeUnit         = time.Second
	DefaultSoldOutDelay     = 5.0
	DefaultNotFoundDelay    = 2.0
	DefaultStaleDelay       = 1.0
	DefaultMaxStaleReads    = 3
	DefaultLoginAttempts    = 3
	DefaultUsernameEnv      = "CRYSTAL_USERNAME"
	DefaultPasswordEnv      = "CRYSTAL_PASSWORD"
	DefaultEnvFile          = ".env"
	DefaultAlertRepetitions = 10
	DefaultWebhookTimeout   = 5 * time.Second
)

// minTimeUnit keeps a mistyped unit from hammering the portal.
const minTimeUnit = 100 * time.Millisecond

// Config is the root configuration structure.
//
// It maps directly to the YAML file. Use [Load] or [Parse] to create one.
type Config struct {
	// Title is the dashboard title.
	Title string `yaml:"title"`

	// TargetDate is the default date (MM/DD or MM/DD/YYYY) used when none
	// is given on the command line.
	TargetDate string `yaml:"target_date"`

	// MatchMode is "lenient" (default) or "strict".
	MatchMode string `yaml:"match_mode"`

	// SoldOutMarker replaces "SOLD OUT".
	SoldOutMarker string `yaml:"sold_out_marker"`

	// AvailableMarkers are the strict-mode availability tokens.
	AvailableMarkers []string `yaml:"available_markers"`

	// TimeUnit is the unit the delays are counted in. Defaults to 1s.
	TimeUnit Duration `yaml:"time_unit"`

	Delays        DelaysConfig `yaml:"delays"`
	MaxStaleReads int          `yaml:"max_stale_reads"`

	Login       LoginConfig       `yaml:"login"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Portal      PortalConfig      `yaml:"portal"`
	Alert       AlertConfig       `yaml:"alert"`
	Server      ServerConfig      `yaml:"server"`
	History     HistoryConfig     `yaml:"history"`
}

// DelaysConfig holds retry delays in time units.
type DelaysConfig struct {
	SoldOut      float64 `yaml:"sold_out"`
	NotFound     float64 `yaml:"not_found"`
	StaleRefetch float64 `yaml:"stale_refetch"`
}

// LoginConfig controls login retries.
type LoginConfig struct {
	Attempts int `yaml:"attempts"`
}

// CredentialsConfig names where the account is read from.
type CredentialsConfig struct {
	UsernameEnv string `yaml:"username_env"`
	PasswordEnv string `yaml:"password_env"`

	// EnvFile is loaded before reading the variables, if it exists.
	// Variables already set in the environment win.
	EnvFile string `yaml:"env_file"`
}

// PortalConfig selects and configures the portal driver.
//
// URLs and selectors support environment variable substitution.
// Selectors starting with "/" are XPath (browser driver only); the calendar
// selectors and the date URL are templates over {{.Year}}, {{.Month}},
// {{.Day}} and {{.ISO}}.
type PortalConfig struct {
	// Driver is "browser" (default) or "http".
	Driver string `yaml:"driver"`

	LoginURL   string `yaml:"login_url"`
	BookingURL string `yaml:"booking_url"`

	// DateURL is the page for one date (http driver).
	DateURL string `yaml:"date_url"`

	LoginButton      string `yaml:"login_button"`
	UsernameField    string `yaml:"username_field"`
	PasswordField    string `yaml:"password_field"`
	LoggedInSelector string `yaml:"logged_in_selector"`

	CalendarMonth string `yaml:"calendar_month"`
	CalendarDay   string `yaml:"calendar_day"`
	StatusElement string `yaml:"status_element"`

	Timeout     Duration `yaml:"timeout"`
	SettleDelay Duration `yaml:"settle_delay"`

	// Headless hides the browser. Defaults to false so the operator can
	// take over the session.
	Headless  bool   `yaml:"headless"`
	UserAgent string `yaml:"user_agent"`
	ExecPath  string `yaml:"exec_path"`

	// RateLimit and Burst pace the http driver's requests.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// AlertConfig configures the availability alert.
type AlertConfig struct {
	// Bell rings the terminal bell on stderr. Defaults to true.
	Bell *bool `yaml:"bell"`

	Repetitions int `yaml:"repetitions"`

	// Interval between bell pulses. Defaults to one time unit.
	Interval Duration `yaml:"interval"`

	// WebhookURL, if set, receives a JSON POST.
	WebhookURL     string   `yaml:"webhook_url"`
	WebhookTimeout Duration `yaml:"webhook_timeout"`
}

// BellEnabled reports whether the terminal bell is on.
func (a AlertConfig) BellEnabled() bool {
	return a.Bell == nil || *a.Bell
}

// ServerConfig configures the optional status server.
type ServerConfig struct {
	// Port of the status server. 0 disables it.
	Port int `yaml:"port"`
}

// HistoryConfig configures the optional Postgres event log.
type HistoryConfig struct {
	// DatabaseURL is a Postgres connection string. Empty disables history.
	DatabaseURL string `yaml:"database_url"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults, expands
// environment variables and validates the result.
//
// An empty document is valid and yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration of an empty file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.TimeUnit == 0 {
		c.TimeUnit = Duration(DefaultTimeUnit)
	}
	if c.Delays.SoldOut == 0 {
		c.Delays.SoldOut = DefaultSoldOutDelay
	}
	if c.Delays.NotFound == 0 {
		c.Delays.NotFound = DefaultNotFoundDelay
	}
	if c.Delays.StaleRefetch == 0 {
		c.Delays.StaleRefetch = DefaultStaleDelay
	}
	if c.MaxStaleReads == 0 {
		c.MaxStaleReads = DefaultMaxStaleReads
	}
	if c.Login.Attempts == 0 {
		c.Login.Attempts = DefaultLoginAttempts
	}
	if c.Credentials.UsernameEnv == "" {
		c.Credentials.UsernameEnv = DefaultUsernameEnv
	}
	if c.Credentials.PasswordEnv == "" {
		c.Credentials.PasswordEnv = DefaultPasswordEnv
	}
	if c.Credentials.EnvFile == "" {
		c.Credentials.EnvFile = DefaultEnvFile
	}
	if c.Portal.Driver == "" {
		c.Portal.Driver = DriverBrowser
	}
	if c.Alert.Repetitions == 0 {
		c.Alert.Repetitions = DefaultAlertRepetitions
	}
	if c.Alert.Interval == 0 {
		c.Alert.Interval = c.TimeUnit
	}
	if c.Alert.WebhookTimeout == 0 {
		c.Alert.WebhookTimeout = Duration(DefaultWebhookTimeout)
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.TimeUnit.Duration() < minTimeUnit {
		return fmt.Errorf("time_unit must be at least %s, got %s", minTimeUnit, c.TimeUnit.Duration())
	}

	if _, err := parkwatch.ParseMatchMode(c.MatchMode); err != nil {
		return fmt.Errorf("match_mode: %w", err)
	}

	if c.Delays.SoldOut < 0 || c.Delays.NotFound < 0 || c.Delays.StaleRefetch < 0 {
		return errors.New("delays cannot be negative")
	}
	if c.MaxStaleReads < 1 {
		return fmt.Errorf("max_stale_reads must be at least 1, got %d", c.MaxStaleReads)
	}
	if c.Login.Attempts < 1 {
		return fmt.Errorf("login.attempts must be at least 1, got %d", c.Login.Attempts)
	}

	expanded, err := expandEnvVars(c.TargetDate)
	if err != nil {
		return fmt.Errorf("target_date: %w", err)
	}
	c.TargetDate = strings.TrimSpace(expanded)

	if err := c.Portal.expandAndValidate(); err != nil {
		return err
	}

	if c.Alert.Repetitions < 0 {
		return fmt.Errorf("alert.repetitions cannot be negative, got %d", c.Alert.Repetitions)
	}
	if c.Alert.Interval.Duration() < 0 {
		return fmt.Errorf("alert.interval cannot be negative, got %s", c.Alert.Interval.Duration())
	}
	if c.Alert.WebhookURL, err = expandEnvVars(c.Alert.WebhookURL); err != nil {
		return fmt.Errorf("alert.webhook_url: %w", err)
	}
	if c.Alert.WebhookURL != "" {
		if err := validateHTTPURL(c.Alert.WebhookURL); err != nil {
			return fmt.Errorf("alert.webhook_url: %w", err)
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}

	if c.History.DatabaseURL, err = expandEnvVars(c.History.DatabaseURL); err != nil {
		return fmt.Errorf("history.database_url: %w", err)
	}

	return nil
}

func (p *PortalConfig) expandAndValidate() error {
	fields := []struct {
		name  string
		value *string
	}{
		{"login_url", &p.LoginURL},
		{"booking_url", &p.BookingURL},
		{"date_url", &p.DateURL},
		{"login_button", &p.LoginButton},
		{"username_field", &p.UsernameField},
		{"password_field", &p.PasswordField},
		{"logged_in_selector", &p.LoggedInSelector},
		{"calendar_month", &p.CalendarMonth},
		{"calendar_day", &p.CalendarDay},
		{"status_element", &p.StatusElement},
		{"user_agent", &p.UserAgent},
		{"exec_path", &p.ExecPath},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.value)
		if err != nil {
			return fmt.Errorf("portal.%s: %w", f.name, err)
		}
		*f.value = expanded
	}

	for name, u := range map[string]string{"login_url": p.LoginURL, "booking_url": p.BookingURL} {
		if u == "" {
			continue
		}
		if err := validateHTTPURL(u); err != nil {
			return fmt.Errorf("portal.%s: %w", name, err)
		}
	}

	if p.Timeout.Duration() < 0 {
		return fmt.Errorf("portal.timeout cannot be negative, got %s", p.Timeout.Duration())
	}
	if p.Burst < 0 {
		return fmt.Errorf("portal.burst cannot be negative, got %d", p.Burst)
	}

	switch p.Driver {
	case DriverBrowser:
	case DriverHTTP:
		if p.LoginURL == "" {
			return errors.New("portal.login_url is required for the http driver")
		}
		if p.DateURL == "" {
			return errors.New("portal.date_url is required for the http driver")
		}
		if strings.HasPrefix(p.StatusElement, "/") {
			return errors.New("portal.status_element: the http driver only supports CSS selectors")
		}
	default:
		return fmt.Errorf("portal.driver must be %q or %q, got %q", DriverBrowser, DriverHTTP, p.Driver)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}

// ResolveTarget resolves the date to watch. arg, when non-empty, wins over
// the configured target_date. With neither set an error is returned; there
// is no implicit "today".
func (c *Config) ResolveTarget(arg string, now time.Time) (parkwatch.TargetDate, error) {
	input := strings.TrimSpace(arg)
	if input == "" {
		input = c.TargetDate
	}
	if input == "" {
		return parkwatch.TargetDate{}, errors.New("no target date: pass DATE or set target_date in the config")
	}
	return parkwatch.ResolveDate(input, now)
}
