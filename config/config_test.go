package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/parkwatch"
)

func TestParse_EmptyConfig(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.TimeUnit.Duration() != time.Second {
		t.Errorf("TimeUnit = %v, want 1s", cfg.TimeUnit.Duration())
	}
	if cfg.Delays.SoldOut != 5 || cfg.Delays.NotFound != 2 || cfg.Delays.StaleRefetch != 1 {
		t.Errorf("Delays = %+v, want {5 2 1}", cfg.Delays)
	}
	if cfg.MaxStaleReads != 3 {
		t.Errorf("MaxStaleReads = %d, want 3", cfg.MaxStaleReads)
	}
	if cfg.Login.Attempts != 3 {
		t.Errorf("Login.Attempts = %d, want 3", cfg.Login.Attempts)
	}
	if cfg.Credentials.UsernameEnv != "CRYSTAL_USERNAME" || cfg.Credentials.PasswordEnv != "CRYSTAL_PASSWORD" {
		t.Errorf("Credentials = %+v, want CRYSTAL_USERNAME/CRYSTAL_PASSWORD", cfg.Credentials)
	}
	if cfg.Credentials.EnvFile != ".env" {
		t.Errorf("EnvFile = %q, want .env", cfg.Credentials.EnvFile)
	}
	if cfg.Portal.Driver != DriverBrowser {
		t.Errorf("Driver = %q, want %q", cfg.Portal.Driver, DriverBrowser)
	}
	if cfg.Portal.Headless {
		t.Error("Headless = true, want false")
	}
	if !cfg.Alert.BellEnabled() {
		t.Error("BellEnabled() = false, want true")
	}
	if cfg.Alert.Repetitions != 10 {
		t.Errorf("Repetitions = %d, want 10", cfg.Alert.Repetitions)
	}
	if cfg.Alert.Interval.Duration() != time.Second {
		t.Errorf("Alert.Interval = %v, want the time unit", cfg.Alert.Interval.Duration())
	}
	if cfg.Server.Port != 0 {
		t.Errorf("Server.Port = %d, want 0 (disabled)", cfg.Server.Port)
	}
}

func TestDefault_MatchesEmptyParse(t *testing.T) {
	parsed, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	def := Default()

	if def.TimeUnit != parsed.TimeUnit || def.Delays != parsed.Delays || def.Portal.Driver != parsed.Portal.Driver {
		t.Errorf("Default() = %+v, want %+v", def, parsed)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
title: Crystal Saturday
target_date: "03/29"
match_mode: strict
sold_out_marker: FULL
available_markers: [OPEN]
time_unit: 500ms

delays:
  sold_out: 10
  not_found: 4
  stale_refetch: 0.5

max_stale_reads: 5

login:
  attempts: 2

credentials:
  username_env: PW_USER
  password_env: PW_PASS
  env_file: secrets.env

portal:
  driver: http
  login_url: https://portal.example/login
  date_url: https://portal.example/book?date={{.ISO}}
  logged_in_selector: "#account"
  status_element: "#status"
  timeout: 15s
  rate_limit: 0.5
  burst: 1

alert:
  bell: false
  repetitions: 3
  interval: 250ms
  webhook_url: https://hooks.example/parkwatch
  webhook_timeout: 2s

server:
  port: 9090

history:
  database_url: postgres://localhost/parkwatch
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Title != "Crystal Saturday" {
		t.Errorf("Title = %q", cfg.Title)
	}
	if cfg.TargetDate != "03/29" {
		t.Errorf("TargetDate = %q, want 03/29", cfg.TargetDate)
	}
	if cfg.MatchMode != "strict" || cfg.SoldOutMarker != "FULL" {
		t.Errorf("match settings = %q/%q", cfg.MatchMode, cfg.SoldOutMarker)
	}
	if len(cfg.AvailableMarkers) != 1 || cfg.AvailableMarkers[0] != "OPEN" {
		t.Errorf("AvailableMarkers = %v, want [OPEN]", cfg.AvailableMarkers)
	}
	if cfg.TimeUnit.Duration() != 500*time.Millisecond {
		t.Errorf("TimeUnit = %v, want 500ms", cfg.TimeUnit.Duration())
	}
	if cfg.Delays != (DelaysConfig{SoldOut: 10, NotFound: 4, StaleRefetch: 0.5}) {
		t.Errorf("Delays = %+v", cfg.Delays)
	}
	if cfg.MaxStaleReads != 5 || cfg.Login.Attempts != 2 {
		t.Errorf("MaxStaleReads = %d, Login.Attempts = %d", cfg.MaxStaleReads, cfg.Login.Attempts)
	}
	if cfg.Credentials != (CredentialsConfig{UsernameEnv: "PW_USER", PasswordEnv: "PW_PASS", EnvFile: "secrets.env"}) {
		t.Errorf("Credentials = %+v", cfg.Credentials)
	}
	if cfg.Portal.Driver != DriverHTTP || cfg.Portal.DateURL != "https://portal.example/book?date={{.ISO}}" {
		t.Errorf("Portal = %+v", cfg.Portal)
	}
	if cfg.Portal.Timeout.Duration() != 15*time.Second {
		t.Errorf("Portal.Timeout = %v, want 15s", cfg.Portal.Timeout.Duration())
	}
	if cfg.Portal.RateLimit != 0.5 || cfg.Portal.Burst != 1 {
		t.Errorf("RateLimit = %v, Burst = %d", cfg.Portal.RateLimit, cfg.Portal.Burst)
	}
	if cfg.Alert.BellEnabled() {
		t.Error("BellEnabled() = true, want false")
	}
	if cfg.Alert.Interval.Duration() != 250*time.Millisecond {
		t.Errorf("Alert.Interval = %v, want 250ms", cfg.Alert.Interval.Duration())
	}
	if cfg.Alert.WebhookURL != "https://hooks.example/parkwatch" {
		t.Errorf("WebhookURL = %q", cfg.Alert.WebhookURL)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.History.DatabaseURL != "postgres://localhost/parkwatch" {
		t.Errorf("DatabaseURL = %q", cfg.History.DatabaseURL)
	}
}

func TestParse_AlertIntervalFollowsTimeUnit(t *testing.T) {
	cfg, err := Parse([]byte("time_unit: 200ms\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Alert.Interval.Duration() != 200*time.Millisecond {
		t.Errorf("Alert.Interval = %v, want 200ms", cfg.Alert.Interval.Duration())
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("PARKWATCH_HOOK", "https://hooks.example/abc")
	t.Setenv("PARKWATCH_DB", "postgres://db/parkwatch")
	t.Setenv("PARKWATCH_HOST", "portal.example")

	yaml := `
portal:
  login_url: https://${PARKWATCH_HOST}/login/
  status_element: ${STATUS_SELECTOR:-#status}
alert:
  webhook_url: ${PARKWATCH_HOOK}
history:
  database_url: ${PARKWATCH_DB}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Portal.LoginURL != "https://portal.example/login/" {
		t.Errorf("LoginURL = %q", cfg.Portal.LoginURL)
	}
	if cfg.Portal.StatusElement != "#status" {
		t.Errorf("StatusElement = %q, want default #status", cfg.Portal.StatusElement)
	}
	if cfg.Alert.WebhookURL != "https://hooks.example/abc" {
		t.Errorf("WebhookURL = %q", cfg.Alert.WebhookURL)
	}
	if cfg.History.DatabaseURL != "postgres://db/parkwatch" {
		t.Errorf("DatabaseURL = %q", cfg.History.DatabaseURL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
history:
  database_url: ${PARKWATCH_UNSET_DATABASE}
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "PARKWATCH_UNSET_DATABASE") {
		t.Errorf("error = %q, want it to name the variable", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"time unit too small", "time_unit: 10ms", "time_unit"},
		{"unknown match mode", "match_mode: fuzzy", "match_mode"},
		{"negative delay", "delays:\n  sold_out: -1", "delays"},
		{"negative stale reads", "max_stale_reads: -1", "max_stale_reads"},
		{"negative login attempts", "login:\n  attempts: -2", "login.attempts"},
		{"unknown driver", "portal:\n  driver: carrier-pigeon", "portal.driver"},
		{"http driver without login url", "portal:\n  driver: http\n  date_url: https://p.example/d", "login_url"},
		{"http driver without date url", "portal:\n  driver: http\n  login_url: https://p.example/login", "date_url"},
		{"http driver with xpath", "portal:\n  driver: http\n  login_url: https://p.example/login\n  date_url: https://p.example/d\n  status_element: /html/body/div", "CSS"},
		{"login url without scheme", "portal:\n  login_url: portal.example/login", "portal.login_url"},
		{"booking url ftp", "portal:\n  booking_url: ftp://portal.example", "portal.booking_url"},
		{"negative timeout", "portal:\n  timeout: -1s", "portal.timeout"},
		{"negative burst", "portal:\n  burst: -1", "portal.burst"},
		{"negative repetitions", "alert:\n  repetitions: -1", "alert.repetitions"},
		{"webhook without host", "alert:\n  webhook_url: https://", "alert.webhook_url"},
		{"port too large", "server:\n  port: 70000", "server.port"},
		{"negative port", "server:\n  port: -1", "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("portal: [unclosed"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML")
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"time_unit: 1s", time.Second, false},
		{"time_unit: 1500ms", 1500 * time.Millisecond, false},
		{"time_unit: 2m", 2 * time.Minute, false},
		{"time_unit: soon", 0, true},
		{"time_unit: [1s]", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.TimeUnit.Duration() != tt.want {
				t.Errorf("TimeUnit = %v, want %v", cfg.TimeUnit.Duration(), tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
		{"template left alone", "#calendar_{{.Year}}-{{.Month}}", "#calendar_{{.Year}}-{{.Month}}", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parkwatch.yaml")
	if err := os.WriteFile(path, []byte("title: From File\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Title != "From File" {
		t.Errorf("Title = %q, want From File", cfg.Title)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestResolveTarget(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		configured string
		arg        string
		want       parkwatch.TargetDate
		wantErr    error
	}{
		{"argument", "", "3/29", parkwatch.TargetDate{Year: 2025, Month: time.March, Day: 29}, nil},
		{"argument wins", "04/12", "3/29", parkwatch.TargetDate{Year: 2025, Month: time.March, Day: 29}, nil},
		{"configured", "04/12", "  ", parkwatch.TargetDate{Year: 2025, Month: time.April, Day: 12}, nil},
		{"past", "", "02/01", parkwatch.TargetDate{}, parkwatch.ErrPastDate},
		{"bad format", "", "March 29", parkwatch.TargetDate{}, parkwatch.ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{TargetDate: tt.configured}
			got, err := cfg.ResolveTarget(tt.arg, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveTarget() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveTarget() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveTarget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveTarget_NoDate(t *testing.T) {
	cfg := &Config{}
	if _, err := cfg.ResolveTarget("", time.Now()); err == nil {
		t.Fatal("ResolveTarget() expected error with no date")
	}
}
