// Package config provides run configuration parsing and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a load test run.
//
// Example YAML:
//
//	name: "checkout soak"
//	host: "http://localhost:8080"
//	profiles: [standard, high-load]
//	users: 50
//	spawnRate: 5
//	duration: 10m
//	timeout: 30s
//	thresholds:
//	  http_req_duration: ["p95 < 500ms"]
//	  http_req_failed: ["rate < 0.01"]
type Config struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the base URL of the target API
	Host string `json:"host" yaml:"host"`

	// Profiles selects the scenario profiles to run
	Profiles []string `json:"profiles,omitempty" yaml:"profiles,omitempty"`

	// Users is the number of concurrent virtual users
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// SpawnRate ramps users up at this many per second (0 = start all at once)
	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	// Rate switches to open-model load at this many iterations per second
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// MaxVUs caps the VU pool for rate-based runs
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// Duration is how long to run (e.g. "30s", "2m", "1h")
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Thresholds define pass/fail criteria for the run
	Thresholds *Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Thresholds define pass/fail criteria for metrics.
type Thresholds struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"] (less than 1% failures)
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Default returns a config with the default run parameters.
func Default() *Config {
	return &Config{
		Profiles: []string{"standard"},
		Users:    10,
		Duration: Duration(1 * time.Minute),
		Timeout:  Duration(30 * time.Second),
	}
}

// Load reads, schema-validates and decodes a YAML config file,
// filling in defaults for omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse schema-validates and decodes YAML config data.
func Parse(data []byte) (*Config, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(cfg.Profiles) == 0 {
		cfg.Profiles = []string{"standard"}
	}

	return cfg, nil
}

// Validate checks the semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}

	u, err := url.Parse(c.Host)
	if err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("host must be an http or https URL, got %q", c.Host)
	}
	if u.Host == "" {
		return fmt.Errorf("host URL is missing a hostname: %q", c.Host)
	}

	if c.Rate <= 0 && c.Users <= 0 {
		return fmt.Errorf("users must be > 0")
	}
	if c.SpawnRate < 0 {
		return fmt.Errorf("spawnRate must be >= 0")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate must be >= 0")
	}
	if c.MaxVUs < 0 {
		return fmt.Errorf("maxVUs must be >= 0")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if len(c.Profiles) == 0 {
		return fmt.Errorf("at least one profile is required")
	}

	return nil
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes if present
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
