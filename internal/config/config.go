// Package config loads and validates the bdcollect YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnv overrides api_token when set, so the token can stay out of the
// config file.
const TokenEnv = "BDCOLLECT_TOKEN"

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// APIURL is the base URL of the catalog API (e.g. "https://www.bdgest.com/api").
	APIURL string `yaml:"api_url"`

	// APIToken is the session token sent as a bearer token. Optional in the
	// file; the BDCOLLECT_TOKEN environment variable takes precedence.
	APIToken string `yaml:"api_token"`

	// RefreshInterval controls how often the daemon refreshes both lists.
	// Minimum 1m, maximum 24h. Defaults to 15m if unset.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// RequestTimeout bounds a single HTTP round trip. Defaults to 20s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CachePath is the SQLite offline cache. A leading "~/" is expanded.
	// Defaults to ~/.local/share/bdcollect/cache.db.
	CachePath string `yaml:"cache_path"`

	// WifiOnly restricts full refreshes to wifi connections.
	WifiOnly bool `yaml:"wifi_only"`

	// ConfirmRemoval asks before destructive removals. Defaults to true.
	ConfirmRemoval bool `yaml:"confirm_removal"`

	// RetractableUI is a display preference passed through to the UI layer.
	RetractableUI bool `yaml:"retractable_ui"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "bdcollect".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, e.g. Authorization: "Bearer <token>".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/bdcollect/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "bdcollect", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	// Fields missing from the file keep these values.
	cfg := Config{ConfirmRemoval: true}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		cfg.APIToken = tok
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required fields are present and well-formed, and
// fills in defaults.
func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_url %q must be a valid http or https URL", c.APIURL)
	}

	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh_interval %v is too short (minimum 1m)", c.RefreshInterval)
	}
	if c.RefreshInterval > 24*time.Hour {
		return fmt.Errorf("refresh_interval %v is too long (maximum 24h)", c.RefreshInterval)
	}

	if c.RequestTimeout == 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout %v must be positive", c.RequestTimeout)
	}

	if c.CachePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.CachePath = filepath.Join(home, ".local", "share", "bdcollect", "cache.db")
	} else if rest, ok := strings.CutPrefix(c.CachePath, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.CachePath = filepath.Join(home, rest)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
