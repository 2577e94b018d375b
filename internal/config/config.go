package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the top-level kite configuration, loaded from YAML with
// environment variable fallbacks for the most commonly tuned knobs.
type Config struct {
	Bridge  Bridge  `yaml:"bridge"`
	Portal  Portal  `yaml:"portal"`
	Gateway Gateway `yaml:"gateway"`
	Tracing Tracing `yaml:"tracing"`
}

// Bridge configures the host side of the agent task bridge.
type Bridge struct {
	// Listen is the TCP bind address for incoming agent connections.
	Listen string `yaml:"listen"`
	// RequestTimeout bounds every dispatched agent request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxPayload caps the declared size of a single frame body.
	MaxPayload int `yaml:"max_payload"`
	// ProbeInterval enables periodic liveness pings when positive.
	ProbeInterval time.Duration `yaml:"probe_interval"`
	// ProbeFailures is the number of consecutive failed probes before eviction.
	ProbeFailures int `yaml:"probe_failures"`
	// IDMode selects the agent connection id scheme, uuid or cuid.
	IDMode string `yaml:"id_mode"`
}

// Portal configures the SSO credential relay.
type Portal struct {
	BaseURL     string        `yaml:"base_url"`
	OCREndpoint string        `yaml:"ocr_endpoint"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Gateway configures the HTTP surface of the host.
type Gateway struct {
	Listen    string   `yaml:"listen"`
	ACMEHosts []string `yaml:"acme_hosts"`
	ACMEEmail string   `yaml:"acme_email"`
	ACMECache string   `yaml:"acme_cache"`
}

// Tracing configures the OpenTelemetry exporter.
type Tracing struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

const (
	defaultBridgeListen   = ":8910"
	defaultGatewayListen  = ":8080"
	defaultRequestTimeout = 5 * time.Second
	defaultMaxPayload     = 10 << 20
	defaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) kite/1.0"
)

// Load reads the YAML file at path (optional), applies environment
// fallbacks, and fills in defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := LoadYAML(path, cfg); err != nil {
		return nil, err
	}

	if cfg.Bridge.Listen == "" {
		cfg.Bridge.Listen = GetStringEnv("KITE_BRIDGE_LISTEN", defaultBridgeListen)
	}
	if cfg.Bridge.RequestTimeout <= 0 {
		cfg.Bridge.RequestTimeout = GetDurationEnv("KITE_REQUEST_TIMEOUT", defaultRequestTimeout)
	}
	if cfg.Bridge.MaxPayload <= 0 {
		cfg.Bridge.MaxPayload = GetIntEnv("KITE_MAX_PAYLOAD", defaultMaxPayload)
	}
	if cfg.Bridge.IDMode == "" {
		cfg.Bridge.IDMode = GetStringEnv("KITE_ID_MODE", "uuid")
	}
	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = GetStringEnv("KITE_GATEWAY_LISTEN", defaultGatewayListen)
	}
	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = GetStringEnv("KITE_SSO_BASE_URL", "")
	}
	if cfg.Portal.OCREndpoint == "" {
		cfg.Portal.OCREndpoint = GetStringEnv("KITE_OCR_ENDPOINT", "")
	}
	if cfg.Portal.UserAgent == "" {
		cfg.Portal.UserAgent = defaultUserAgent
	}
	if cfg.Portal.Timeout <= 0 {
		cfg.Portal.Timeout = cfg.Bridge.RequestTimeout
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Bridge.RequestTimeout <= 0 {
		return errors.New("bridge request_timeout must be positive")
	}
	if c.Bridge.MaxPayload <= 0 {
		return errors.New("bridge max_payload must be positive")
	}
	if c.Bridge.ProbeInterval > 0 && c.Bridge.ProbeFailures <= 0 {
		return fmt.Errorf("bridge probe_failures must be positive when probing is enabled")
	}
	switch c.Bridge.IDMode {
	case "uuid", "cuid":
	default:
		return fmt.Errorf("bridge id_mode %q is not supported (use uuid or cuid)", c.Bridge.IDMode)
	}
	return nil
}
