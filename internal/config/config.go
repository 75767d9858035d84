// Package config loads marketsync settings from defaults, an optional YAML
// file and MARKETSYNC_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"market-sync/internal/domain"
)

// Content backends.
const (
	ContentNode    = "node"
	ContentPinning = "pinning"
	ContentMemory  = "memory"
)

// Storage backends for the content cache and event journal.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendRedis      = "redis"
	BackendClickhouse = "clickhouse"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "MARKETSYNC_"

// Config is the complete runtime configuration.
type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger"`
	Content ContentConfig `yaml:"content"`
	Cache   StoreConfig   `yaml:"content_cache"`
	Journal StoreConfig   `yaml:"journal"`

	// Address is the acting address. Empty means no active account.
	Address        string        `yaml:"address"`
	TransientDelay time.Duration `yaml:"transient_delay"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

// LedgerConfig locates the ledger endpoints.
type LedgerConfig struct {
	RPCURL      string        `yaml:"rpc_url"`
	WSURL       string        `yaml:"ws_url"`
	ReadRetries int           `yaml:"read_retries"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ContentConfig selects and locates the content store.
type ContentConfig struct {
	Backend       string `yaml:"backend"`
	NodeAPIURL    string `yaml:"node_api_url"`
	GatewayURL    string `yaml:"gateway_url"`
	PinningAPIURL string `yaml:"pinning_api_url"`
	PinningKey    string `yaml:"pinning_key"`
	PinningSecret string `yaml:"pinning_secret"`
}

// StoreConfig selects a storage backend. DSN is a database DSN or Redis URL.
type StoreConfig struct {
	Backend  string `yaml:"backend"`
	DSN      string `yaml:"dsn"`
	// MaxConns caps the Postgres pool; zero keeps the driver default.
	MaxConns int32  `yaml:"max_conns"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Ledger: LedgerConfig{
			RPCURL:  "http://127.0.0.1:8545",
			WSURL:   "ws://127.0.0.1:8546",
			Timeout: 30 * time.Second,
		},
		Content: ContentConfig{
			Backend:       ContentNode,
			NodeAPIURL:    "http://127.0.0.1:5001",
			GatewayURL:    "http://127.0.0.1:8080",
			PinningAPIURL: "https://api.pinata.cloud",
		},
		Cache:          StoreConfig{Backend: BackendMemory},
		Journal:        StoreConfig{Backend: BackendMemory},
		TransientDelay: 5 * time.Second,
		MetricsAddr:    ":9090",
	}
}

// Load returns defaults overlaid with the YAML file at path (if non-empty)
// and then the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.decode(data)
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays MARKETSYNC_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LEDGER_RPC_URL":          &c.Ledger.RPCURL,
		"LEDGER_WS_URL":           &c.Ledger.WSURL,
		"CONTENT_BACKEND":         &c.Content.Backend,
		"CONTENT_NODE_API_URL":    &c.Content.NodeAPIURL,
		"CONTENT_GATEWAY_URL":     &c.Content.GatewayURL,
		"CONTENT_PINNING_API_URL": &c.Content.PinningAPIURL,
		"CONTENT_PINNING_KEY":     &c.Content.PinningKey,
		"CONTENT_PINNING_SECRET":  &c.Content.PinningSecret,
		"CACHE_BACKEND":           &c.Cache.Backend,
		"CACHE_DSN":               &c.Cache.DSN,
		"JOURNAL_BACKEND":         &c.Journal.Backend,
		"JOURNAL_DSN":             &c.Journal.DSN,
		"ADDRESS":                 &c.Address,
		"METRICS_ADDR":            &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"TRANSIENT_DELAY": &c.TransientDelay,
		"LEDGER_TIMEOUT":  &c.Ledger.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(EnvPrefix + "LEDGER_READ_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sLEDGER_READ_RETRIES: %w", EnvPrefix, err)
		}
		c.Ledger.ReadRetries = n
	}
	return nil
}

// Validate checks backend names and the fields each backend requires.
func (c *Config) Validate() error {
	if c.Ledger.RPCURL == "" {
		return errors.New("ledger rpc url is required")
	}
	if c.Ledger.ReadRetries < 0 {
		return errors.New("ledger read retries must be >= 0")
	}
	if c.TransientDelay <= 0 {
		return errors.New("transient delay must be positive")
	}

	switch c.Content.Backend {
	case ContentMemory:
	case ContentNode:
		if c.Content.NodeAPIURL == "" || c.Content.GatewayURL == "" {
			return errors.New("node content backend requires node api url and gateway url")
		}
	case ContentPinning:
		if c.Content.PinningKey == "" || c.Content.PinningSecret == "" {
			return errors.New("pinning content backend requires api key and secret")
		}
		if c.Content.GatewayURL == "" {
			return errors.New("pinning content backend requires gateway url")
		}
	default:
		return fmt.Errorf("unknown content backend %q", c.Content.Backend)
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendPostgres, BackendRedis:
		if c.Cache.DSN == "" {
			return fmt.Errorf("%s content cache requires a dsn", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("unknown content cache backend %q", c.Cache.Backend)
	}

	switch c.Journal.Backend {
	case BackendMemory:
	case BackendClickhouse:
		if c.Journal.DSN == "" {
			return errors.New("clickhouse journal requires a dsn")
		}
	default:
		return fmt.Errorf("unknown journal backend %q", c.Journal.Backend)
	}

	if _, err := c.ActingAddress(); err != nil {
		return err
	}
	return nil
}

// ActingAddress parses Address. An empty address yields the zero Address.
func (c *Config) ActingAddress() (domain.Address, error) {
	if c.Address == "" {
		return "", nil
	}
	addr, err := domain.ParseAddress(c.Address)
	if err != nil {
		return "", fmt.Errorf("acting address: %w", err)
	}
	return addr, nil
}
