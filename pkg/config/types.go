package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure
type Config struct {
	// Owner is the caller token allowed to perform administrative operations
	// through the API.
	Owner    string          `yaml:"owner"`
	API      APIConfig       `yaml:"api"`
	Ethereum EthereumConfig  `yaml:"ethereum"`
	Reports  ReportsConfig   `yaml:"reports"`
	Adapters []AdapterConfig `yaml:"adapters"`
	Assets   []AssetConfig   `yaml:"assets"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// APIConfig configures the price API component
type APIConfig struct {
	HTTP      HTTPConfig `yaml:"http"`
	WebSocket WSConfig   `yaml:"websocket"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket price stream
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	// BroadcastInterval controls how often fresh prices are pushed to
	// stream subscribers.
	BroadcastInterval Duration `yaml:"broadcast_interval"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// EthereumConfig configures the on-chain read path shared by adapters that
// sample feeds, pools or vaults over JSON-RPC.
type EthereumConfig struct {
	RPCURL string `yaml:"rpc_url"`
}

// ReportsConfig configures the pull-report store and verification
type ReportsConfig struct {
	// DSN is the sqlite path for persisted reports (":memory:" for ephemeral).
	DSN string `yaml:"dsn"`
	// Signers are the hex addresses allowed to sign reports.
	Signers []string `yaml:"signers"`
	// MinSignatures is the quorum of distinct signers per report.
	MinSignatures int `yaml:"min_signatures"`
}

// AdapterConfig configures one price adapter instance
type AdapterConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// StalenessThreshold applies to push-feed and pull-report adapters.
	StalenessThreshold Duration `yaml:"staleness_threshold"`
	// ObservationInterval applies to TWAP adapters.
	ObservationInterval Duration `yaml:"observation_interval"`
	// Config holds type-specific settings (feed addresses, pool addresses,
	// vault addresses, cap snapshots).
	Config map[string]interface{} `yaml:"config"`
}

// AssetConfig maps an asset to its weighted price sources
type AssetConfig struct {
	Address  string         `yaml:"address"`
	Decimals uint8          `yaml:"decimals"`
	Sources  []SourceConfig `yaml:"sources"`
}

// SourceConfig is one weighted source entry for an asset
type SourceConfig struct {
	// Adapter names an entry from the adapters list.
	Adapter string `yaml:"adapter"`
	// Quote is the asset the adapter's relative price is denominated in;
	// "USD" terminates the chain.
	Quote string `yaml:"quote"`
	// Weight is the source's share in percent; an asset's weights must sum
	// to exactly 100.
	Weight uint `yaml:"weight"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// Entry is one nested mapping from an adapter's type-specific config, as
// decoded by the YAML parser.
type Entry map[string]interface{}

// Entries reads a list of nested mappings (feeds, pools, vaults) from the
// adapter configuration. Missing or mistyped keys yield an empty list.
func (ac *AdapterConfig) Entries(key string) []Entry {
	raw, ok := ac.Config[key]
	if !ok {
		return nil
	}
	slice, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	entries := make([]Entry, 0, len(slice))
	for _, item := range slice {
		if entry, ok := item.(map[string]interface{}); ok {
			entries = append(entries, Entry(entry))
		}
	}
	return entries
}

// String retrieves a string value from the entry.
func (e Entry) String(key string) string {
	if val, ok := e[key].(string); ok {
		return val
	}
	return ""
}

// Int retrieves an integer from the entry.
func (e Entry) Int(key string, defaultValue int) int {
	if val, ok := e[key].(int); ok {
		return val
	}
	return defaultValue
}

// Bool retrieves a boolean from the entry.
func (e Entry) Bool(key string) bool {
	if val, ok := e[key].(bool); ok {
		return val
	}
	return false
}

// Decimal parses a decimal string from the entry. Absent keys return the
// default; present but malformed values are an error.
func (e Entry) Decimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	raw, ok := e[key]
	if !ok {
		return defaultValue, nil
	}
	str, ok := raw.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("%s must be a decimal string", key)
	}
	value, err := decimal.NewFromString(str)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
