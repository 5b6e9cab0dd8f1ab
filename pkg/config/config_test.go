package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Owner: "ops",
		Adapters: []AdapterConfig{
			{Name: "chainlink", Type: "pushfeed"},
			{Name: "univ2", Type: "twap"},
		},
		Assets: []AssetConfig{
			{
				Address:  "0xWETH",
				Decimals: 18,
				Sources:  []SourceConfig{{Adapter: "chainlink", Quote: "USD", Weight: 100}},
			},
			{
				Address:  "0xLINK",
				Decimals: 18,
				Sources: []SourceConfig{
					{Adapter: "univ2", Quote: "0xWETH", Weight: 60},
					{Adapter: "chainlink", Quote: "USD", Weight: 40},
				},
			},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_OWNER_TOKEN", "ops")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
owner: ${TEST_OWNER_TOKEN}
adapters:
  - name: chainlink
    type: pushfeed
    staleness_threshold: 36h
assets:
  - address: "0xWETH"
    decimals: 18
    sources:
      - adapter: chainlink
        quote: USD
        weight: 100
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ops", cfg.Owner)
	assert.Equal(t, 36*time.Hour, cfg.Adapters[0].StalenessThreshold.ToDuration())

	// defaults applied
	assert.Equal(t, ":8080", cfg.API.HTTP.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	require.NoError(t, Validate(cfg))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validConfig()))
}

func TestValidate_OwnerRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Owner = ""
	assert.ErrorIs(t, Validate(cfg), ErrOwnerRequired)
}

func TestValidate_NoAdapters(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters = nil
	assert.ErrorIs(t, Validate(cfg), ErrNoAdaptersConfigured)
}

func TestValidate_DuplicateAdapterName(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters = append(cfg.Adapters, AdapterConfig{Name: "chainlink", Type: "twap"})
	assert.ErrorIs(t, Validate(cfg), ErrDuplicateAdapterName)
}

func TestValidate_UnknownAdapterType(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters[0].Type = "telepathy"
	assert.ErrorIs(t, Validate(cfg), ErrUnknownAdapterType)
}

func TestValidate_WeightSum(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Sources[0].Weight = 99
	assert.ErrorIs(t, Validate(cfg), ErrInvalidWeightSum)

	cfg.Assets[0].Sources[0].Weight = 150
	assert.ErrorIs(t, Validate(cfg), ErrInvalidWeightSum)
}

func TestValidate_UnknownAdapterRef(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Sources[0].Adapter = "ghost"
	assert.ErrorIs(t, Validate(cfg), ErrUnknownAdapterRef)
}

func TestValidate_UnknownQuoteAsset(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Sources[0].Quote = "0xGHOST"
	assert.ErrorIs(t, Validate(cfg), ErrUnknownQuoteAsset)
}

func TestValidate_AssetDecimals(t *testing.T) {
	cfg := validConfig()
	cfg.Assets[0].Decimals = 19
	assert.ErrorIs(t, Validate(cfg), ErrInvalidAssetDecimals)
}

func TestValidate_QuoteCycle(t *testing.T) {
	cfg := validConfig()
	// WETH quotes in LINK while LINK quotes in WETH
	cfg.Assets[0].Sources = []SourceConfig{{Adapter: "univ2", Quote: "0xLINK", Weight: 100}}
	assert.ErrorIs(t, Validate(cfg), ErrCyclicQuoteGraph)
}

func TestValidate_PullReportSigners(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters = append(cfg.Adapters, AdapterConfig{Name: "reports", Type: "pull_report"})

	assert.ErrorIs(t, Validate(cfg), ErrNoReportSigners)

	cfg.Reports.Signers = []string{"0xabc"}
	cfg.Reports.MinSignatures = 2
	assert.ErrorIs(t, Validate(cfg), ErrInvalidMinSignatures)

	cfg.Reports.MinSignatures = 1
	assert.NoError(t, Validate(cfg))
}

func TestValidate_Logging(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	assert.ErrorIs(t, Validate(cfg), ErrInvalidLogLevel)

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "xml"
	assert.ErrorIs(t, Validate(cfg), ErrInvalidLogFormat)
}

func TestAdapterConfigEntries(t *testing.T) {
	raw := []byte(`
owner: ops
adapters:
  - name: chainlink
    type: pushfeed
    config:
      feeds:
        - asset: "0xWETH"
          feed_address: "0x1234"
          feed_decimals: 8
          invert: true
          min_answer: "100000000"
`)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	entries := cfg.Adapters[0].Entries("feeds")
	require.Len(t, entries, 1)
	entry := entries[0]

	assert.Equal(t, "0xWETH", entry.String("asset"))
	assert.Equal(t, "", entry.String("missing"))
	assert.Equal(t, 8, entry.Int("feed_decimals", 18))
	assert.Equal(t, 18, entry.Int("missing", 18))
	assert.True(t, entry.Bool("invert"))
	assert.False(t, entry.Bool("missing"))

	min, err := entry.Decimal("min_answer", decimal.Zero)
	require.NoError(t, err)
	assert.True(t, min.Equal(decimal.NewFromInt(100000000)))

	fallback, err := entry.Decimal("max_answer", decimal.NewFromInt(7))
	require.NoError(t, err)
	assert.True(t, fallback.Equal(decimal.NewFromInt(7)))

	_, err = entry.Decimal("feed_decimals", decimal.Zero)
	assert.Error(t, err)

	assert.Nil(t, cfg.Adapters[0].Entries("pools"))
}
