package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/config"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle/adapters/exchangerate"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle/adapters/pullreport"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle/adapters/pushfeed"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle/adapters/twap"
)

// ledgerCaller is the caller token handed to downstream margin components.
// Push-feed adapters refuse it so bare feed reads cannot bypass aggregation.
const ledgerCaller = oracle.Caller("ledger")

// engine bundles everything built from configuration.
type engine struct {
	aggregator *oracle.Aggregator
	reports    *pullreport.Adapter // nil when no pull_report adapter is configured
	stop       func()
}

// buildEngine constructs every configured adapter, registers the per-asset
// source entries and returns the ready aggregator.
func buildEngine(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*engine, error) {
	owner := oracle.Caller(cfg.Owner)

	// Dial the Ethereum RPC lazily; config may be wholly off-chain in tests
	var eth *ethclient.Client
	dial := func() (*ethclient.Client, error) {
		if eth != nil {
			return eth, nil
		}
		if cfg.Ethereum.RPCURL == "" {
			return nil, fmt.Errorf("ethereum.rpc_url required for on-chain adapters")
		}
		client, err := ethclient.Dial(cfg.Ethereum.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial ethereum rpc: %w", err)
		}
		eth = client
		return eth, nil
	}

	var stops []func()
	var reports *pullreport.Adapter
	adapters := make(map[string]oracle.Adapter, len(cfg.Adapters))

	for _, adapterCfg := range cfg.Adapters {
		logger.Info("Initializing adapter", "name", adapterCfg.Name, "type", adapterCfg.Type)

		var (
			adapter oracle.Adapter
			err     error
		)
		switch adapterCfg.Type {
		case "pushfeed":
			adapter, err = buildPushFeed(adapterCfg, owner, dial, logger)
		case "twap":
			adapter, err = buildTWAP(ctx, adapterCfg, owner, dial, logger, &stops)
		case "exchange_rate":
			adapter, err = buildExchangeRate(adapterCfg, owner, dial, logger)
		case "capped_exchange_rate":
			adapter, err = buildCappedExchangeRate(adapterCfg, owner, dial, logger)
		case "pull_report":
			reports, err = buildPullReport(adapterCfg, &cfg.Reports, owner, logger, &stops)
			adapter = reports
		default:
			err = fmt.Errorf("unknown adapter type %q", adapterCfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("adapter %s: %w", adapterCfg.Name, err)
		}

		adapters[adapterCfg.Name] = adapter
	}

	agg := oracle.NewAggregator(owner, logger)
	for _, assetCfg := range cfg.Assets {
		entries := make([]oracle.SourceEntry, 0, len(assetCfg.Sources))
		for _, sourceCfg := range assetCfg.Sources {
			quote := oracle.Address(sourceCfg.Quote)
			if sourceCfg.Quote == "" {
				quote = oracle.USD
			}
			entries = append(entries, oracle.SourceEntry{
				Adapter:    adapters[sourceCfg.Adapter],
				QuoteAsset: quote,
				Weight:     sourceCfg.Weight,
			})
		}

		asset := oracle.Asset{Address: oracle.Address(assetCfg.Address), Decimals: assetCfg.Decimals}
		if err := agg.OwnerInsertOrUpdateToken(owner, asset, entries); err != nil {
			return nil, fmt.Errorf("asset %s: %w", assetCfg.Address, err)
		}
	}

	return &engine{
		aggregator: agg,
		reports:    reports,
		stop: func() {
			for _, stop := range stops {
				stop()
			}
			if eth != nil {
				eth.Close()
			}
		},
	}, nil
}

func buildPushFeed(cfg config.AdapterConfig, owner oracle.Caller, dial func() (*ethclient.Client, error), logger *logging.Logger) (*pushfeed.Adapter, error) {
	adapter := pushfeed.New(cfg.Name, pushfeed.Config{
		Owner:              owner,
		Ledger:             ledgerCaller,
		StalenessThreshold: cfg.StalenessThreshold.ToDuration(),
	}, logger)

	for _, raw := range cfg.Entries("feeds") {
		client, err := dial()
		if err != nil {
			return nil, err
		}

		min, err := raw.Decimal("min_answer", decimal.Zero)
		if err != nil {
			return nil, err
		}
		max, err := raw.Decimal("max_answer", decimal.Zero)
		if err != nil {
			return nil, err
		}

		feed, err := pushfeed.NewChainlinkFeed(client,
			common.HexToAddress(raw.String("feed_address")),
			int32(raw.Int("feed_decimals", 8)),
			min, max)
		if err != nil {
			return nil, err
		}

		asset := oracle.Asset{
			Address:  oracle.Address(raw.String("asset")),
			Decimals: uint8(raw.Int("decimals", 18)),
		}
		if err := adapter.OwnerInsertOrUpdateOracleToken(owner, asset, feed, raw.Bool("invert")); err != nil {
			return nil, err
		}
	}

	return adapter, nil
}

func buildTWAP(ctx context.Context, cfg config.AdapterConfig, owner oracle.Caller, dial func() (*ethclient.Client, error), logger *logging.Logger, stops *[]func()) (*twap.Adapter, error) {
	adapter := twap.New(cfg.Name, owner, logger)
	if interval := cfg.ObservationInterval.ToDuration(); interval != 0 {
		if err := adapter.OwnerSetObservationInterval(owner, interval); err != nil {
			return nil, err
		}
	}

	for _, raw := range cfg.Entries("pools") {
		client, err := dial()
		if err != nil {
			return nil, err
		}

		pool, err := twap.NewEVMPool(client, twap.EVMPoolConfig{
			Name:        raw.String("name"),
			PairAddress: common.HexToAddress(raw.String("pair_address")),
			Token0:      oracle.Address(raw.String("token0")),
			Token1:      oracle.Address(raw.String("token1")),
			Decimals0:   uint8(raw.Int("decimals0", 18)),
			Decimals1:   uint8(raw.Int("decimals1", 18)),
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := pool.Start(ctx); err != nil {
			return nil, err
		}
		*stops = append(*stops, pool.Stop)

		if err := adapter.OwnerAddPair(owner, pool); err != nil {
			return nil, err
		}
	}

	for _, raw := range cfg.Entries("floors") {
		floor, err := raw.Decimal("floor", decimal.Zero)
		if err != nil {
			return nil, err
		}
		asset := oracle.Address(raw.String("asset"))
		if err := adapter.OwnerSetFloorPrice(owner, asset, floor); err != nil {
			return nil, err
		}
	}

	return adapter, nil
}

func buildExchangeRate(cfg config.AdapterConfig, owner oracle.Caller, dial func() (*ethclient.Client, error), logger *logging.Logger) (*exchangerate.Adapter, error) {
	adapter := exchangerate.New(cfg.Name, owner, logger)

	for _, raw := range cfg.Entries("vaults") {
		source, err := buildVaultSource(raw, dial)
		if err != nil {
			return nil, err
		}
		asset := oracle.Address(raw.String("asset"))
		if err := adapter.OwnerInsertOrUpdateOracleToken(owner, asset, source); err != nil {
			return nil, err
		}
	}

	return adapter, nil
}

func buildCappedExchangeRate(cfg config.AdapterConfig, owner oracle.Caller, dial func() (*ethclient.Client, error), logger *logging.Logger) (*exchangerate.CappedAdapter, error) {
	adapter := exchangerate.NewCapped(cfg.Name, owner, logger)

	for _, raw := range cfg.Entries("vaults") {
		source, err := buildVaultSource(raw, dial)
		if err != nil {
			return nil, err
		}

		ratio, err := raw.Decimal("snapshot_ratio", decimal.Zero)
		if err != nil {
			return nil, err
		}
		growth, err := raw.Decimal("max_growth_per_year", decimal.Zero)
		if err != nil {
			return nil, err
		}
		snapshotAt, err := time.Parse(time.RFC3339, raw.String("snapshot_timestamp"))
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot_timestamp: %w", err)
		}

		asset := oracle.Address(raw.String("asset"))
		cap := exchangerate.CapParameters{
			SnapshotRatio:     ratio,
			SnapshotTimestamp: snapshotAt,
			MaxGrowthPerYear:  growth,
		}
		if err := adapter.OwnerInsertOrUpdateOracleToken(owner, asset, source, cap); err != nil {
			return nil, err
		}
	}

	return adapter, nil
}

func buildVaultSource(raw config.Entry, dial func() (*ethclient.Client, error)) (*exchangerate.VaultRateSource, error) {
	client, err := dial()
	if err != nil {
		return nil, err
	}
	return exchangerate.NewVaultRateSource(client,
		raw.String("name"),
		common.HexToAddress(raw.String("vault_address")),
		uint8(raw.Int("share_decimals", 18)),
		uint8(raw.Int("underlying_decimals", 18)))
}

func buildPullReport(cfg config.AdapterConfig, reportsCfg *config.ReportsConfig, owner oracle.Caller, logger *logging.Logger, stops *[]func()) (*pullreport.Adapter, error) {
	signers := make([]common.Address, 0, len(reportsCfg.Signers))
	for _, hex := range reportsCfg.Signers {
		signers = append(signers, common.HexToAddress(hex))
	}
	verifier, err := pullreport.NewSignerSetVerifier(signers, reportsCfg.MinSignatures)
	if err != nil {
		return nil, err
	}

	store, err := pullreport.OpenStore(reportsCfg.DSN)
	if err != nil {
		return nil, err
	}
	*stops = append(*stops, func() { _ = store.Close() })

	adapter := pullreport.New(cfg.Name, owner, verifier, store, logger)
	if window := cfg.StalenessThreshold.ToDuration(); window != 0 {
		if err := adapter.OwnerSetStalenessWindow(owner, window); err != nil {
			return nil, err
		}
	}

	for _, raw := range cfg.Entries("feeds") {
		asset := oracle.Asset{
			Address:  oracle.Address(raw.String("asset")),
			Decimals: uint8(raw.Int("decimals", 18)),
		}
		feedID := common.HexToHash(raw.String("feed_id"))
		if err := adapter.OwnerInsertOrUpdateOracleToken(owner, asset, feedID); err != nil {
			return nil, err
		}
	}

	return adapter, nil
}
