package config

import (
	"fmt"
	"os"
	"strings"
)

// AdapterTypes are the recognized adapter type strings.
var AdapterTypes = []string{"pushfeed", "twap", "exchange_rate", "capped_exchange_rate", "pull_report"}

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if cfg.Owner == "" {
		return ErrOwnerRequired
	}

	if err := validateAPIConfig(&cfg.API); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	// Validate adapters
	if len(cfg.Adapters) == 0 {
		return ErrNoAdaptersConfigured
	}
	adapterNames := make(map[string]string, len(cfg.Adapters))
	for i, adapter := range cfg.Adapters {
		if err := validateAdapterConfig(&adapter); err != nil {
			return fmt.Errorf("adapter %d (%s): %w", i, adapter.Name, err)
		}
		if _, exists := adapterNames[adapter.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateAdapterName, adapter.Name)
		}
		adapterNames[adapter.Name] = adapter.Type
	}

	// Pull-report adapters need a verifiable signer set
	for _, adapter := range cfg.Adapters {
		if adapter.Type == "pull_report" {
			if err := validateReportsConfig(&cfg.Reports); err != nil {
				return fmt.Errorf("reports config: %w", err)
			}
			break
		}
	}

	// Validate assets
	if len(cfg.Assets) == 0 {
		return ErrNoAssetsConfigured
	}
	assetAddrs := make(map[string]bool, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		assetAddrs[asset.Address] = true
	}
	for i, asset := range cfg.Assets {
		if err := validateAssetConfig(&asset, adapterNames, assetAddrs); err != nil {
			return fmt.Errorf("asset %d (%s): %w", i, asset.Address, err)
		}
	}
	if err := validateQuoteGraph(cfg.Assets); err != nil {
		return err
	}

	// Validate logging config
	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateAPIConfig(cfg *APIConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("TLS cert file not found: %s", cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("TLS key file not found: %s", cfg.HTTP.TLS.Key)
		}
	}
	return nil
}

func validateAdapterConfig(cfg *AdapterConfig) error {
	if cfg.Name == "" {
		return ErrAdapterNameRequired
	}

	typeValid := false
	for _, t := range AdapterTypes {
		if strings.ToLower(cfg.Type) == t {
			typeValid = true
			break
		}
	}
	if !typeValid {
		return fmt.Errorf("%w: %s (must be one of: %s)",
			ErrUnknownAdapterType, cfg.Type, strings.Join(AdapterTypes, ", "))
	}

	return nil
}

func validateReportsConfig(cfg *ReportsConfig) error {
	if len(cfg.Signers) == 0 {
		return ErrNoReportSigners
	}
	if cfg.MinSignatures <= 0 || cfg.MinSignatures > len(cfg.Signers) {
		return fmt.Errorf("%w: %d signatures, %d signers",
			ErrInvalidMinSignatures, cfg.MinSignatures, len(cfg.Signers))
	}
	return nil
}

func validateAssetConfig(cfg *AssetConfig, adapterNames map[string]string, assetAddrs map[string]bool) error {
	if cfg.Address == "" {
		return ErrAssetAddressRequired
	}
	if cfg.Decimals > 18 {
		return fmt.Errorf("%w: got %d", ErrInvalidAssetDecimals, cfg.Decimals)
	}
	if len(cfg.Sources) == 0 {
		return ErrNoAssetSources
	}

	var total uint
	for i, source := range cfg.Sources {
		if _, ok := adapterNames[source.Adapter]; !ok {
			return fmt.Errorf("%w: source %d references %q", ErrUnknownAdapterRef, i, source.Adapter)
		}
		if source.Quote != "" && source.Quote != "USD" && !assetAddrs[source.Quote] {
			return fmt.Errorf("%w: source %d quotes in %q", ErrUnknownQuoteAsset, i, source.Quote)
		}
		total += source.Weight
	}
	if total != 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidWeightSum, total)
	}

	return nil
}

// validateQuoteGraph rejects quote-asset reference cycles before they can
// reach the aggregator.
func validateQuoteGraph(assets []AssetConfig) error {
	edges := make(map[string][]string, len(assets))
	for _, asset := range assets {
		for _, source := range asset.Sources {
			if source.Quote != "" && source.Quote != "USD" {
				edges[asset.Address] = append(edges[asset.Address], source.Quote)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(edges))

	var visit func(addr string) error
	visit = func(addr string) error {
		switch state[addr] {
		case visiting:
			return fmt.Errorf("%w: at %s", ErrCyclicQuoteGraph, addr)
		case done:
			return nil
		}
		state[addr] = visiting
		for _, quote := range edges[addr] {
			if err := visit(quote); err != nil {
				return err
			}
		}
		state[addr] = done
		return nil
	}

	for _, asset := range assets {
		if err := visit(asset.Address); err != nil {
			return err
		}
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)",
			ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
