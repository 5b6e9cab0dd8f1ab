// Package config provides configuration loading and validation for the
// oracle service.
package config

import "errors"

var (
	// ErrOwnerRequired indicates that owner must be specified.
	ErrOwnerRequired = errors.New("owner must be specified")
	// ErrNoAdaptersConfigured indicates that no adapters are configured.
	ErrNoAdaptersConfigured = errors.New("at least one adapter must be configured")
	// ErrNoAssetsConfigured indicates that no assets are configured.
	ErrNoAssetsConfigured = errors.New("at least one asset must be configured")
	// ErrAdapterNameRequired indicates that adapter name is required.
	ErrAdapterNameRequired = errors.New("adapter name is required")
	// ErrDuplicateAdapterName indicates two adapters sharing a name.
	ErrDuplicateAdapterName = errors.New("duplicate adapter name")
	// ErrUnknownAdapterType indicates that the adapter type is unknown.
	ErrUnknownAdapterType = errors.New("unknown adapter type")
	// ErrUnknownAdapterRef indicates a source referencing an undeclared adapter.
	ErrUnknownAdapterRef = errors.New("source references unknown adapter")
	// ErrAssetAddressRequired indicates that an asset address is required.
	ErrAssetAddressRequired = errors.New("asset address is required")
	// ErrInvalidAssetDecimals indicates asset decimals outside 0..18.
	ErrInvalidAssetDecimals = errors.New("asset decimals must be at most 18")
	// ErrInvalidWeightSum indicates an asset whose source weights do not sum to 100.
	ErrInvalidWeightSum = errors.New("asset source weights must sum to exactly 100")
	// ErrNoAssetSources indicates an asset with no sources.
	ErrNoAssetSources = errors.New("asset must have at least one source")
	// ErrCyclicQuoteGraph indicates a quote-asset reference cycle.
	ErrCyclicQuoteGraph = errors.New("quote-asset references form a cycle")
	// ErrUnknownQuoteAsset indicates a quote asset not configured as an asset.
	ErrUnknownQuoteAsset = errors.New("quote asset is not a configured asset")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrNoReportSigners indicates a pull-report adapter without signers.
	ErrNoReportSigners = errors.New("at least one report signer must be specified")
	// ErrInvalidMinSignatures indicates a quorum outside 1..len(signers).
	ErrInvalidMinSignatures = errors.New("min_signatures out of range for signer set")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
