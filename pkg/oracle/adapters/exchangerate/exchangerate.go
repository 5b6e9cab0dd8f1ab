// Package exchangerate prices wrapped-yield assets by their live conversion
// rate against an underlying asset, optionally bounded by a growth cap.
package exchangerate

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/metrics"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
)

// RateSource reads the underlying protocol's live conversion rate, UNIT-scaled:
// how much underlying one wrapped unit converts to.
type RateSource interface {
	// Name identifies the source for configuration and logs.
	Name() string

	// Rate returns the UNIT-scaled live conversion rate.
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// Adapter returns the live exchange rate as the asset's relative price. The
// aggregator chains the result through the underlying asset's own price.
type Adapter struct {
	name   string
	owner  oracle.Caller
	logger *logging.Logger

	mu     sync.RWMutex
	tokens map[oracle.Address]RateSource
}

var _ oracle.Adapter = (*Adapter)(nil)

// New creates a plain exchange-rate adapter.
func New(name string, owner oracle.Caller, logger *logging.Logger) *Adapter {
	return &Adapter{
		name:   name,
		owner:  owner,
		logger: logger,
		tokens: make(map[oracle.Address]RateSource),
	}
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return a.name
}

// GetPrice reads the live conversion rate for the asset.
func (a *Adapter) GetPrice(ctx context.Context, _ oracle.Caller, asset oracle.Address) (decimal.Decimal, error) {
	a.mu.RLock()
	source, ok := a.tokens[asset]
	a.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrFeedNotConfigured, asset)
	}

	rate, err := source.Rate(ctx)
	if err != nil {
		metrics.RecordAdapterError(a.name, "read")
		return decimal.Zero, fmt.Errorf("rate source %s: %w", source.Name(), err)
	}
	if rate.Sign() <= 0 {
		metrics.RecordAdapterError(a.name, "bounds")
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrZeroPrice, asset)
	}

	return rate, nil
}

// OwnerInsertOrUpdateOracleToken upserts the rate source for an asset.
func (a *Adapter) OwnerInsertOrUpdateOracleToken(caller oracle.Caller, asset oracle.Address, source RateSource) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if asset.IsZero() {
		return fmt.Errorf("%w: asset", oracle.ErrZeroAddress)
	}
	if source == nil {
		return fmt.Errorf("%w: rate source", oracle.ErrZeroAddress)
	}

	a.mu.Lock()
	a.tokens[asset] = source
	a.mu.Unlock()

	a.logger.Info("Configured exchange-rate source",
		"adapter", a.name,
		"asset", string(asset),
		"source", source.Name())
	return nil
}
