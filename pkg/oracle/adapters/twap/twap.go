// Package twap computes time-weighted average prices from cumulative pool
// observations over a fixed interval.
package twap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/fixedpoint"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/metrics"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
)

const (
	// DefaultObservationInterval is the TWAP window when none is configured.
	DefaultObservationInterval = 15 * time.Minute
	// MinObservationInterval bounds how short the owner may set the window.
	MinObservationInterval = time.Minute
	// MaxObservationInterval bounds how long the owner may set the window.
	MaxObservationInterval = time.Hour
)

// ErrInsufficientHistory indicates a pool cannot serve an observation far
// enough in the past to cover the interval.
var ErrInsufficientHistory = errors.New("insufficient observation history for interval")

// Pool exposes the cumulative-observation read the TWAP calculation needs.
// The cumulative is the running sum of token0's UNIT-scaled price in token1
// multiplied by elapsed seconds, as liquidity pools accumulate it.
type Pool interface {
	// Name identifies the pool for configuration and logs.
	Name() string

	// Tokens returns the pool's two constituents.
	Tokens() (token0, token1 oracle.Address)

	// CumulativeAt returns the price cumulative as of secondsAgo before now.
	CumulativeAt(ctx context.Context, secondsAgo uint32) (decimal.Decimal, error)
}

// Adapter derives a UNIT-scaled relative price for an asset from one or more
// reference pools. With several pools the result is their equal-weighted
// mean. An optional per-asset floor clamps thin-liquidity results upward.
type Adapter struct {
	name   string
	owner  oracle.Caller
	logger *logging.Logger

	mu       sync.RWMutex
	interval time.Duration
	// pools is replaced wholesale on every mutation; readers iterate a
	// snapshot of the slice header outside the lock.
	pools  []Pool
	floors map[oracle.Address]decimal.Decimal
}

var _ oracle.Adapter = (*Adapter)(nil)

// New creates a TWAP adapter with the default observation interval.
func New(name string, owner oracle.Caller, logger *logging.Logger) *Adapter {
	return &Adapter{
		name:     name,
		owner:    owner,
		logger:   logger,
		interval: DefaultObservationInterval,
		floors:   make(map[oracle.Address]decimal.Decimal),
	}
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return a.name
}

// ObservationInterval returns the current TWAP window.
func (a *Adapter) ObservationInterval() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.interval
}

// GetPrice computes the interval TWAP of the asset across every configured
// pool containing it, oriented so the result is the asset priced in the
// pool's other constituent.
func (a *Adapter) GetPrice(ctx context.Context, _ oracle.Caller, asset oracle.Address) (decimal.Decimal, error) {
	a.mu.RLock()
	pools := a.pools
	interval := a.interval
	floor, hasFloor := a.floors[asset]
	a.mu.RUnlock()

	if len(pools) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrNoPairsConfigured, a.name)
	}

	sum := decimal.Zero
	matched := 0
	for _, pool := range pools {
		token0, token1 := pool.Tokens()
		if asset != token0 && asset != token1 {
			continue
		}

		price, err := a.poolTWAP(ctx, pool, interval)
		if err != nil {
			metrics.RecordAdapterError(a.name, "observe")
			return decimal.Zero, fmt.Errorf("pool %s: %w", pool.Name(), err)
		}
		if asset == token1 {
			price = fixedpoint.Invert(price)
		}

		sum = sum.Add(price)
		matched++
	}

	if matched == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrInvalidToken, asset)
	}

	result := fixedpoint.Div(sum, decimal.NewFromInt(int64(matched)))
	if hasFloor {
		result = fixedpoint.Max(result, floor)
	}
	if result.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrZeroPrice, asset)
	}

	return result, nil
}

// poolTWAP reads the cumulative at both window edges and averages.
func (a *Adapter) poolTWAP(ctx context.Context, pool Pool, interval time.Duration) (decimal.Decimal, error) {
	seconds := uint32(interval / time.Second)

	cumNow, err := pool.CumulativeAt(ctx, 0)
	if err != nil {
		return decimal.Zero, err
	}
	cumThen, err := pool.CumulativeAt(ctx, seconds)
	if err != nil {
		return decimal.Zero, err
	}

	price := fixedpoint.Div(cumNow.Sub(cumThen), decimal.NewFromInt(int64(seconds)))
	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: pool %s", oracle.ErrZeroPrice, pool.Name())
	}
	return price, nil
}

// OwnerSetObservationInterval updates the TWAP window within bounds.
func (a *Adapter) OwnerSetObservationInterval(caller oracle.Caller, interval time.Duration) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if interval < MinObservationInterval || interval > MaxObservationInterval {
		return fmt.Errorf("%w: %s not in [%s, %s]",
			oracle.ErrStalenessOutOfBounds, interval, MinObservationInterval, MaxObservationInterval)
	}

	a.mu.Lock()
	a.interval = interval
	a.mu.Unlock()

	a.logger.Info("Updated observation interval", "adapter", a.name, "interval", interval.String())
	return nil
}

// OwnerAddPair adds a reference pool.
func (a *Adapter) OwnerAddPair(caller oracle.Caller, pool Pool) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if pool == nil {
		return fmt.Errorf("%w: pool", oracle.ErrZeroAddress)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, existing := range a.pools {
		if existing.Name() == pool.Name() {
			return fmt.Errorf("pool %s already configured", pool.Name())
		}
	}

	pools := make([]Pool, 0, len(a.pools)+1)
	pools = append(pools, a.pools...)
	a.pools = append(pools, pool)
	a.logger.Info("Added TWAP pool", "adapter", a.name, "pool", pool.Name())
	return nil
}

// OwnerRemovePair removes a reference pool by name.
func (a *Adapter) OwnerRemovePair(caller oracle.Caller, name string) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, pool := range a.pools {
		if pool.Name() == name {
			pools := make([]Pool, 0, len(a.pools)-1)
			pools = append(pools, a.pools[:i]...)
			a.pools = append(pools, a.pools[i+1:]...)
			a.logger.Info("Removed TWAP pool", "adapter", a.name, "pool", name)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", oracle.ErrNoPairsConfigured, name)
}

// OwnerSetFloorPrice sets a defensive floor for an asset's TWAP result.
// A zero floor removes the clamp.
func (a *Adapter) OwnerSetFloorPrice(caller oracle.Caller, asset oracle.Address, floor decimal.Decimal) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if asset.IsZero() {
		return fmt.Errorf("%w: asset", oracle.ErrZeroAddress)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if floor.Sign() <= 0 {
		delete(a.floors, asset)
	} else {
		a.floors[asset] = floor
	}

	a.logger.Info("Set TWAP floor price",
		"adapter", a.name,
		"asset", string(asset),
		"floor", floor.String())
	return nil
}
