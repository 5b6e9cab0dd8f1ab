// Package pushfeed adapts externally-published numeric feeds into canonical
// prices, with staleness and bounds checking shared by most feed networks.
package pushfeed

import (
	"context"
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
	// DefaultStalenessThreshold is the tolerated feed age when none is configured.
	DefaultStalenessThreshold = 36 * time.Hour
	// DefaultStalenessMin bounds how low the owner may set the threshold.
	DefaultStalenessMin = 24 * time.Hour
	// DefaultStalenessMax bounds how high the owner may set the threshold.
	DefaultStalenessMax = 7 * 24 * time.Hour
)

// Feed is the uniform read every push network reduces to: the latest answer
// and when it was published.
type Feed interface {
	// LatestAnswer returns the most recent answer and its update timestamp.
	LatestAnswer(ctx context.Context) (decimal.Decimal, time.Time, error)

	// Decimals returns the implicit decimal width of answers.
	Decimals() int32

	// Bounds returns the feed's representable answer bounds. A zero min or
	// max disables that side of the check.
	Bounds() (min, max decimal.Decimal)
}

// Adapter normalizes push-feed answers into canonical prices.
type Adapter struct {
	name   string
	owner  oracle.Caller
	ledger oracle.Caller
	logger *logging.Logger
	now    func() time.Time

	mu                 sync.RWMutex
	stalenessThreshold time.Duration
	stalenessMin       time.Duration
	stalenessMax       time.Duration
	tokens             map[oracle.Address]feedEntry
}

type feedEntry struct {
	feed     Feed
	invert   bool
	decimals uint8
}

// Config holds adapter construction parameters.
type Config struct {
	// Owner gates every mutating call.
	Owner oracle.Caller
	// Ledger is the caller that must not read the adapter directly; a bare
	// feed price may only be valid when composed through the aggregator.
	Ledger oracle.Caller
	// StalenessThreshold, StalenessMin and StalenessMax default to 36h, 24h
	// and 7d when zero.
	StalenessThreshold time.Duration
	StalenessMin       time.Duration
	StalenessMax       time.Duration
}

var _ oracle.Adapter = (*Adapter)(nil)

// New creates a push-feed adapter.
func New(name string, cfg Config, logger *logging.Logger) *Adapter {
	if cfg.StalenessThreshold == 0 {
		cfg.StalenessThreshold = DefaultStalenessThreshold
	}
	if cfg.StalenessMin == 0 {
		cfg.StalenessMin = DefaultStalenessMin
	}
	if cfg.StalenessMax == 0 {
		cfg.StalenessMax = DefaultStalenessMax
	}

	return &Adapter{
		name:               name,
		owner:              cfg.Owner,
		ledger:             cfg.Ledger,
		logger:             logger,
		now:                time.Now,
		stalenessThreshold: cfg.StalenessThreshold,
		stalenessMin:       cfg.StalenessMin,
		stalenessMax:       cfg.StalenessMax,
		tokens:             make(map[oracle.Address]feedEntry),
	}
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	return a.name
}

// SetNowFunc overrides the time source. Intended for tests.
func (a *Adapter) SetNowFunc(now func() time.Time) {
	a.now = now
}

// GetPrice reads the feed for the asset and normalizes the answer to the
// canonical 36 - decimals scale.
func (a *Adapter) GetPrice(ctx context.Context, caller oracle.Caller, asset oracle.Address) (decimal.Decimal, error) {
	if a.ledger != "" && caller == a.ledger {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrDirectCallForbidden, caller)
	}

	a.mu.RLock()
	entry, ok := a.tokens[asset]
	threshold := a.stalenessThreshold
	a.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrFeedNotConfigured, asset)
	}

	answer, updatedAt, err := entry.feed.LatestAnswer(ctx)
	if err != nil {
		metrics.RecordAdapterError(a.name, "read")
		return decimal.Zero, fmt.Errorf("feed read: %w", err)
	}

	age := a.now().Sub(updatedAt)
	metrics.RecordFeedStaleness(a.name, string(asset), age)
	if age > threshold {
		metrics.RecordAdapterError(a.name, "expired")
		return decimal.Zero, fmt.Errorf("%w: updated %s ago, threshold %s",
			oracle.ErrPriceExpired, age, threshold)
	}

	// A feed saturated at its clamp is indistinguishable from a broken one.
	min, max := entry.feed.Bounds()
	if !min.IsZero() && answer.LessThanOrEqual(min) {
		metrics.RecordAdapterError(a.name, "bounds")
		return decimal.Zero, fmt.Errorf("%w: answer %s, min %s", oracle.ErrPriceTooLow, answer, min)
	}
	if !max.IsZero() && answer.GreaterThanOrEqual(max) {
		metrics.RecordAdapterError(a.name, "bounds")
		return decimal.Zero, fmt.Errorf("%w: answer %s, max %s", oracle.ErrPriceTooHigh, answer, max)
	}
	if answer.Sign() <= 0 {
		metrics.RecordAdapterError(a.name, "bounds")
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrZeroPrice, asset)
	}

	value := answer
	effectiveDecimals := entry.feed.Decimals()
	if entry.invert {
		value = fixedpoint.Invert(answer)
		effectiveDecimals = fixedpoint.PriceWidth - effectiveDecimals
	}

	return fixedpoint.RescaleAnswer(value, effectiveDecimals, entry.decimals), nil
}

// StalenessThreshold returns the current tolerated feed age.
func (a *Adapter) StalenessThreshold() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stalenessThreshold
}

// OwnerSetStalenessThreshold updates the tolerated feed age within the
// configured bounds.
func (a *Adapter) OwnerSetStalenessThreshold(caller oracle.Caller, threshold time.Duration) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if threshold < a.stalenessMin || threshold > a.stalenessMax {
		return fmt.Errorf("%w: %s not in [%s, %s]",
			oracle.ErrStalenessOutOfBounds, threshold, a.stalenessMin, a.stalenessMax)
	}

	a.stalenessThreshold = threshold
	a.logger.Info("Updated staleness threshold", "adapter", a.name, "threshold", threshold.String())
	return nil
}

// OwnerInsertOrUpdateOracleToken upserts the feed mapping for an asset.
func (a *Adapter) OwnerInsertOrUpdateOracleToken(caller oracle.Caller, asset oracle.Asset, feed Feed, invert bool) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if asset.Address.IsZero() {
		return fmt.Errorf("%w: asset", oracle.ErrZeroAddress)
	}
	if feed == nil {
		return fmt.Errorf("%w: feed", oracle.ErrZeroAddress)
	}
	if asset.Decimals > fixedpoint.MaxAssetDecimals {
		return fmt.Errorf("%w: got %d", oracle.ErrInvalidDecimals, asset.Decimals)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.tokens[asset.Address] = feedEntry{
		feed:     feed,
		invert:   invert,
		decimals: asset.Decimals,
	}

	a.logger.Info("Configured push feed",
		"adapter", a.name,
		"asset", string(asset.Address),
		"invert", invert)
	return nil
}
