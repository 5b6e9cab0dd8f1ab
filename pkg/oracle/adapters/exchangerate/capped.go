package exchangerate

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
	// SecondsPerYear converts growth-per-year into growth-per-second.
	SecondsPerYear = 365 * 24 * 60 * 60
	// DefaultMinSnapshotAge is how old a cap snapshot must be before the owner
	// may install it. A freshly-minted snapshot could instantaneously raise
	// the cap to whatever a manipulated rate source reports.
	DefaultMinSnapshotAge = 7 * 24 * time.Hour
)

var secondsPerYearUnit = decimal.NewFromInt(SecondsPerYear).Mul(fixedpoint.Unit)

// CapParameters is the trusted snapshot bounding a rate source's growth.
type CapParameters struct {
	// SnapshotRatio is the UNIT-scaled trusted rate at SnapshotTimestamp.
	SnapshotRatio decimal.Decimal
	// SnapshotTimestamp is when the snapshot was taken.
	SnapshotTimestamp time.Time
	// MaxGrowthPerYear is the UNIT-scaled tolerated annual growth
	// (e.g. 0.1 * UNIT for 10% a year).
	MaxGrowthPerYear decimal.Decimal
}

// CappedAdapter guards an exchange-rate source against manipulation by
// bounding the rate of change since a trusted snapshot. Clamping to the cap
// is this variant's contract, not a silent substitution.
type CappedAdapter struct {
	name   string
	owner  oracle.Caller
	logger *logging.Logger
	now    func() time.Time

	minSnapshotAge time.Duration

	mu     sync.RWMutex
	tokens map[oracle.Address]cappedEntry
}

type cappedEntry struct {
	source RateSource
	cap    CapParameters
}

var _ oracle.Adapter = (*CappedAdapter)(nil)

// NewCapped creates a capped exchange-rate adapter.
func NewCapped(name string, owner oracle.Caller, logger *logging.Logger) *CappedAdapter {
	return &CappedAdapter{
		name:           name,
		owner:          owner,
		logger:         logger,
		now:            time.Now,
		minSnapshotAge: DefaultMinSnapshotAge,
		tokens:         make(map[oracle.Address]cappedEntry),
	}
}

// Name returns the adapter name.
func (a *CappedAdapter) Name() string {
	return a.name
}

// SetNowFunc overrides the time source. Intended for tests.
func (a *CappedAdapter) SetNowFunc(now func() time.Time) {
	a.now = now
}

// GetPrice returns min(liveRate, allowedMax), where allowedMax grows linearly
// from the snapshot ratio at the configured annual rate.
func (a *CappedAdapter) GetPrice(ctx context.Context, _ oracle.Caller, asset oracle.Address) (decimal.Decimal, error) {
	a.mu.RLock()
	entry, ok := a.tokens[asset]
	a.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrFeedNotConfigured, asset)
	}

	live, err := entry.source.Rate(ctx)
	if err != nil {
		metrics.RecordAdapterError(a.name, "read")
		return decimal.Zero, fmt.Errorf("rate source %s: %w", entry.source.Name(), err)
	}
	if live.Sign() <= 0 {
		metrics.RecordAdapterError(a.name, "bounds")
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrZeroPrice, asset)
	}

	allowedMax := a.allowedMax(entry.cap)
	if live.GreaterThan(allowedMax) {
		metrics.RecordCapClamp(string(asset))
		a.logger.Warn("Live rate exceeds growth cap, clamping",
			"adapter", a.name,
			"asset", string(asset),
			"live", live.String(),
			"allowed_max", allowedMax.String())
		return allowedMax, nil
	}
	return live, nil
}

// allowedMax = snapshot + snapshot * growth * elapsed / (SECONDS_PER_YEAR * UNIT)
func (a *CappedAdapter) allowedMax(cap CapParameters) decimal.Decimal {
	elapsed := decimal.NewFromInt(int64(a.now().Sub(cap.SnapshotTimestamp) / time.Second))
	if elapsed.Sign() < 0 {
		elapsed = decimal.Zero
	}
	growth := fixedpoint.Div(cap.SnapshotRatio.Mul(cap.MaxGrowthPerYear).Mul(elapsed), secondsPerYearUnit)
	return cap.SnapshotRatio.Add(growth)
}

// OwnerInsertOrUpdateOracleToken upserts the rate source and its initial cap
// snapshot for an asset. The initial snapshot is exempt from the minimum-age
// window; later updates go through OwnerSetCapParameters.
func (a *CappedAdapter) OwnerInsertOrUpdateOracleToken(caller oracle.Caller, asset oracle.Address, source RateSource, cap CapParameters) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if asset.IsZero() {
		return fmt.Errorf("%w: asset", oracle.ErrZeroAddress)
	}
	if source == nil {
		return fmt.Errorf("%w: rate source", oracle.ErrZeroAddress)
	}
	if cap.SnapshotRatio.Sign() <= 0 {
		return fmt.Errorf("%w: snapshot ratio must be positive", oracle.ErrInvalidSnapshot)
	}

	a.mu.Lock()
	a.tokens[asset] = cappedEntry{source: source, cap: cap}
	a.mu.Unlock()

	a.logger.Info("Configured capped exchange-rate source",
		"adapter", a.name,
		"asset", string(asset),
		"source", source.Name(),
		"snapshot_ratio", cap.SnapshotRatio.String())
	return nil
}

// OwnerSetCapParameters replaces the trusted snapshot. The new snapshot must
// be newer than the current one and at least the minimum-age window old.
func (a *CappedAdapter) OwnerSetCapParameters(caller oracle.Caller, asset oracle.Address, cap CapParameters) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if cap.SnapshotRatio.Sign() <= 0 {
		return fmt.Errorf("%w: snapshot ratio must be positive", oracle.ErrInvalidSnapshot)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: %s", oracle.ErrFeedNotConfigured, asset)
	}
	if !cap.SnapshotTimestamp.After(entry.cap.SnapshotTimestamp) {
		return fmt.Errorf("%w: snapshot timestamp not newer than current", oracle.ErrInvalidSnapshot)
	}
	if a.now().Sub(cap.SnapshotTimestamp) < a.minSnapshotAge {
		return fmt.Errorf("%w: snapshot younger than %s", oracle.ErrInvalidSnapshot, a.minSnapshotAge)
	}

	entry.cap = cap
	a.tokens[asset] = entry

	a.logger.Info("Updated cap parameters",
		"adapter", a.name,
		"asset", string(asset),
		"snapshot_ratio", cap.SnapshotRatio.String(),
		"snapshot_at", cap.SnapshotTimestamp.Format(time.RFC3339))
	return nil
}
