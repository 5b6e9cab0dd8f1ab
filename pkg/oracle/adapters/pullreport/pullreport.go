package pullreport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/fixedpoint"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/metrics"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
)

// DefaultStalenessWindow is the tolerated report age when none is configured.
// Owner updates must stay inside [MinStalenessWindow, MaxStalenessWindow].
const (
	DefaultStalenessWindow = 24 * time.Hour
	MinStalenessWindow     = time.Hour
	MaxStalenessWindow     = 7 * 24 * time.Hour
)

// Adapter serves prices from explicitly-posted verified reports instead of a
// live read. Reports arrive through PostPrices and are persisted in the store.
type Adapter struct {
	name     string
	owner    oracle.Caller
	verifier Verifier
	store    *Store
	logger   *logging.Logger
	now      func() time.Time

	mu              sync.RWMutex
	stalenessWindow time.Duration
	feeds           map[oracle.Address]feedMapping
}

type feedMapping struct {
	feedID   common.Hash
	decimals uint8
}

var _ oracle.Adapter = (*Adapter)(nil)

// New creates a pull-report adapter over the given verifier and store.
func New(name string, owner oracle.Caller, verifier Verifier, store *Store, logger *logging.Logger) *Adapter {
	return &Adapter{
		name:            name,
		owner:           owner,
		verifier:        verifier,
		store:           store,
		logger:          logger,
		now:             time.Now,
		stalenessWindow: DefaultStalenessWindow,
		feeds:           make(map[oracle.Address]feedMapping),
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

// PostPrices verifies, decodes and stores each report blob. A report for a
// feed and observation timestamp already stored fails with ErrReportAlreadySet.
func (a *Adapter) PostPrices(ctx context.Context, blobs [][]byte) error {
	for i, blob := range blobs {
		reportData, signatures, err := DecodeEnvelope(blob)
		if err != nil {
			return fmt.Errorf("report %d: %w", i, err)
		}
		if err := a.verifier.Verify(reportData, signatures); err != nil {
			metrics.RecordAdapterError(a.name, "verify")
			return fmt.Errorf("report %d: %w", i, err)
		}

		report, err := DecodeReport(reportData)
		if err != nil {
			return fmt.Errorf("report %d: %w", i, err)
		}
		if err := a.store.Insert(ctx, report); err != nil {
			return fmt.Errorf("report %d: %w", i, err)
		}

		metrics.RecordReportPosted(report.FeedID.Hex())
		a.logger.Debug("Stored report",
			"adapter", a.name,
			"feed_id", report.FeedID.Hex(),
			"observed_at", report.ObservationsTimestamp.Unix(),
			"price", report.Price.String())
	}
	return nil
}

// GetPrice looks up the most recent stored report for the asset's feed.
func (a *Adapter) GetPrice(ctx context.Context, _ oracle.Caller, asset oracle.Address) (decimal.Decimal, error) {
	a.mu.RLock()
	mapping, ok := a.feeds[asset]
	window := a.stalenessWindow
	a.mu.RUnlock()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrFeedNotConfigured, asset)
	}

	report, err := a.store.Latest(ctx, mapping.feedID)
	if err != nil {
		return decimal.Zero, err
	}

	age := a.now().Sub(report.ObservationsTimestamp)
	metrics.RecordFeedStaleness(a.name, string(asset), age)
	if age > window {
		metrics.RecordAdapterError(a.name, "expired")
		return decimal.Zero, fmt.Errorf("%w: observed %s ago, window %s",
			oracle.ErrReportTooOld, age, window)
	}
	if report.Price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", oracle.ErrZeroPrice, asset)
	}

	return fixedpoint.RescaleAnswer(report.Price, ReportDecimals, mapping.decimals), nil
}

// OwnerSetStalenessWindow updates the tolerated report age.
func (a *Adapter) OwnerSetStalenessWindow(caller oracle.Caller, window time.Duration) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if window < MinStalenessWindow || window > MaxStalenessWindow {
		return fmt.Errorf("%w: %s not in [%s, %s]",
			oracle.ErrStalenessOutOfBounds, window, MinStalenessWindow, MaxStalenessWindow)
	}

	a.mu.Lock()
	a.stalenessWindow = window
	a.mu.Unlock()
	return nil
}

// OwnerInsertOrUpdateOracleToken upserts the feed-id mapping for an asset.
func (a *Adapter) OwnerInsertOrUpdateOracleToken(caller oracle.Caller, asset oracle.Asset, feedID common.Hash) error {
	if caller != a.owner {
		return oracle.ErrUnauthorized
	}
	if asset.Address.IsZero() {
		return fmt.Errorf("%w: asset", oracle.ErrZeroAddress)
	}
	if feedID == (common.Hash{}) {
		return fmt.Errorf("%w: feed id", oracle.ErrZeroAddress)
	}
	if asset.Decimals > fixedpoint.MaxAssetDecimals {
		return fmt.Errorf("%w: got %d", oracle.ErrInvalidDecimals, asset.Decimals)
	}

	a.mu.Lock()
	a.feeds[asset.Address] = feedMapping{feedID: feedID, decimals: asset.Decimals}
	a.mu.Unlock()

	a.logger.Info("Configured pull feed",
		"adapter", a.name,
		"asset", string(asset.Address),
		"feed_id", feedID.Hex())
	return nil
}
