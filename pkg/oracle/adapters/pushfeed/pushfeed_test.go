package pushfeed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/fixedpoint"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
)

const (
	testOwner  = oracle.Caller("owner")
	testLedger = oracle.Caller("ledger")
	aggCaller  = oracle.Caller("aggregator")
)

type fakeFeed struct {
	answer    decimal.Decimal
	updatedAt time.Time
	decimals  int32
	min       decimal.Decimal
	max       decimal.Decimal
	err       error
}

func (f *fakeFeed) LatestAnswer(_ context.Context) (decimal.Decimal, time.Time, error) {
	if f.err != nil {
		return decimal.Zero, time.Time{}, f.err
	}
	return f.answer, f.updatedAt, nil
}

func (f *fakeFeed) Decimals() int32 {
	return f.decimals
}

func (f *fakeFeed) Bounds() (decimal.Decimal, decimal.Decimal) {
	return f.min, f.max
}

func newTestAdapter(t *testing.T, now time.Time) *Adapter {
	t.Helper()
	adapter := New("pushfeed", Config{Owner: testOwner, Ledger: testLedger}, logging.NewNopLogger())
	adapter.SetNowFunc(func() time.Time { return now })
	return adapter
}

func TestGetPrice_ExactPassthrough(t *testing.T) {
	now := time.Now()
	adapter := newTestAdapter(t, now)

	answer := decimal.RequireFromString("1883923360000000000000")
	feed := &fakeFeed{answer: answer, updatedAt: now, decimals: 18}
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWETH", Decimals: 18}, feed, false))

	price, err := adapter.GetPrice(context.Background(), aggCaller, "0xWETH")
	require.NoError(t, err)
	assert.True(t, price.Equal(answer), "got %s", price)
}

func TestGetPrice_StalenessBoundary(t *testing.T) {
	updated := time.Now()
	feed := &fakeFeed{answer: decimal.New(2000, 8), updatedAt: updated, decimals: 8}

	// exactly at the threshold still prices
	adapter := newTestAdapter(t, updated.Add(DefaultStalenessThreshold))
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWETH", Decimals: 18}, feed, false))

	_, err := adapter.GetPrice(context.Background(), aggCaller, "0xWETH")
	require.NoError(t, err)

	// one second past the threshold fails
	adapter = newTestAdapter(t, updated.Add(DefaultStalenessThreshold+time.Second))
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWETH", Decimals: 18}, feed, false))

	_, err = adapter.GetPrice(context.Background(), aggCaller, "0xWETH")
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrPriceExpired)
}

func TestGetPrice_Bounds(t *testing.T) {
	now := time.Now()
	min := decimal.NewFromInt(1_000_000)
	max := decimal.NewFromInt(10_000_000_000)

	// saturated at the minimum clamp
	adapter := newTestAdapter(t, now)
	feed := &fakeFeed{answer: min, updatedAt: now, decimals: 8, min: min, max: max}
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWETH", Decimals: 18}, feed, false))

	_, err := adapter.GetPrice(context.Background(), aggCaller, "0xWETH")
	assert.ErrorIs(t, err, oracle.ErrPriceTooLow)

	// saturated at the maximum clamp
	feed.answer = max
	_, err = adapter.GetPrice(context.Background(), aggCaller, "0xWETH")
	assert.ErrorIs(t, err, oracle.ErrPriceTooHigh)

	// strictly inside the bounds is fine
	feed.answer = decimal.NewFromInt(200_000_000)
	_, err = adapter.GetPrice(context.Background(), aggCaller, "0xWETH")
	assert.NoError(t, err)
}

func TestGetPrice_InversionRoundTrip(t *testing.T) {
	now := time.Now()
	adapter := newTestAdapter(t, now)

	answer := decimal.RequireFromString("1250000000000000000") // 1.25 at 18 decimals
	feed := &fakeFeed{answer: answer, updatedAt: now, decimals: 18}
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xTOKEN", Decimals: 18}, feed, true))

	price, err := adapter.GetPrice(context.Background(), aggCaller, "0xTOKEN")
	require.NoError(t, err)

	// price * answer must equal UNIT^2 within fixed-point rounding
	product := price.Mul(answer)
	diff := fixedpoint.UnitSquared.Sub(product).Abs()
	assert.True(t, diff.LessThan(answer), "got %s, diff %s", price, diff)
}

func TestGetPrice_DecimalScaleInvariant(t *testing.T) {
	now := time.Now()
	adapter := newTestAdapter(t, now)

	// same 8-decimal answer priced for an 18-decimal and an 8-decimal asset
	answer := decimal.NewFromInt(200_000_000)
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWETH", Decimals: 18},
		&fakeFeed{answer: answer, updatedAt: now, decimals: 8}, false))
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWBTC", Decimals: 8},
		&fakeFeed{answer: answer, updatedAt: now, decimals: 8}, false))

	p18, err := adapter.GetPrice(context.Background(), aggCaller, "0xWETH")
	require.NoError(t, err)
	p8, err := adapter.GetPrice(context.Background(), aggCaller, "0xWBTC")
	require.NoError(t, err)

	// the 8-decimal asset's canonical price carries exactly 10 more digits
	ratio := p8.Div(p18)
	assert.True(t, ratio.Equal(decimal.New(1, 10)), "got ratio %s", ratio)
}

func TestGetPrice_DirectCallForbidden(t *testing.T) {
	now := time.Now()
	adapter := newTestAdapter(t, now)

	feed := &fakeFeed{answer: decimal.New(2000, 8), updatedAt: now, decimals: 8}
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWETH", Decimals: 18}, feed, false))

	_, err := adapter.GetPrice(context.Background(), testLedger, "0xWETH")
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrDirectCallForbidden)
}

func TestGetPrice_NotConfigured(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())

	_, err := adapter.GetPrice(context.Background(), aggCaller, "0xUNKNOWN")
	assert.ErrorIs(t, err, oracle.ErrFeedNotConfigured)
}

func TestAggregatedFeedLifecycle(t *testing.T) {
	updated := time.Now()
	now := updated
	adapter := New("pushfeed", Config{Owner: testOwner, Ledger: testLedger}, logging.NewNopLogger())
	adapter.SetNowFunc(func() time.Time { return now })

	answer := decimal.RequireFromString("1883923360000000000000")
	feed := &fakeFeed{answer: answer, updatedAt: updated, decimals: 18}
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xWETH", Decimals: 18}, feed, false))

	agg := oracle.NewAggregator(testOwner, logging.NewNopLogger())
	require.NoError(t, agg.OwnerInsertOrUpdateToken(testOwner,
		oracle.Asset{Address: "0xWETH", Decimals: 18},
		[]oracle.SourceEntry{{Adapter: adapter, QuoteAsset: oracle.USD, Weight: 100}}))

	price, err := agg.GetPrice(context.Background(), "0xWETH")
	require.NoError(t, err)
	assert.True(t, price.Equal(answer), "got %s", price)

	// past the staleness window the composed read fails too
	now = updated.Add(DefaultStalenessThreshold + time.Second)
	_, err = agg.GetPrice(context.Background(), "0xWETH")
	assert.ErrorIs(t, err, oracle.ErrPriceExpired)
}

func TestOwnerSetStalenessThreshold(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())

	require.NoError(t, adapter.OwnerSetStalenessThreshold(testOwner, 48*time.Hour))
	assert.Equal(t, 48*time.Hour, adapter.StalenessThreshold())

	// below the minimum
	err := adapter.OwnerSetStalenessThreshold(testOwner, time.Hour)
	assert.ErrorIs(t, err, oracle.ErrStalenessOutOfBounds)

	// above the maximum
	err = adapter.OwnerSetStalenessThreshold(testOwner, 30*24*time.Hour)
	assert.ErrorIs(t, err, oracle.ErrStalenessOutOfBounds)

	// not the owner
	err = adapter.OwnerSetStalenessThreshold(oracle.Caller("mallory"), 48*time.Hour)
	assert.ErrorIs(t, err, oracle.ErrUnauthorized)
}

func TestOwnerInsertOrUpdateOracleToken_Validation(t *testing.T) {
	adapter := newTestAdapter(t, time.Now())
	feed := &fakeFeed{decimals: 8}

	err := adapter.OwnerInsertOrUpdateOracleToken(oracle.Caller("mallory"), oracle.Asset{Address: "0xA", Decimals: 18}, feed, false)
	assert.ErrorIs(t, err, oracle.ErrUnauthorized)

	err = adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "", Decimals: 18}, feed, false)
	assert.ErrorIs(t, err, oracle.ErrZeroAddress)

	err = adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xA", Decimals: 18}, nil, false)
	assert.ErrorIs(t, err, oracle.ErrZeroAddress)

	err = adapter.OwnerInsertOrUpdateOracleToken(testOwner, oracle.Asset{Address: "0xA", Decimals: 42}, feed, false)
	assert.ErrorIs(t, err, oracle.ErrInvalidDecimals)
}
