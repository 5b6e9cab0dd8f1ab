package pullreport

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
)

const testOwner = oracle.Caller("owner")

var testFeedID = common.HexToHash("0x00017a2834f7b673cd9a2efdc478dd6c9b1d5a0b63323a5a2f0c0f945e0b4a5c")

type testHarness struct {
	adapter *Adapter
	keys    []*ecdsa.PrivateKey
}

func newTestHarness(t *testing.T, minSignatures int, now time.Time) *testHarness {
	t.Helper()

	keys := make([]*ecdsa.PrivateKey, 3)
	signers := make([]common.Address, 3)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		signers[i] = crypto.PubkeyToAddress(key.PublicKey)
	}

	verifier, err := NewSignerSetVerifier(signers, minSignatures)
	require.NoError(t, err)

	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	adapter := New("pullreport", testOwner, verifier, store, logging.NewNopLogger())
	adapter.SetNowFunc(func() time.Time { return now })
	require.NoError(t, adapter.OwnerInsertOrUpdateOracleToken(testOwner,
		oracle.Asset{Address: "0xWETH", Decimals: 18}, testFeedID))

	return &testHarness{adapter: adapter, keys: keys}
}

// signedBlob builds a fully-encoded envelope signed by the given key indices.
func (h *testHarness) signedBlob(t *testing.T, report Report, keyIdx ...int) []byte {
	t.Helper()

	reportData, err := EncodeReport(report)
	require.NoError(t, err)

	digest := crypto.Keccak256(reportData)
	signatures := make([][]byte, 0, len(keyIdx))
	for _, i := range keyIdx {
		sig, err := crypto.Sign(digest, h.keys[i])
		require.NoError(t, err)
		signatures = append(signatures, sig)
	}

	blob, err := EncodeEnvelope(reportData, signatures)
	require.NoError(t, err)
	return blob
}

func testReport(observedAt time.Time, price decimal.Decimal) Report {
	return Report{
		FeedID:                testFeedID,
		ValidFromTimestamp:    observedAt.Add(-time.Minute),
		ObservationsTimestamp: observedAt,
		Price:                 price,
	}
}

func TestPostAndGetPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	price := decimal.RequireFromString("1883923360000000000000")
	blob := h.signedBlob(t, testReport(now.Add(-time.Minute), price), 0, 1)
	require.NoError(t, h.adapter.PostPrices(context.Background(), [][]byte{blob}))

	got, err := h.adapter.GetPrice(context.Background(), "caller", "0xWETH")
	require.NoError(t, err)
	assert.True(t, got.Equal(price), "got %s", got)
}

func TestGetPrice_LatestWins(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	older := h.signedBlob(t, testReport(now.Add(-time.Hour), decimal.New(1, 18)), 0, 1)
	newer := h.signedBlob(t, testReport(now.Add(-time.Minute), decimal.New(2, 18)), 0, 1)
	require.NoError(t, h.adapter.PostPrices(context.Background(), [][]byte{newer, older}))

	got, err := h.adapter.GetPrice(context.Background(), "caller", "0xWETH")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.New(2, 18)), "got %s", got)
}

func TestPostPrices_DuplicateReport(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	report := testReport(now.Add(-time.Minute), decimal.New(2, 18))
	blob := h.signedBlob(t, report, 0, 1)
	require.NoError(t, h.adapter.PostPrices(context.Background(), [][]byte{blob}))

	// same feed and observation timestamp, even re-signed, is a duplicate
	again := h.signedBlob(t, report, 1, 2)
	err := h.adapter.PostPrices(context.Background(), [][]byte{again})
	assert.ErrorIs(t, err, oracle.ErrReportAlreadySet)
}

func TestPostPrices_NotEnoughSignatures(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	blob := h.signedBlob(t, testReport(now.Add(-time.Minute), decimal.New(2, 18)), 0)
	err := h.adapter.PostPrices(context.Background(), [][]byte{blob})
	assert.ErrorIs(t, err, ErrNotEnoughSignatures)
}

func TestPostPrices_UnknownSigner(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	outsider, err := crypto.GenerateKey()
	require.NoError(t, err)

	reportData, err := EncodeReport(testReport(now.Add(-time.Minute), decimal.New(2, 18)))
	require.NoError(t, err)
	sig, err := crypto.Sign(crypto.Keccak256(reportData), outsider)
	require.NoError(t, err)
	blob, err := EncodeEnvelope(reportData, [][]byte{sig})
	require.NoError(t, err)

	err = h.adapter.PostPrices(context.Background(), [][]byte{blob})
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestPostPrices_DuplicateSignerDoesNotCount(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	// two signatures from the same key count as one distinct signer
	blob := h.signedBlob(t, testReport(now.Add(-time.Minute), decimal.New(2, 18)), 0, 0)
	err := h.adapter.PostPrices(context.Background(), [][]byte{blob})
	assert.ErrorIs(t, err, ErrNotEnoughSignatures)
}

func TestPostPrices_MalformedBlob(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	err := h.adapter.PostPrices(context.Background(), [][]byte{{0xde, 0xad, 0xbe, 0xef}})
	assert.ErrorIs(t, err, ErrMalformedReport)
}

func TestGetPrice_NoReports(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	_, err := h.adapter.GetPrice(context.Background(), "caller", "0xWETH")
	assert.ErrorIs(t, err, oracle.ErrPriceNotFound)
}

func TestGetPrice_ReportTooOld(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	blob := h.signedBlob(t, testReport(now.Add(-DefaultStalenessWindow-time.Second), decimal.New(2, 18)), 0, 1)
	require.NoError(t, h.adapter.PostPrices(context.Background(), [][]byte{blob}))

	_, err := h.adapter.GetPrice(context.Background(), "caller", "0xWETH")
	assert.ErrorIs(t, err, oracle.ErrReportTooOld)
}

func TestGetPrice_RescalesForAssetDecimals(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)
	require.NoError(t, h.adapter.OwnerInsertOrUpdateOracleToken(testOwner,
		oracle.Asset{Address: "0xWBTC", Decimals: 8}, testFeedID))

	price := decimal.New(65_000, 18) // 65000 USD at 18 report decimals
	blob := h.signedBlob(t, testReport(now.Add(-time.Minute), price), 0, 1)
	require.NoError(t, h.adapter.PostPrices(context.Background(), [][]byte{blob}))

	p18, err := h.adapter.GetPrice(context.Background(), "caller", "0xWETH")
	require.NoError(t, err)
	p8, err := h.adapter.GetPrice(context.Background(), "caller", "0xWBTC")
	require.NoError(t, err)

	assert.True(t, p18.Equal(price), "got %s", p18)
	assert.True(t, p8.Equal(price.Mul(decimal.New(1, 10))), "got %s", p8)
}

func TestReportCodecRoundTrip(t *testing.T) {
	report := testReport(time.Unix(1_700_000_000, 0), decimal.RequireFromString("1883923360000000000000"))

	reportData, err := EncodeReport(report)
	require.NoError(t, err)

	decoded, err := DecodeReport(reportData)
	require.NoError(t, err)
	assert.Equal(t, report.FeedID, decoded.FeedID)
	assert.True(t, decoded.ObservationsTimestamp.Equal(report.ObservationsTimestamp))
	assert.True(t, decoded.ValidFromTimestamp.Equal(report.ValidFromTimestamp))
	assert.True(t, decoded.Price.Equal(report.Price))
}

func TestOwnerSetStalenessWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newTestHarness(t, 2, now)

	require.NoError(t, h.adapter.OwnerSetStalenessWindow(testOwner, time.Hour))

	blob := h.signedBlob(t, testReport(now.Add(-2*time.Hour), decimal.New(2, 18)), 0, 1)
	require.NoError(t, h.adapter.PostPrices(context.Background(), [][]byte{blob}))

	_, err := h.adapter.GetPrice(context.Background(), "caller", "0xWETH")
	assert.ErrorIs(t, err, oracle.ErrReportTooOld)

	assert.ErrorIs(t, h.adapter.OwnerSetStalenessWindow(oracle.Caller("mallory"), time.Hour), oracle.ErrUnauthorized)
	assert.ErrorIs(t, h.adapter.OwnerSetStalenessWindow(testOwner, 0), oracle.ErrStalenessOutOfBounds)
	assert.ErrorIs(t, h.adapter.OwnerSetStalenessWindow(testOwner, MinStalenessWindow-time.Minute), oracle.ErrStalenessOutOfBounds)
	assert.ErrorIs(t, h.adapter.OwnerSetStalenessWindow(testOwner, MaxStalenessWindow+time.Minute), oracle.ErrStalenessOutOfBounds)
	require.NoError(t, h.adapter.OwnerSetStalenessWindow(testOwner, MaxStalenessWindow))
}
