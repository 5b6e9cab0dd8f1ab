package oracle

import "errors"

var (
	// ErrInvalidWeights indicates that source weights do not sum to exactly 100.
	ErrInvalidWeights = errors.New("source weights must sum to exactly 100")
	// ErrZeroAddress indicates that a zero address was supplied.
	ErrZeroAddress = errors.New("zero address")
	// ErrInvalidDecimals indicates that asset decimals are outside 0-18.
	ErrInvalidDecimals = errors.New("asset decimals must be between 0 and 18")
	// ErrCyclicQuoteChain indicates a cycle in the quote-asset graph.
	ErrCyclicQuoteChain = errors.New("cycle in quote-asset chain")
	// ErrNilAdapter indicates that a source entry carries no adapter.
	ErrNilAdapter = errors.New("source entry has nil adapter")
	// ErrStalenessOutOfBounds indicates a staleness threshold outside the configured window.
	ErrStalenessOutOfBounds = errors.New("staleness threshold outside allowed bounds")
	// ErrInvalidSnapshot indicates a cap snapshot that is out of order or too fresh.
	ErrInvalidSnapshot = errors.New("invalid cap snapshot")

	// ErrPriceExpired indicates that feed data is older than the staleness threshold.
	ErrPriceExpired = errors.New("price expired")
	// ErrReportTooOld indicates that the stored report exceeds the staleness window.
	ErrReportTooOld = errors.New("report too old")

	// ErrPriceTooLow indicates a feed answer at or below its representable minimum.
	ErrPriceTooLow = errors.New("price below feed minimum")
	// ErrPriceTooHigh indicates a feed answer at or above its representable maximum.
	ErrPriceTooHigh = errors.New("price above feed maximum")
	// ErrZeroPrice indicates that a source produced a zero price.
	ErrZeroPrice = errors.New("zero price")

	// ErrNoSourcesRegistered indicates that the asset has no source entries.
	ErrNoSourcesRegistered = errors.New("no sources registered for asset")
	// ErrPriceNotFound indicates that no report has been posted for the feed.
	ErrPriceNotFound = errors.New("price not found")
	// ErrInvalidToken indicates that a pool does not contain the queried asset.
	ErrInvalidToken = errors.New("token not in pool")
	// ErrNoPairsConfigured indicates that the adapter's pool set is empty.
	ErrNoPairsConfigured = errors.New("no pairs configured")
	// ErrFeedNotConfigured indicates that the asset has no feed mapping on the adapter.
	ErrFeedNotConfigured = errors.New("no feed configured for asset")

	// ErrUnauthorized indicates a mutating call from a non-owner caller.
	ErrUnauthorized = errors.New("caller is not the owner")
	// ErrDirectCallForbidden indicates a forbidden direct adapter read.
	ErrDirectCallForbidden = errors.New("direct call forbidden, read through the aggregator")

	// ErrReportAlreadySet indicates a duplicate report for the same feed and timestamp.
	ErrReportAlreadySet = errors.New("report already set for feed and timestamp")

	// ErrMaxRecursionDepth indicates the quote-chain depth bound was hit at read time.
	ErrMaxRecursionDepth = errors.New("max quote-chain recursion depth exceeded")
)
