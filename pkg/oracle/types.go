// Package oracle implements the aggregation registry that turns a weighted
// set of price sources into one canonical fixed-point price per asset.
package oracle

import (
	"context"

	"github.com/shopspring/decimal"
)

// Address is an opaque asset or participant identifier, address-equivalent.
type Address string

// USD is the sentinel quote asset meaning "already a USD canonical price".
const USD Address = "USD"

// IsZero reports whether the address is the empty value.
func (a Address) IsZero() bool {
	return a == ""
}

// Caller identifies the party invoking an operation. Mutating operations
// require the owner caller; adapter reads receive the aggregator's identity.
type Caller string

// Asset pairs an address with its base-unit granularity. Decimals is bounded
// to 0-18 and fixes the implicit scale of the asset's canonical price.
type Asset struct {
	Address  Address
	Decimals uint8
}

// Adapter is the uniform capability every source variant exposes. GetPrice
// returns either a USD canonical price or a UNIT-scaled price relative to the
// entry's quote asset; the aggregator decides which by the entry's QuoteAsset.
type Adapter interface {
	// Name returns the unique name of this adapter instance.
	Name() string

	// GetPrice returns the adapter's price for the asset. The caller identity
	// lets adapters reject parties that must not read them directly.
	GetPrice(ctx context.Context, caller Caller, asset Address) (decimal.Decimal, error)
}

// SourceEntry binds one adapter to an asset with its aggregation weight.
// QuoteAsset == USD means the adapter already returns a canonical USD price;
// any other value makes the aggregator chain through that asset's own price.
type SourceEntry struct {
	Adapter    Adapter
	QuoteAsset Address
	Weight     uint
}
