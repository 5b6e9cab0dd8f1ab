package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/fixedpoint"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/metrics"
)

// MaxChainDepth bounds quote-asset recursion at read time. Cycles are
// rejected at configuration time; this is the second line of defense.
const MaxChainDepth = 5

// Aggregator owns, per asset, an ordered set of weighted source entries and
// computes one canonical price by weighted averaging with recursive chaining
// through quote assets.
type Aggregator struct {
	owner  Caller
	self   Caller
	logger *logging.Logger

	mu     sync.RWMutex
	tokens map[Address]*tokenConfig
}

type tokenConfig struct {
	decimals uint8
	entries  []SourceEntry
}

// NewAggregator creates an aggregator whose mutating operations are gated on
// the owner caller. The aggregator reads adapters under its own identity.
func NewAggregator(owner Caller, logger *logging.Logger) *Aggregator {
	return &Aggregator{
		owner:  owner,
		self:   Caller("aggregator"),
		logger: logger,
		tokens: make(map[Address]*tokenConfig),
	}
}

// Identity returns the caller identity the aggregator presents to adapters.
func (a *Aggregator) Identity() Caller {
	return a.self
}

// GetPrice returns the canonical price for the asset, or fails if any
// configured source fails. There is no partial-failure tolerance: an
// unpriceable asset must block the operation that needed its price.
func (a *Aggregator) GetPrice(ctx context.Context, asset Address) (decimal.Decimal, error) {
	start := time.Now()
	price, err := a.getPrice(ctx, asset, 0)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordPriceRequest(string(asset), status, time.Since(start))
	return price, err
}

func (a *Aggregator) getPrice(ctx context.Context, asset Address, depth int) (decimal.Decimal, error) {
	if depth > MaxChainDepth {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMaxRecursionDepth, asset)
	}

	a.mu.RLock()
	token, ok := a.tokens[asset]
	a.mu.RUnlock()
	if !ok || len(token.entries) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoSourcesRegistered, asset)
	}

	sum := decimal.Zero
	for _, entry := range token.entries {
		raw, err := entry.Adapter.GetPrice(ctx, a.self, asset)
		if err != nil {
			return decimal.Zero, fmt.Errorf("adapter %s: %w", entry.Adapter.Name(), err)
		}

		contribution := raw
		if entry.QuoteAsset != USD {
			quotePrice, err := a.getPrice(ctx, entry.QuoteAsset, depth+1)
			if err != nil {
				return decimal.Zero, fmt.Errorf("quote asset %s: %w", entry.QuoteAsset, err)
			}
			contribution = fixedpoint.MulDiv(raw, quotePrice, fixedpoint.Unit)
		}

		sum = sum.Add(contribution.Mul(decimal.NewFromInt(int64(entry.Weight))))
	}

	result := fixedpoint.Div(sum, fixedpoint.Hundred)
	if result.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrZeroPrice, asset)
	}

	return result, nil
}

// Decimals returns the registered decimals attribute for the asset.
func (a *Aggregator) Decimals(asset Address) (uint8, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	token, ok := a.tokens[asset]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSourcesRegistered, asset)
	}
	return token.decimals, nil
}

// Assets returns all registered asset addresses.
func (a *Aggregator) Assets() []Address {
	a.mu.RLock()
	defer a.mu.RUnlock()

	assets := make([]Address, 0, len(a.tokens))
	for addr := range a.tokens {
		assets = append(assets, addr)
	}
	return assets
}

// OwnerInsertOrUpdateToken atomically replaces the full source entry list for
// the asset. Assets are registered, never deleted; configuration is mutated
// in place. Weight and cycle invariants are enforced here, never at read
// time, and a failed update leaves the prior configuration untouched.
func (a *Aggregator) OwnerInsertOrUpdateToken(caller Caller, asset Asset, entries []SourceEntry) error {
	if caller != a.owner {
		return ErrUnauthorized
	}
	if asset.Address.IsZero() {
		return fmt.Errorf("%w: asset", ErrZeroAddress)
	}
	if asset.Decimals > fixedpoint.MaxAssetDecimals {
		return fmt.Errorf("%w: got %d", ErrInvalidDecimals, asset.Decimals)
	}

	totalWeight := uint(0)
	for _, entry := range entries {
		if entry.Adapter == nil {
			return ErrNilAdapter
		}
		totalWeight += entry.Weight
	}
	if totalWeight != 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidWeights, totalWeight)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkAcyclic(asset.Address, entries); err != nil {
		return err
	}

	a.tokens[asset.Address] = &tokenConfig{
		decimals: asset.Decimals,
		entries:  append([]SourceEntry(nil), entries...),
	}

	a.logger.Info("Registered oracle token",
		"asset", string(asset.Address),
		"decimals", asset.Decimals,
		"sources", len(entries))
	return nil
}

// checkAcyclic walks the quote-asset graph as it would look after replacing
// the asset's entries and rejects any path leading back to a visited node.
// Caller must hold the write lock.
func (a *Aggregator) checkAcyclic(asset Address, entries []SourceEntry) error {
	edges := func(from Address) []Address {
		var list []SourceEntry
		if from == asset {
			list = entries
		} else if token, ok := a.tokens[from]; ok {
			list = token.entries
		}
		quotes := make([]Address, 0, len(list))
		for _, e := range list {
			if e.QuoteAsset != USD {
				quotes = append(quotes, e.QuoteAsset)
			}
		}
		return quotes
	}

	var visit func(node Address, path map[Address]bool) error
	visit = func(node Address, path map[Address]bool) error {
		if path[node] {
			return fmt.Errorf("%w: via %s", ErrCyclicQuoteChain, node)
		}
		path[node] = true
		for _, next := range edges(node) {
			if err := visit(next, path); err != nil {
				return err
			}
		}
		delete(path, node)
		return nil
	}

	return visit(asset, make(map[Address]bool))
}
