package twap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/fixedpoint"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/oracle"
)

// Uniswap V2 pair ABI (cumulative price counters and reserves).
const pairABIJSON = `[{
	"constant": true,
	"inputs": [],
	"name": "price0CumulativeLast",
	"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
		{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
		{"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// q112 is the UQ112x112 fixed-point divisor pair cumulatives are encoded in.
var q112 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 112), 0)

const defaultSampleInterval = 30 * time.Second

// EVMPoolConfig describes a V2-style pair contract to sample.
type EVMPoolConfig struct {
	Name        string
	PairAddress common.Address
	Token0      oracle.Address
	Token1      oracle.Address
	Decimals0   uint8
	Decimals1   uint8
	// SampleInterval controls how often the cumulative counter is recorded.
	SampleInterval time.Duration
}

// EVMPool samples a pair contract's price cumulative on a ticker and serves
// historical lookups from the recorded observations. The pair only stores
// its latest counter, so history has to be accumulated off-chain.
type EVMPool struct {
	cfg    EVMPoolConfig
	client *ethclient.Client
	logger *logging.Logger
	abi    abi.ABI

	mu           sync.RWMutex
	observations []observation
	stopChan     chan struct{}
	ticker       *time.Ticker
}

type observation struct {
	cumulative decimal.Decimal // UNIT-scaled price seconds
	timestamp  time.Time
}

var _ Pool = (*EVMPool)(nil)

// NewEVMPool creates a sampler for the configured pair contract.
func NewEVMPool(client *ethclient.Client, cfg EVMPoolConfig, logger *logging.Logger) (*EVMPool, error) {
	if cfg.PairAddress == (common.Address{}) {
		return nil, fmt.Errorf("%w: pair address", oracle.ErrZeroAddress)
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = defaultSampleInterval
	}

	parsed, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	return &EVMPool{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		abi:      parsed,
		stopChan: make(chan struct{}),
	}, nil
}

// Name returns the pool name.
func (p *EVMPool) Name() string {
	return p.cfg.Name
}

// Tokens returns the pair constituents.
func (p *EVMPool) Tokens() (oracle.Address, oracle.Address) {
	return p.cfg.Token0, p.cfg.Token1
}

// Start begins sampling the pair's cumulative counter.
func (p *EVMPool) Start(ctx context.Context) error {
	if err := p.sample(ctx); err != nil {
		return fmt.Errorf("failed to take initial sample: %w", err)
	}

	p.ticker = time.NewTicker(p.cfg.SampleInterval)
	go p.run(ctx)

	return nil
}

func (p *EVMPool) run(ctx context.Context) {
	for {
		select {
		case <-p.ticker.C:
			sampleCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			if err := p.sample(sampleCtx); err != nil {
				p.logger.Warn("Pool sample failed", "pool", p.cfg.Name, "error", err.Error())
			}
			cancel()
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		}
	}
}

// Stop halts sampling.
func (p *EVMPool) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}
}

// CumulativeAt serves the newest recorded observation at or before
// now - secondsAgo.
func (p *EVMPool) CumulativeAt(_ context.Context, secondsAgo uint32) (decimal.Decimal, error) {
	target := time.Now().Add(-time.Duration(secondsAgo) * time.Second)

	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := len(p.observations) - 1; i >= 0; i-- {
		if !p.observations[i].timestamp.After(target) {
			return p.observations[i].cumulative, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: pool %s, %ds ago", ErrInsufficientHistory, p.cfg.Name, secondsAgo)
}

// sample reads price0CumulativeLast and records it UNIT-scaled.
func (p *EVMPool) sample(ctx context.Context) error {
	data, err := p.abi.Pack("price0CumulativeLast")
	if err != nil {
		return fmt.Errorf("failed to pack call: %w", err)
	}

	result, err := p.client.CallContract(ctx, ethereum.CallMsg{
		To:   &p.cfg.PairAddress,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to call price0CumulativeLast: %w", err)
	}

	var raw *big.Int
	if err := p.abi.UnpackIntoInterface(&raw, "price0CumulativeLast", result); err != nil {
		return fmt.Errorf("failed to unpack result: %w", err)
	}

	// UQ112x112 raw-unit price seconds -> UNIT-scaled price seconds,
	// adjusted for the constituents' decimal difference.
	shift := int32(p.cfg.Decimals0) - int32(p.cfg.Decimals1)
	cumulative := fixedpoint.ShiftScale(
		fixedpoint.MulDiv(decimal.NewFromBigInt(raw, 0), fixedpoint.Unit, q112),
		shift,
	)

	p.mu.Lock()
	p.observations = append(p.observations, observation{
		cumulative: cumulative,
		timestamp:  time.Now(),
	})
	// Keep enough history to cover the widest observation window.
	cutoff := time.Now().Add(-(MaxObservationInterval + p.cfg.SampleInterval))
	n := 0
	for _, obs := range p.observations {
		if obs.timestamp.After(cutoff) {
			p.observations[n] = obs
			n++
		}
	}
	p.observations = p.observations[:n]
	p.mu.Unlock()

	return nil
}
