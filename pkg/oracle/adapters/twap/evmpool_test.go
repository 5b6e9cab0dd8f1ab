package twap

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/logging"
)

func newTestEVMPool(t *testing.T) *EVMPool {
	t.Helper()
	pool, err := NewEVMPool(nil, EVMPoolConfig{
		Name:        "weth-usdc",
		PairAddress: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Token0:      "0xWETH",
		Token1:      "0xUSDC",
		Decimals0:   18,
		Decimals1:   6,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	return pool
}

func TestEVMPool_RunStopsOnContextCancel(t *testing.T) {
	pool := newTestEVMPool(t)
	pool.ticker = time.NewTicker(time.Hour)
	defer pool.ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pool.run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampler kept running after context cancellation")
	}
}

func TestEVMPool_RunStopsOnStop(t *testing.T) {
	pool := newTestEVMPool(t)
	pool.ticker = time.NewTicker(time.Hour)

	done := make(chan struct{})
	go func() {
		pool.run(context.Background())
		close(done)
	}()

	pool.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampler kept running after Stop")
	}
	// Stop is idempotent.
	pool.Stop()
}

func TestEVMPool_CumulativeAtServesRecordedObservations(t *testing.T) {
	pool := newTestEVMPool(t)
	now := time.Now()
	pool.observations = []observation{
		{cumulative: decimal.NewFromInt(1000), timestamp: now.Add(-2 * time.Hour)},
		{cumulative: decimal.NewFromInt(4600), timestamp: now.Add(-time.Hour)},
		{cumulative: decimal.NewFromInt(8200), timestamp: now},
	}

	got, err := pool.CumulativeAt(context.Background(), 3600)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(4600)), "got %s", got)

	_, err = pool.CumulativeAt(context.Background(), 3*3600)
	assert.Error(t, err)
}
