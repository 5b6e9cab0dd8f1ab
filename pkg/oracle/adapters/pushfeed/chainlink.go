package pushfeed

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// Chainlink-style aggregator ABI (only the reads the feed needs).
const aggregatorABIJSON = `[{
	"constant": true,
	"inputs": [],
	"name": "latestRoundData",
	"outputs": [
		{"internalType": "uint80", "name": "roundId", "type": "uint80"},
		{"internalType": "int256", "name": "answer", "type": "int256"},
		{"internalType": "uint256", "name": "startedAt", "type": "uint256"},
		{"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
		{"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// ChainlinkFeed reads a Chainlink-compatible aggregator contract over an EVM
// RPC endpoint and exposes it as a push Feed.
type ChainlinkFeed struct {
	client   *ethclient.Client
	address  common.Address
	decimals int32
	min      decimal.Decimal
	max      decimal.Decimal
	abi      abi.ABI
}

var _ Feed = (*ChainlinkFeed)(nil)

// NewChainlinkFeed creates a feed for the aggregator contract at address.
// Decimals and the representable answer bounds come from deployment
// configuration; passing zero bounds disables the bounds check.
func NewChainlinkFeed(client *ethclient.Client, address common.Address, decimals int32, min, max decimal.Decimal) (*ChainlinkFeed, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}

	return &ChainlinkFeed{
		client:   client,
		address:  address,
		decimals: decimals,
		min:      min,
		max:      max,
		abi:      parsed,
	}, nil
}

// LatestAnswer calls latestRoundData on the aggregator contract.
func (f *ChainlinkFeed) LatestAnswer(ctx context.Context) (decimal.Decimal, time.Time, error) {
	data, err := f.abi.Pack("latestRoundData")
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to pack latestRoundData call: %w", err)
	}

	result, err := f.client.CallContract(ctx, ethereum.CallMsg{
		To:   &f.address,
		Data: data,
	}, nil) // nil = latest block
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to call latestRoundData: %w", err)
	}

	var round struct {
		RoundId         *big.Int
		Answer          *big.Int
		StartedAt       *big.Int
		UpdatedAt       *big.Int
		AnsweredInRound *big.Int
	}
	if err := f.abi.UnpackIntoInterface(&round, "latestRoundData", result); err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("failed to unpack latestRoundData result: %w", err)
	}

	answer := decimal.NewFromBigInt(round.Answer, 0)
	updatedAt := time.Unix(round.UpdatedAt.Int64(), 0)
	return answer, updatedAt, nil
}

// Decimals returns the feed's answer width.
func (f *ChainlinkFeed) Decimals() int32 {
	return f.decimals
}

// Bounds returns the configured representable answer bounds.
func (f *ChainlinkFeed) Bounds() (decimal.Decimal, decimal.Decimal) {
	return f.min, f.max
}
