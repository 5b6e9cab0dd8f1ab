package exchangerate

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/dolomite-exchange/dolomite-oracle-go/pkg/fixedpoint"
)

// ERC-4626 vault ABI (only convertToAssets).
const vaultABIJSON = `[{
	"constant": true,
	"inputs": [{"internalType": "uint256", "name": "shares", "type": "uint256"}],
	"name": "convertToAssets",
	"outputs": [{"internalType": "uint256", "name": "assets", "type": "uint256"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// VaultRateSource reads an ERC-4626 vault's live share-to-assets conversion
// rate over an EVM RPC endpoint.
type VaultRateSource struct {
	name              string
	client            *ethclient.Client
	address           common.Address
	shareDecimals     uint8
	underlyingDecimal uint8
	abi               abi.ABI
}

var _ RateSource = (*VaultRateSource)(nil)

// NewVaultRateSource creates a rate source for the vault contract at address.
func NewVaultRateSource(client *ethclient.Client, name string, address common.Address, shareDecimals, underlyingDecimals uint8) (*VaultRateSource, error) {
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault ABI: %w", err)
	}

	return &VaultRateSource{
		name:              name,
		client:            client,
		address:           address,
		shareDecimals:     shareDecimals,
		underlyingDecimal: underlyingDecimals,
		abi:               parsed,
	}, nil
}

// Name returns the source name.
func (s *VaultRateSource) Name() string {
	return s.name
}

// Rate converts one whole share and rescales the result to UNIT.
func (s *VaultRateSource) Rate(ctx context.Context) (decimal.Decimal, error) {
	oneShare := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.shareDecimals)), nil)
	data, err := s.abi.Pack("convertToAssets", oneShare)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack convertToAssets call: %w", err)
	}

	result, err := s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &s.address,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call convertToAssets: %w", err)
	}

	var assets *big.Int
	if err := s.abi.UnpackIntoInterface(&assets, "convertToAssets", result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to unpack convertToAssets result: %w", err)
	}

	rate := fixedpoint.ShiftScale(
		decimal.NewFromBigInt(assets, 0),
		fixedpoint.UnitDecimals-int32(s.underlyingDecimal),
	)
	return rate, nil
}
