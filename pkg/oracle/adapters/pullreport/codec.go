// Package pullreport stores explicitly-posted, separately-verified price
// reports and serves the most recent one per feed.
package pullreport

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrMalformedReport indicates a report blob that fails to decode.
var ErrMalformedReport = errors.New("malformed report")

// ReportDecimals is the implicit decimal width of report prices.
const ReportDecimals = 18

// Report is the decoded content of a verified report blob.
type Report struct {
	FeedID                common.Hash
	ValidFromTimestamp    time.Time
	ObservationsTimestamp time.Time
	// Price is the USD price with ReportDecimals implicit decimals.
	Price decimal.Decimal
}

var (
	envelopeArgs abi.Arguments
	reportArgs   abi.Arguments
)

func init() {
	bytesType, _ := abi.NewType("bytes", "", nil)
	bytesArrType, _ := abi.NewType("bytes[]", "", nil)
	bytes32Type, _ := abi.NewType("bytes32", "", nil)
	uint32Type, _ := abi.NewType("uint32", "", nil)
	uint192Type, _ := abi.NewType("uint192", "", nil)

	envelopeArgs = abi.Arguments{
		{Name: "reportData", Type: bytesType},
		{Name: "signatures", Type: bytesArrType},
	}
	reportArgs = abi.Arguments{
		{Name: "feedId", Type: bytes32Type},
		{Name: "validFromTimestamp", Type: uint32Type},
		{Name: "observationsTimestamp", Type: uint32Type},
		{Name: "price", Type: uint192Type},
	}
}

// DecodeEnvelope splits a posted blob into the signed report payload and its
// signature set.
func DecodeEnvelope(blob []byte) (reportData []byte, signatures [][]byte, err error) {
	values, err := envelopeArgs.Unpack(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	reportData, ok := values[0].([]byte)
	if !ok {
		return nil, nil, fmt.Errorf("%w: report data", ErrMalformedReport)
	}
	signatures, ok = values[1].([][]byte)
	if !ok {
		return nil, nil, fmt.Errorf("%w: signatures", ErrMalformedReport)
	}
	return reportData, signatures, nil
}

// DecodeReport decodes the signed report payload.
func DecodeReport(reportData []byte) (Report, error) {
	values, err := reportArgs.Unpack(reportData)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}

	feedID, ok := values[0].([32]byte)
	if !ok {
		return Report{}, fmt.Errorf("%w: feed id", ErrMalformedReport)
	}
	validFrom, ok := values[1].(uint32)
	if !ok {
		return Report{}, fmt.Errorf("%w: valid-from timestamp", ErrMalformedReport)
	}
	observedAt, ok := values[2].(uint32)
	if !ok {
		return Report{}, fmt.Errorf("%w: observations timestamp", ErrMalformedReport)
	}
	price, ok := values[3].(*big.Int)
	if !ok {
		return Report{}, fmt.Errorf("%w: price", ErrMalformedReport)
	}

	return Report{
		FeedID:                common.Hash(feedID),
		ValidFromTimestamp:    time.Unix(int64(validFrom), 0),
		ObservationsTimestamp: time.Unix(int64(observedAt), 0),
		Price:                 decimal.NewFromBigInt(price, 0),
	}, nil
}

// EncodeReport packs a report payload. Used by report producers and tests.
func EncodeReport(report Report) ([]byte, error) {
	return reportArgs.Pack(
		[32]byte(report.FeedID),
		uint32(report.ValidFromTimestamp.Unix()),
		uint32(report.ObservationsTimestamp.Unix()),
		report.Price.BigInt(),
	)
}

// EncodeEnvelope packs a report payload with its signatures into a blob.
func EncodeEnvelope(reportData []byte, signatures [][]byte) ([]byte, error) {
	return envelopeArgs.Pack(reportData, signatures)
}
