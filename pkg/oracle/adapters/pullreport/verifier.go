package pullreport

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrBadSignature indicates a signature that does not recover to an
	// allowed signer.
	ErrBadSignature = errors.New("signature from unknown signer")
	// ErrNotEnoughSignatures indicates fewer valid signatures than required.
	ErrNotEnoughSignatures = errors.New("not enough valid signatures")
)

// Verifier checks a report payload's signature set before it is accepted.
type Verifier interface {
	Verify(reportData []byte, signatures [][]byte) error
}

// SignerSetVerifier accepts reports signed by at least minSignatures distinct
// members of an allowed signer set.
type SignerSetVerifier struct {
	allowed       map[common.Address]bool
	minSignatures int
}

var _ Verifier = (*SignerSetVerifier)(nil)

// NewSignerSetVerifier creates a verifier over the allowed signer addresses.
func NewSignerSetVerifier(signers []common.Address, minSignatures int) (*SignerSetVerifier, error) {
	if len(signers) == 0 {
		return nil, errors.New("empty signer set")
	}
	if minSignatures <= 0 || minSignatures > len(signers) {
		return nil, fmt.Errorf("min signatures %d out of range for %d signers", minSignatures, len(signers))
	}

	allowed := make(map[common.Address]bool, len(signers))
	for _, signer := range signers {
		allowed[signer] = true
	}
	return &SignerSetVerifier{allowed: allowed, minSignatures: minSignatures}, nil
}

// Verify recovers each signature over keccak256(reportData) and requires the
// quorum of distinct allowed signers.
func (v *SignerSetVerifier) Verify(reportData []byte, signatures [][]byte) error {
	digest := crypto.Keccak256(reportData)

	seen := make(map[common.Address]bool)
	for _, sig := range signatures {
		pub, err := crypto.SigToPub(digest, sig)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadSignature, err)
		}
		addr := crypto.PubkeyToAddress(*pub)
		if !v.allowed[addr] {
			return fmt.Errorf("%w: %s", ErrBadSignature, addr.Hex())
		}
		seen[addr] = true
	}

	if len(seen) < v.minSignatures {
		return fmt.Errorf("%w: got %d, need %d", ErrNotEnoughSignatures, len(seen), v.minSignatures)
	}
	return nil
}
