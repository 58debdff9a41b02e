// Package commitment computes and verifies sealed-bet commitments.
//
// The preimage layout is fixed and must be reproduced byte for byte by any
// off-chain bet preparer: the stake as a 32-byte big-endian unsigned integer,
// followed by the raw outcome label bytes, followed by the raw secret bytes,
// with no length prefixes (Solidity abi.encodePacked(uint256,string,string)).
// The digest is keccak256.
package commitment

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrAmountOutOfRange is returned for stakes that do not fit a uint256.
var ErrAmountOutOfRange = errors.New("amount out of uint256 range")

const amountWidth = 32

// Encode returns the packed preimage for (amount, outcome, secret).
func Encode(amount *big.Int, outcome, secret string) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 8*amountWidth {
		return nil, ErrAmountOutOfRange
	}

	buf := make([]byte, 0, amountWidth+len(outcome)+len(secret))
	buf = append(buf, common.LeftPadBytes(amount.Bytes(), amountWidth)...)
	buf = append(buf, outcome...)
	buf = append(buf, secret...)
	return buf, nil
}

// Commit returns keccak256 of the packed preimage.
func Commit(amount *big.Int, outcome, secret string) (common.Hash, error) {
	preimage, err := Encode(amount, outcome, secret)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(preimage), nil
}

// Verify recomputes the commitment and compares it with want.
func Verify(want common.Hash, amount *big.Int, outcome, secret string) bool {
	got, err := Commit(amount, outcome, secret)
	if err != nil {
		return false
	}
	return got == want
}

// NewSecret returns a random 32-byte hex secret suitable for a commitment.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hexutil.Encode(b), nil
}
