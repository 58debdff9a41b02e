package settlement

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/phantombet/pkg/types"
)

// Attestor signs settlement reports. The signature is the proof handed to the gateway.
type Attestor interface {
	Address() common.Address
	Attest(report *types.SettlementReport) ([]byte, error)
}

// KeyAttestor signs with a local secp256k1 key using the personal_sign
// message prefix, so contracts can check it with ecrecover.
type KeyAttestor struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyAttestor creates an attestor for the given key.
func NewKeyAttestor(key *ecdsa.PrivateKey) (*KeyAttestor, error) {
	if key == nil {
		return nil, errors.New("private key cannot be nil")
	}
	return &KeyAttestor{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// NewKeyAttestorFromHex parses a hex private key, with or without 0x.
func NewKeyAttestorFromHex(hexKey string) (*KeyAttestor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeyAttestor(key)
}

// Address returns the signer address.
func (a *KeyAttestor) Address() common.Address {
	return a.address
}

// Attest returns a 65-byte [R || S || V] signature with V in {27, 28}.
func (a *KeyAttestor) Attest(report *types.SettlementReport) ([]byte, error) {
	digest, err := Digest(report)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash(digest.Bytes()), a.key)
	if err != nil {
		return nil, fmt.Errorf("sign report: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Recover returns the address that produced proof over report.
func Recover(report *types.SettlementReport, proof []byte) (common.Address, error) {
	if len(proof) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("proof must be %d bytes, got %d", crypto.SignatureLength, len(proof))
	}

	digest, err := Digest(report)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, len(proof))
	copy(sig, proof)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(digest.Bytes()), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
