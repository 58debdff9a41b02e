package settlement

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known development key (hardhat account #0).
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func bigU(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func newTestAttestor(t *testing.T) *KeyAttestor {
	t.Helper()
	a, err := NewKeyAttestorFromHex(devKey)
	require.NoError(t, err)
	return a
}

func TestKeyAttestor_Address(t *testing.T) {
	a := newTestAttestor(t)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", a.Address().Hex())
}

func TestKeyAttestor_AttestAndRecover(t *testing.T) {
	a := newTestAttestor(t)
	report, err := NewReport(testRound())
	require.NoError(t, err)

	proof, err := a.Attest(report)
	require.NoError(t, err)
	require.Len(t, proof, crypto.SignatureLength)
	assert.Contains(t, []byte{27, 28}, proof[crypto.RecoveryIDOffset])

	signer, err := Recover(report, proof)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), signer)

	// Signing is deterministic (RFC 6979).
	again, err := a.Attest(report)
	require.NoError(t, err)
	assert.Equal(t, proof, again)

	// A different report recovers a different address.
	other := *report
	other.Outcome = "Lose"
	otherSigner, err := Recover(&other, proof)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address(), otherSigner)
}

func TestRecover_BadProof(t *testing.T) {
	report, err := NewReport(testRound())
	require.NoError(t, err)

	_, err = Recover(report, []byte("short"))
	assert.ErrorContains(t, err, "proof must be 65 bytes")
}

func TestNewKeyAttestor_Invalid(t *testing.T) {
	_, err := NewKeyAttestor(nil)
	assert.ErrorContains(t, err, "private key cannot be nil")

	_, err = NewKeyAttestorFromHex("not-hex")
	assert.ErrorContains(t, err, "parse private key")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	a, err := NewKeyAttestor(key)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), a.Address())
}
