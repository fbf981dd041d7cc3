package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nodestake/staking-ledger/internal/pda"
)

// NewKey returns a fresh signer key together with its wallet identity
func NewKey(t testing.TB) (*btcec.PrivateKey, pda.Wallet) {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key, pda.Wallet(pda.AddressFromPubKey(key.PubKey()))
}

// NewWallet returns a random wallet identity
func NewWallet(t testing.TB) pda.Wallet {
	t.Helper()
	_, wallet := NewKey(t)
	return wallet
}

// RandomHex returns n random bytes hex encoded, e.g. for container name
// suffixes or server keys
func RandomHex(t testing.TB, n int) string {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("failed to read random bytes: %v", err)
	}
	return hex.EncodeToString(b)
}
