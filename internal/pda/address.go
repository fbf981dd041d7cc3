package pda

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/base58"
)

const AddressLength = 32

// Address is a 32 byte ledger address. Wallet identities are x-only secp256k1
// public keys, derived addresses are guaranteed not to be one.
type Address [AddressLength]byte

var ErrInvalidAddress = errors.New("invalid address")

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// IsOnCurve reports whether the address is the x coordinate of a secp256k1 point
func (a Address) IsOnCurve() bool {
	_, err := schnorr.ParsePubKey(a[:])
	return err == nil
}

// PubKey returns the public key behind a wallet address
func (a Address) PubKey() (*btcec.PublicKey, error) {
	return schnorr.ParsePubKey(a[:])
}

func AddressFromPubKey(pk *btcec.PublicKey) Address {
	var a Address
	copy(a[:], schnorr.SerializePubKey(pk))
	return a
}

func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress accepts base58 or 64 char hex encoding
func ParseAddress(s string) (Address, error) {
	if len(s) == 2*AddressLength {
		if b, err := hex.DecodeString(s); err == nil {
			return AddressFromBytes(b)
		}
	}
	b := base58.Decode(s)
	if len(b) == 0 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return AddressFromBytes(b)
}

func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Wallet is an externally owned identity whose signature was checked at the
// API boundary.
type Wallet Address

func (w Wallet) Address() Address {
	return Address(w)
}

func (w Wallet) Verify() error {
	if !Address(w).IsOnCurve() {
		return fmt.Errorf("%w: wallet %s is not a public key", ErrInvalidAddress, Address(w))
	}
	return nil
}
