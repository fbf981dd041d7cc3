package pda

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	RegistrySeed = "main"
	ServerSeed   = "server"
)

var (
	derivationTag = []byte("staking-ledger/derived-address")
	marker        = []byte("ProgramDerivedAddress")

	ErrMaxSeedLengthExceeded = errors.New("seed exceeds max length")
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrOnCurve               = errors.New("derived address is on curve")
	ErrNoViableBump          = errors.New("unable to find a viable bump")
)

// CreateAddress hashes seeds, bump and program id into an address. It fails
// when the result happens to be a valid public key.
func CreateAddress(seeds [][]byte, bump uint8, programID Address) (Address, error) {
	if err := checkSeeds(seeds); err != nil {
		return Address{}, err
	}

	msgs := make([][]byte, 0, 2*len(seeds)+3)
	for _, seed := range seeds {
		msgs = append(msgs, []byte{byte(len(seed))}, seed)
	}
	msgs = append(msgs, []byte{bump}, programID[:], marker)

	var addr Address
	copy(addr[:], chainhash.TaggedHash(derivationTag, msgs...)[:])
	if addr.IsOnCurve() {
		return Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindAddress searches bumps from 255 down to 0 and returns the first
// address that is off curve.
func FindAddress(seeds [][]byte, programID Address) (Address, uint8, error) {
	if err := checkSeeds(seeds); err != nil {
		return Address{}, 0, err
	}
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateAddress(seeds, uint8(bump), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d", ErrTooManySeeds, len(seeds))
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d has %d bytes", ErrMaxSeedLengthExceeded, i, len(seed))
		}
	}
	return nil
}

// Authority is the capability to act as a derived address. It is rebuilt from
// its seeds whenever needed and never persisted.
type Authority struct {
	address   Address
	programID Address
	seeds     [][]byte
	bump      uint8
}

func (a *Authority) Address() Address {
	return a.address
}

func (a *Authority) ProgramID() Address {
	return a.programID
}

func (a *Authority) Bump() uint8 {
	return a.bump
}

// Seeds returns a copy of the seeds the authority was derived from
func (a *Authority) Seeds() [][]byte {
	out := make([][]byte, len(a.seeds))
	for i, s := range a.seeds {
		out[i] = bytes.Clone(s)
	}
	return out
}

// Verify re-derives the address from the seeds and bump
func (a *Authority) Verify() error {
	addr, err := CreateAddress(a.seeds, a.bump, a.programID)
	if err != nil {
		return fmt.Errorf("failed to re-derive authority %s: %w", a.address, err)
	}
	if addr != a.address {
		return fmt.Errorf("authority %s does not match its seeds", a.address)
	}
	return nil
}

func newAuthority(seeds [][]byte, programID Address) (*Authority, error) {
	owned := make([][]byte, len(seeds))
	for i, s := range seeds {
		owned[i] = bytes.Clone(s)
	}
	addr, bump, err := FindAddress(owned, programID)
	if err != nil {
		return nil, err
	}
	return &Authority{
		address:   addr,
		programID: programID,
		seeds:     owned,
		bump:      bump,
	}, nil
}
