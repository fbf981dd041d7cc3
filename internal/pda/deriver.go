package pda

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 4096

// Deriver derives authorities for one program and caches them by seeds
type Deriver struct {
	programID Address
	cache     *lru.Cache[string, *Authority]
}

func NewDeriver(programID Address, cacheSize int) (*Deriver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *Authority](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create authority cache: %w", err)
	}
	return &Deriver{
		programID: programID,
		cache:     cache,
	}, nil
}

func (d *Deriver) ProgramID() Address {
	return d.programID
}

// Derive returns the authority for the given seeds
func (d *Deriver) Derive(seeds ...[]byte) (*Authority, error) {
	key := cacheKey(seeds)
	if auth, ok := d.cache.Get(key); ok {
		return auth, nil
	}

	auth, err := newAuthority(seeds, d.programID)
	if err != nil {
		return nil, err
	}
	d.cache.Add(key, auth)
	return auth, nil
}

func (d *Deriver) Registry() (*Authority, error) {
	return d.Derive([]byte(RegistrySeed))
}

// Server derives the record of a server owned by owner. The server key is
// hashed so that keys up to 65 bytes fit into one seed.
func (d *Deriver) Server(owner Address, serverKey []byte) (*Authority, error) {
	return d.Derive([]byte(ServerSeed), owner[:], ServerKeyHash(serverKey))
}

func (d *Deriver) Delegation(delegator Address, server Address) (*Authority, error) {
	return d.Derive([]byte(ServerSeed), delegator[:], server[:])
}

// ServerKeyHash is the sha256 content hash used to address server records
func ServerKeyHash(serverKey []byte) []byte {
	return chainhash.HashB(serverKey)
}

func cacheKey(seeds [][]byte) string {
	parts := make([]string, len(seeds))
	for i, s := range seeds {
		parts[i] = hex.EncodeToString(s)
	}
	return strings.Join(parts, ":")
}
