package pkg

import (
	"github.com/nodestake/staking-ledger/internal/pda"
)

// ValidateLedgerAddress checks that address is a base58 or hex encoded 32
// byte ledger address
func ValidateLedgerAddress(address string) error {
	_, err := pda.ParseAddress(address)
	return err
}
