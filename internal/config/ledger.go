package config

import (
	"fmt"

	"github.com/nodestake/staking-ledger/internal/pda"
)

const (
	DefaultProgramID = "AzqFSRjxR59LUdZcJxxmFauZhQSpxMFcmCHaKVXAEMDG"
	DefaultMint      = "BPtPUxkZc1BR1uEDMUkheABh9N94PUbnXvmXRdCLECBW"
)

type LedgerConfig struct {
	ProgramID          string `mapstructure:"program-id"`
	Mint               string `mapstructure:"mint"`
	MintAuthority      string `mapstructure:"mint-authority"`
	AuthorityCacheSize int    `mapstructure:"authority-cache-size"`
}

func (cfg *LedgerConfig) Validate() error {
	if cfg.ProgramID == "" {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.Mint == "" {
		cfg.Mint = DefaultMint
	}
	if cfg.AuthorityCacheSize <= 0 {
		cfg.AuthorityCacheSize = pda.DefaultCacheSize
	}

	if _, err := pda.ParseAddress(cfg.ProgramID); err != nil {
		return fmt.Errorf("invalid program-id: %w", err)
	}
	if _, err := pda.ParseAddress(cfg.Mint); err != nil {
		return fmt.Errorf("invalid mint: %w", err)
	}
	if cfg.MintAuthority != "" {
		authority, err := pda.ParseAddress(cfg.MintAuthority)
		if err != nil {
			return fmt.Errorf("invalid mint-authority: %w", err)
		}
		if !authority.IsOnCurve() {
			return fmt.Errorf("mint-authority %s is not a public key", cfg.MintAuthority)
		}
	}

	return nil
}

// ProgramAddress must only be called on a validated config
func (cfg *LedgerConfig) ProgramAddress() pda.Address {
	return pda.MustParseAddress(cfg.ProgramID)
}

func (cfg *LedgerConfig) MintAddress() pda.Address {
	return pda.MustParseAddress(cfg.Mint)
}

// MintAuthorityAddress returns the zero address when no faucet is configured
func (cfg *LedgerConfig) MintAuthorityAddress() pda.Address {
	if cfg.MintAuthority == "" {
		return pda.Address{}
	}
	return pda.MustParseAddress(cfg.MintAuthority)
}
