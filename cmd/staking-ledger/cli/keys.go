package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/pkg"
	"github.com/spf13/cobra"
)

// keyEnv holds the hex private key when --key is not given
const keyEnv = "STAKING_LEDGER_KEY"

func addKeyFlag(cmd *cobra.Command) {
	cmd.Flags().String("key", "", fmt.Sprintf("hex encoded private key of the signer (default $%s)", keyEnv))
}

func signerKey(cmd *cobra.Command) (*btcec.PrivateKey, error) {
	keyHex, err := cmd.Flags().GetString("key")
	if err != nil {
		return nil, err
	}
	if keyHex == "" {
		keyHex = pkg.Getenv(keyEnv, "")
	}
	if keyHex == "" {
		return nil, errors.New("missing signer key")
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer key: %w", err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid signer key length %d", len(raw))
	}
	key, _ := btcec.PrivKeyFromBytes(raw)
	return key, nil
}

func walletOf(key *btcec.PrivateKey) pda.Wallet {
	return pda.Wallet(pda.AddressFromPubKey(key.PubKey()))
}

func KeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generates a new signer key",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := btcec.NewPrivateKey()
			if err != nil {
				return err
			}
			address := walletOf(key).Address()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "private key: %s\n", hex.EncodeToString(key.Serialize()))
			fmt.Fprintf(out, "address:     %s\n", address)
			fmt.Fprintf(out, "hex:         %s\n", address.Hex())
			return nil
		},
	}
}
