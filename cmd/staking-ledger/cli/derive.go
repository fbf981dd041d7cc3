package cli

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/token"
	"github.com/spf13/cobra"
)

func DeriveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Prints derived record and vault addresses",
	}
	cmd.PersistentFlags().String("program-id", config.DefaultProgramID, "ledger program id")
	cmd.PersistentFlags().String("mint", config.DefaultMint, "staking token mint")

	registry := &cobra.Command{
		Use:   "registry",
		Short: "Registry record address",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDerivation(cmd)
			if err != nil {
				return err
			}
			auth, err := d.deriver.Registry()
			if err != nil {
				return err
			}
			return d.print(cmd.OutOrStdout(), auth)
		},
	}

	server := &cobra.Command{
		Use:   "server",
		Short: "Server record address of an owner and server key",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDerivation(cmd)
			if err != nil {
				return err
			}
			owner, err := addressFlag(cmd, "owner")
			if err != nil {
				return err
			}
			keyHex, _ := cmd.Flags().GetString("server-key")
			serverKey, err := hex.DecodeString(keyHex)
			if err != nil {
				return fmt.Errorf("invalid server key: %w", err)
			}
			auth, err := d.deriver.Server(owner, serverKey)
			if err != nil {
				return err
			}
			return d.print(cmd.OutOrStdout(), auth)
		},
	}
	server.Flags().String("owner", "", "server owner address")
	server.Flags().String("server-key", "", "hex encoded server key")
	_ = server.MarkFlagRequired("owner")
	_ = server.MarkFlagRequired("server-key")

	delegation := &cobra.Command{
		Use:   "delegation",
		Short: "Delegation record address of a delegator and server",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDerivation(cmd)
			if err != nil {
				return err
			}
			delegator, err := addressFlag(cmd, "delegator")
			if err != nil {
				return err
			}
			serverAddress, err := addressFlag(cmd, "server")
			if err != nil {
				return err
			}
			auth, err := d.deriver.Delegation(delegator, serverAddress)
			if err != nil {
				return err
			}
			return d.print(cmd.OutOrStdout(), auth)
		},
	}
	delegation.Flags().String("delegator", "", "delegator address")
	delegation.Flags().String("server", "", "server record address")
	_ = delegation.MarkFlagRequired("delegator")
	_ = delegation.MarkFlagRequired("server")

	cmd.AddCommand(registry, server, delegation)
	return cmd
}

type derivation struct {
	deriver *pda.Deriver
	tokens  *token.Program
}

func newDerivation(cmd *cobra.Command) (*derivation, error) {
	programID, err := addressFlag(cmd, "program-id")
	if err != nil {
		return nil, err
	}
	mint, err := addressFlag(cmd, "mint")
	if err != nil {
		return nil, err
	}
	deriver, err := pda.NewDeriver(programID, 0)
	if err != nil {
		return nil, err
	}
	// address derivation never touches the store
	tokens, err := token.NewProgram(nil, mint, pda.Address{}, 0)
	if err != nil {
		return nil, err
	}
	return &derivation{deriver: deriver, tokens: tokens}, nil
}

func (d *derivation) print(out io.Writer, auth *pda.Authority) error {
	vault, err := d.tokens.AssociatedAddress(auth.Address())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\n", auth.Address())
	fmt.Fprintf(out, "bump:    %d\n", auth.Bump())
	fmt.Fprintf(out, "vault:   %s\n", vault)
	return nil
}

func addressFlag(cmd *cobra.Command, name string) (pda.Address, error) {
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		return pda.Address{}, err
	}
	address, err := pda.ParseAddress(s)
	if err != nil {
		return pda.Address{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return address, nil
}
