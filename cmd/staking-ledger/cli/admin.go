package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nodestake/staking-ledger/internal/services"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/spf13/cobra"
)

// ErrInvariantViolation is returned by check-invariants when the ledger has drifted
var ErrInvariantViolation = errors.New("ledger invariants violated")

func InitRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init-registry",
		Short: "Initializes the registry, signed by the admin key",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := signerKey(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close(context.Background())

			inv := services.Invocation{Caller: walletOf(key).Address(), Mint: ledger.service.Mint()}
			if err := ledger.service.Initialize(ctx, inv); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registry initialized by %s\n", inv.Caller)
			return nil
		},
	}
	addKeyFlag(cmd)
	return cmd
}

func MintTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint-tokens",
		Short: "Mints staking tokens to a recipient, signed by the mint authority key",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := signerKey(cmd)
			if err != nil {
				return err
			}
			recipient, err := addressFlag(cmd, "recipient")
			if err != nil {
				return err
			}
			amount, err := cmd.Flags().GetUint64("amount")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close(context.Background())

			if err := ledger.service.MintTokens(ctx, walletOf(key), 0, recipient, amount); err != nil {
				return err
			}
			balance, err := ledger.service.Balance(ctx, recipient)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "minted %s tokens to %s, balance %s\n",
				humanize.Comma(int64(amount)), recipient, types.FormatAmount(balance))
			return nil
		},
	}
	addKeyFlag(cmd)
	cmd.Flags().String("recipient", "", "recipient address")
	cmd.Flags().Uint64("amount", 0, "amount in whole tokens")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func CheckInvariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-invariants",
		Short: "Aggregates all records and compares them with the registry totals",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close(context.Background())

			stats, err := ledger.service.CheckInvariants(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "servers:          %s\n", humanize.Comma(int64(stats.ServerCount)))
			fmt.Fprintf(out, "delegations:      %s\n", humanize.Comma(int64(stats.DelegationCount)))
			fmt.Fprintf(out, "server stake:     %s\n", types.FormatAmount(stats.ServerStake))
			fmt.Fprintf(out, "delegated stake:  %s\n", types.FormatAmount(stats.DelegatedStake))
			fmt.Fprintf(out, "server totals:    %s\n", types.FormatAmount(stats.ServerTotal))
			fmt.Fprintf(out, "registry stake:   %s\n", types.FormatAmount(stats.RegistryTotalStake))
			fmt.Fprintf(out, "registry users:   %d\n", stats.RegistryTotalUsers)

			if !stats.Consistent {
				fmt.Fprintf(out, "violations:       %s\n", strings.Join(stats.Violations, ", "))
				return ErrInvariantViolation
			}
			fmt.Fprintln(out, "ledger is consistent")
			return nil
		},
	}
}
