package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/nodestake/staking-ledger/internal/api"
	"github.com/nodestake/staking-ledger/internal/observability/metrics"
	"github.com/nodestake/staking-ledger/internal/observability/tracing"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func StartServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-server",
		Short: "Starts the staking ledger api server",
		Args:  cobra.ExactArgs(0),
		RunE:  startServer,
	}

	return cmd
}

func startServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = tracing.InjectTraceID(ctx)

	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer ledger.Close(context.Background())

	// initialize metrics with the metrics port from config
	metricsPort := ledger.cfg.Metrics.GetMetricsPort()
	metrics.Init(metricsPort)

	ledger.service.StartStatsPoller(ctx)

	server := api.New(&ledger.cfg.Server, ledger.service)

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		return server.Start()
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		log.Info().Msg("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return p.Wait()
}
