package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/observability/metrics"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/nodestake/staking-ledger/internal/utils/poller"
	"github.com/rs/zerolog/log"
)

const (
	InvariantTotalStake      = "registry_total_stake"
	InvariantServerTotal     = "server_total"
	InvariantTotalUsers      = "registry_total_users"
	InvariantTotalDelegators = "total_delegators"
)

// StartStatsPoller starts the stats polling service
func (s *Service) StartStatsPoller(ctx context.Context) {
	statsPoller := poller.NewPoller(
		s.cfg.Poller.StatsPollingInterval,
		metrics.RecordPollerDuration("stats", s.calculateAndUpdateStats),
	)
	go statsPoller.Start(ctx)
}

// CheckInvariants aggregates all live records and compares the sums with the
// registry counters
func (s *Service) CheckInvariants(ctx context.Context) (*model.LedgerStatsDocument, error) {
	var (
		stats    *model.LedgerStats
		registry *model.RegistryDocument
	)
	// one transaction so that records and registry come from the same snapshot
	err := s.db.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		stats, err = s.db.CalculateLedgerStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to calculate ledger stats: %w", err)
		}
		registry, err = s.loadRegistry(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	doc := &model.LedgerStatsDocument{
		ID:                 model.LedgerStatsID,
		LedgerStats:        *stats,
		RegistryTotalStake: registry.TotalStake,
		RegistryTotalUsers: registry.TotalUsers,
		LastUpdated:        time.Now().Unix(),
	}

	if stats.ServerTotal != registry.TotalStake {
		doc.Violations = append(doc.Violations, InvariantTotalStake)
	}
	if stats.ServerTotal != stats.ServerStake+stats.DelegatedStake {
		doc.Violations = append(doc.Violations, InvariantServerTotal)
	}
	if stats.ServerCount+stats.DelegationCount != uint64(registry.TotalUsers) {
		doc.Violations = append(doc.Violations, InvariantTotalUsers)
	}
	// delegations left behind by removed servers are not counted by any server
	if stats.TotalDelegators > stats.DelegationCount {
		doc.Violations = append(doc.Violations, InvariantTotalDelegators)
	}
	doc.Consistent = len(doc.Violations) == 0

	return doc, nil
}

// calculateAndUpdateStats audits the ledger and stores the snapshot
func (s *Service) calculateAndUpdateStats(ctx context.Context) error {
	log := log.Ctx(ctx)

	startTime := time.Now()
	doc, err := s.CheckInvariants(ctx)
	if err != nil {
		if db.IsNotFoundError(err) || types.HasErrorCode(err, types.RegistryNotInitialized) {
			log.Debug().Msg("Registry not initialized - skipping stats update")
			return nil
		}
		return err
	}

	log.Debug().
		Dur("aggregation_duration_ms", time.Since(startTime)).
		Msg("Stats aggregation completed")

	for _, violation := range doc.Violations {
		metrics.IncInvariantViolation(violation)
		log.Error().
			Str("invariant", violation).
			Uint64("registry_total_stake", doc.RegistryTotalStake).
			Uint64("server_total", doc.ServerTotal).
			Uint64("server_stake", doc.ServerStake).
			Uint64("delegated_stake", doc.DelegatedStake).
			Uint32("registry_total_users", doc.RegistryTotalUsers).
			Uint64("server_count", doc.ServerCount).
			Uint64("delegation_count", doc.DelegationCount).
			Msg("Ledger invariant violated")
	}

	if err := s.db.UpsertLedgerStats(ctx, doc); err != nil {
		return fmt.Errorf("failed to upsert ledger stats: %w", err)
	}

	log.Info().
		Uint64("total_stake", doc.RegistryTotalStake).
		Uint32("total_users", doc.RegistryTotalUsers).
		Bool("consistent", doc.Consistent).
		Msg("Updated ledger stats")

	metrics.RecordLedgerTotals(doc.RegistryTotalStake, doc.RegistryTotalUsers, doc.ServerCount, doc.DelegationCount)

	return nil
}

func (s *Service) GetLedgerStats(ctx context.Context) (*model.LedgerStatsDocument, error) {
	return s.db.GetLedgerStats(ctx)
}
