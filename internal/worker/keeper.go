package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"settlement-service/internal/config"
	"settlement-service/internal/models"
	"settlement-service/internal/services"

	"github.com/robfig/cron/v3"
)

// KeeperAutomaton drives the settlement lifecycle on a schedule. Running as
// the configured keeper account it sweeps every closed season: aggregates
// severities for regions with open policies, then settles them. Each sweep
// goes through the same public operations and authorization checks a manual
// keeper call would.
type KeeperAutomaton struct {
	oracle *services.OracleCore
	pool   *services.InsurancePool
	cfg    config.KeeperConfig

	cron    *cron.Cron
	workers *WorkingPool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewKeeperAutomaton(oracle *services.OracleCore, pool *services.InsurancePool, cfg config.KeeperConfig) *KeeperAutomaton {
	return &KeeperAutomaton{
		oracle:  oracle,
		pool:    pool,
		cfg:     cfg,
		cron:    cron.New(),
		workers: NewWorkingPool(cfg.Workers, cfg.Workers*4),
	}
}

func (k *KeeperAutomaton) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel

	k.wg.Add(1)
	go k.workers.Start(ctx, &k.wg)

	if _, err := k.cron.AddFunc(k.cfg.Schedule, func() {
		k.Sweep(context.Background())
	}); err != nil {
		cancel()
		return err
	}
	k.cron.Start()
	slog.Info("keeper automaton started", "account", k.cfg.Account, "schedule", k.cfg.Schedule)
	return nil
}

func (k *KeeperAutomaton) Stop() {
	if ctx := k.cron.Stop(); ctx != nil {
		<-ctx.Done()
	}
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
	slog.Info("keeper automaton stopped")
}

// Sweep queues one settlement job per (closed season, open region).
func (k *KeeperAutomaton) Sweep(ctx context.Context) {
	for _, season := range k.oracle.ListSeasons() {
		if k.oracle.GetSeasonState(season) != models.SeasonClosed {
			continue
		}
		for _, region := range k.pool.OpenRegions(season) {
			season, region := season, region
			k.workers.SubmitJob(func(ctx context.Context) error {
				return k.settleRegion(ctx, season, region)
			})
		}
	}
}

func (k *KeeperAutomaton) settleRegion(ctx context.Context, season int, region string) error {
	if !k.oracle.IsAggregated(season, region) {
		severity, err := k.oracle.Aggregate(ctx, season, region, k.cfg.Account)
		switch {
		case errors.Is(err, models.ErrAlreadyAggregated):
			// Another sweep beat us to it; settlement can still proceed.
		case err != nil:
			return err
		default:
			slog.Info("aggregated region severity",
				"season", season, "region", region, "severity", severity)
		}
	}

	if err := k.pool.Process(ctx, season, region, k.cfg.Account); err != nil {
		return err
	}
	slog.Info("settled region", "season", season, "region", region)
	return nil
}
