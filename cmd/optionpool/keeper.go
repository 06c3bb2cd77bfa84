package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"optionPool/internal/chain"
	"optionPool/internal/config"
	"optionPool/internal/keeper"
	"optionPool/internal/metrics"
	"optionPool/internal/oracle"
	"optionPool/internal/pool"
	"optionPool/internal/snapshot"
	"optionPool/internal/storage"
	"optionPool/internal/storage/postgres"
)

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	oracleAddr, err := parseAddress("oracle", cfg.OracleAddress)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	table, err := loadTable(cfg.Pool.CDFTable)
	if err != nil {
		return err
	}
	admin, err := newAdministration(cfg.Pool)
	if err != nil {
		return err
	}
	deps := pool.Deps{
		Table:  table,
		Feed:   oracle.NewAggregator(chainClient, oracleAddr),
		Logger: logger,
	}

	snapshots := snapshot.NewStore(cfg.StateFile)
	p, lastRun, err := openPool(cfg.Pool, snapshots, admin, deps, logger)
	if err != nil {
		return err
	}

	var sinks []storage.EventSink
	if cfg.EventsOut != "" {
		sinks = append(sinks, storage.NewEventLog(cfg.EventsOut))
	}
	var state keeper.StateStore
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
		state = pg
	}

	var clock keeper.Clock = keeper.SystemClock{}
	if cfg.Clock == "chain" {
		clock = chainClient
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
	}

	runner := keeper.NewRunner(keeper.RunConfig{
		Interval:     cfg.Interval,
		Once:         cfg.Once,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		MetricsAddr:  cfg.MetricsAddr,
	}, p, keeper.Deps{
		Clock:     clock,
		Sinks:     sinks,
		Snapshots: snapshots,
		State:     state,
		Metrics:   m,
		Logger:    logger,
		LastRun:   lastRun,
	})

	logger.Info("keeper start",
		zap.String("chain_id", chainID.String()),
		zap.String("pool", p.Address().Hex()),
		zap.String("direction", p.Direction().String()),
		zap.String("oracle", oracleAddr.Hex()),
		zap.String("clock", cfg.Clock),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("once", cfg.Once),
		zap.String("state_file", cfg.StateFile),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	return runner.Run(ctx)
}

// openPool restores the pool from its snapshot, or builds a fresh one from
// the configured parameters when no snapshot exists yet.
func openPool(params config.PoolParams, snapshots *snapshot.Store, admin *pool.Administration, deps pool.Deps, logger *zap.Logger) (*pool.Pool, uint64, error) {
	snap, ok, err := snapshots.Load()
	if err != nil {
		return nil, 0, err
	}
	if ok {
		p, err := pool.Restore(snap.Pool, admin, deps)
		if err != nil {
			return nil, 0, fmt.Errorf("restore pool: %w", err)
		}
		logger.Info("resume from snapshot", zap.String("path", snapshots.Path()), zap.Uint64("last_run", snap.LastRun))
		return p, snap.LastRun, nil
	}

	p, err := newPool(params, admin, deps)
	if err != nil {
		return nil, 0, err
	}
	logger.Info("new pool", zap.Int("options", len(params.Durations)))
	return p, 0, nil
}
