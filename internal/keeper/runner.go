// Package keeper drives a pool's permissionless update on a schedule and
// persists what each run produced.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"optionPool/internal/fixedpoint"
	"optionPool/internal/metrics"
	"optionPool/internal/model"
	"optionPool/internal/pool"
	"optionPool/internal/snapshot"
	"optionPool/internal/storage"
)

// StateStore keeps the last processed timestamp outside the snapshot file.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

// RunConfig holds runtime settings for the keeper.
type RunConfig struct {
	Interval     time.Duration
	Once         bool
	MaxRetries   int
	RetryBackoff time.Duration
	MetricsAddr  string
}

// maxPendingEvents bounds the records held per sink while it is failing.
const maxPendingEvents = 10_000

// Runner settles a pool each tick and writes the emitted events. Records a
// sink failed to take are kept and written ahead of the next run's records.
type Runner struct {
	cfg       RunConfig
	pool      *pool.Pool
	clock     Clock
	sinks     []storage.EventSink
	snapshots *snapshot.Store
	state     StateStore
	metrics   *metrics.Metrics
	logger    *zap.Logger
	name      string
	lastRun   atomic.Uint64

	mu      sync.Mutex
	pending [][]model.EventRecord
}

// Deps are the optional collaborators of a Runner. A nil Clock falls back
// to the local wall clock.
type Deps struct {
	Clock     Clock
	Sinks     []storage.EventSink
	Snapshots *snapshot.Store
	State     StateStore
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	LastRun   uint64
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, p *pool.Pool, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	r := &Runner{
		cfg:       cfg,
		pool:      p,
		clock:     deps.Clock,
		sinks:     deps.Sinks,
		snapshots: deps.Snapshots,
		state:     deps.State,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		pending:   make([][]model.EventRecord, len(deps.Sinks)),
	}
	if p != nil {
		r.name = p.Address().Hex()
	}
	r.lastRun.Store(deps.LastRun)
	return r
}

// LastRun returns the timestamp of the last successful run.
func (r *Runner) LastRun() uint64 { return r.lastRun.Load() }

// Pending returns how many records are waiting for each sink, in sink order.
func (r *Runner) Pending() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.pending))
	for i, batch := range r.pending {
		out[i] = len(batch)
	}
	return out
}

// Run executes the keeper loop until ctx is cancelled, or a single pass
// when Once is set.
func (r *Runner) Run(ctx context.Context) error {
	if r.pool == nil {
		return fmt.Errorf("pool is nil")
	}
	if err := r.resume(ctx); err != nil {
		return err
	}
	if r.cfg.Once {
		_, err := r.RunOnce(ctx)
		return err
	}
	if r.cfg.Interval <= 0 {
		return fmt.Errorf("interval must be greater than zero")
	}

	g, ctx := errgroup.WithContext(ctx)
	if r.metrics != nil && r.cfg.MetricsAddr != "" {
		g.Go(func() error {
			r.logger.Info("metrics listening", zap.String("addr", r.cfg.MetricsAddr))
			return r.metrics.Serve(ctx, r.cfg.MetricsAddr)
		})
	}
	g.Go(func() error {
		return r.loop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) loop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("keeper run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) resume(ctx context.Context) error {
	if r.state == nil {
		return nil
	}
	ts, ok, err := r.state.LoadState(ctx, r.name)
	if err != nil {
		return fmt.Errorf("load keeper state: %w", err)
	}
	if ok && ts > r.lastRun.Load() {
		r.lastRun.Store(ts)
		r.logger.Info("resume from keeper state", zap.Uint64("last_run", ts))
	}
	return nil
}

// RunOnce reads the clock, updates the pool and persists the outcome. Runs
// whose clock reading is behind the last successful run are skipped.
func (r *Runner) RunOnce(ctx context.Context) (pool.UpdateResult, error) {
	start := time.Now()
	result, err := r.runOnce(ctx)
	if r.metrics != nil {
		r.metrics.UpdateDuration.WithLabelValues(r.name).Observe(time.Since(start).Seconds())
		if err != nil {
			r.metrics.UpdateErrors.WithLabelValues(r.name).Inc()
		}
	}
	return result, err
}

func (r *Runner) runOnce(ctx context.Context) (pool.UpdateResult, error) {
	now, err := retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) (uint64, error) {
		now, err := r.clock.Now(ctx)
		if err != nil {
			r.logger.Warn("clock read failed", zap.Error(err))
		}
		return now, err
	})
	if err != nil {
		return pool.UpdateResult{}, fmt.Errorf("read clock: %w", err)
	}
	if last := r.lastRun.Load(); now < last {
		r.logger.Warn("clock behind last run, skipping", zap.Uint64("now", now), zap.Uint64("last_run", last))
		return pool.UpdateResult{}, nil
	}

	result, err := retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) (pool.UpdateResult, error) {
		result, err := r.pool.Update(ctx, now)
		if err != nil {
			r.logger.Warn("pool update failed", zap.Error(err), zap.Uint64("now", now))
		}
		return result, err
	})
	if err != nil {
		return pool.UpdateResult{}, fmt.Errorf("update pool: %w", err)
	}

	// The pool has moved on; its snapshot is saved even when a sink fails.
	storeErr := r.store(result.Records)

	if r.snapshots != nil {
		if err := r.snapshots.Save(r.pool.State(), now); err != nil {
			return result, err
		}
	}
	if r.state != nil {
		if err := r.state.SaveState(ctx, r.name, now); err != nil {
			return result, fmt.Errorf("save keeper state: %w", err)
		}
	}
	r.lastRun.Store(now)
	r.observe(result)
	if storeErr != nil {
		return result, storeErr
	}

	r.logger.Info("keeper run complete",
		zap.Uint64("now", now),
		zap.Int("settled", len(result.Settlements)),
		zap.Int("events", len(result.Records)),
		zap.Bool("price_unavailable", result.PriceUnavailable),
	)
	return result, nil
}

// store writes records to every sink behind whatever that sink still owes
// from earlier runs. A failing sink keeps its batch for the next run.
func (r *Runner) store(records []model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i, sink := range r.sinks {
		batch := append(r.pending[i], records...)
		if len(batch) == 0 {
			continue
		}
		if err := sink.PutEvents(batch); err != nil {
			if over := len(batch) - maxPendingEvents; over > 0 {
				r.logger.Error("event backlog full, dropping oldest records", zap.Int("sink", i), zap.Int("dropped", over))
				batch = batch[over:]
			}
			r.pending[i] = batch
			r.logger.Warn("event sink failed, records kept for retry", zap.Int("sink", i), zap.Int("pending", len(batch)), zap.Error(err))
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
			continue
		}
		r.pending[i] = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("store events: %w", errors.Join(errs...))
	}
	return nil
}

func (r *Runner) observe(result pool.UpdateResult) {
	if r.metrics == nil {
		return
	}
	m := r.metrics
	m.Sigma.WithLabelValues(r.name).Set(float64(r.pool.Sigma()))
	m.Collateral.WithLabelValues(r.name).Set(fixedpoint.Float(r.pool.Collateral()))
	m.FeeReserve.WithLabelValues(r.name).Set(fixedpoint.Float(r.pool.FeeReserve()))
	for _, opt := range r.pool.Options() {
		m.ObserveRound(r.name, opt.Duration(), opt.CurrentRound())
	}
	for _, s := range result.Settlements {
		m.Settlements.WithLabelValues(r.name, strconv.FormatUint(s.Duration, 10)).Inc()
	}
	if result.PriceUnavailable {
		m.PriceUnavailable.WithLabelValues(r.name).Inc()
	}
}
