// Package postgres persists keeper output: every pool event as JSONB, a
// queryable settlements table, and the keeper's last run.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"optionPool/internal/model"
)

//go:embed schema.sql
var schema string

// Store provides Postgres persistence for pool events.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PutEvents stores a batch of events, ignoring ids already written.
// Settlement events are also upserted into the settlements table.
func (s *Store) PutEvents(events []model.EventRecord) error {
	return s.InsertEvents(context.Background(), events)
}

// InsertEvents is PutEvents with a caller context.
func (s *Store) InsertEvents(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.ID, err)
		}
		batch.Queue(`
			INSERT INTO pool_events (id, pool, kind, ts, data)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, ev.ID, ev.Pool, ev.Kind, int64(ev.Timestamp), data)

		if settled, ok := settlementOf(ev); ok {
			batch.Queue(`
				INSERT INTO settlements (
					pool, duration, round, ts, strike_price, settle_price,
					total_sold, total_profits, total_premiums, fee
				) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric)
				ON CONFLICT (pool, duration, round)
				DO UPDATE SET
					ts = EXCLUDED.ts,
					settle_price = EXCLUDED.settle_price,
					total_sold = EXCLUDED.total_sold,
					total_profits = EXCLUDED.total_profits,
					total_premiums = EXCLUDED.total_premiums,
					fee = EXCLUDED.fee
			`,
				ev.Pool,
				int64(settled.Duration),
				int64(settled.Round),
				int64(ev.Timestamp),
				settled.StrikePrice,
				settled.SettlePrice,
				settled.TotalSold,
				settled.TotalProfits,
				settled.TotalPremiums,
				settled.Fee,
			)
		}
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
	}
	return nil
}

func settlementOf(ev model.EventRecord) (model.Settlement, bool) {
	switch data := ev.Data.(type) {
	case model.Settlement:
		return data, true
	case *model.Settlement:
		if data != nil {
			return *data, true
		}
	}
	return model.Settlement{}, false
}

// LoadState returns the last run timestamp stored under name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_run_ts FROM keeper_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("load state: %w", err)
	}
	return uint64(ts), true, nil
}

// SaveState upserts the last run timestamp for name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO keeper_state (name, last_run_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_run_ts = EXCLUDED.last_run_ts, updated_at = now()
	`, name, int64(ts))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
