// Package postgres implements store.Store on PostgreSQL. Records are kept as
// JSONB documents with the columns the dispatcher filters on promoted.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/store"
)

// Config holds the connection settings.
type Config struct {
	DSN      string `json:"dsn"`
	MaxConns int32  `json:"max_conns"`
	// Migrate creates the tables on startup when true.
	Migrate bool `json:"migrate"`
}

const schema = `
CREATE TABLE IF NOT EXISTS drivers (
	id         TEXT PRIMARY KEY,
	zone       TEXT NOT NULL,
	online     BOOLEAN NOT NULL,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS deliveries (
	id              TEXT PRIMARY KEY,
	zone            TEXT NOT NULL,
	status          TEXT NOT NULL,
	assigned_driver TEXT,
	record          JSONB NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS deliveries_status_idx ON deliveries (status);
`

// Store is a PostgreSQL backed store.Store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects using cfg and optionally applies the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{pool: pool, now: time.Now}
	if cfg.Migrate {
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Snapshot reads both tables inside one repeatable read transaction.
func (s *Store) Snapshot(ctx context.Context) (store.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return store.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := store.Snapshot{TakenAt: s.now()}
	if snap.Drivers, err = scanAll[model.Driver](ctx, tx, `SELECT record FROM drivers ORDER BY id`); err != nil {
		return store.Snapshot{}, fmt.Errorf("snapshot drivers: %w", err)
	}
	if snap.Deliveries, err = scanAll[model.Delivery](ctx, tx, `SELECT record FROM deliveries ORDER BY id`); err != nil {
		return store.Snapshot{}, fmt.Errorf("snapshot deliveries: %w", err)
	}
	return snap, tx.Commit(ctx)
}

func scanAll[T any](ctx context.Context, tx pgx.Tx, sql string) ([]T, error) {
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		var raw []byte
		var v T
		if err := row.Scan(&raw); err != nil {
			return v, err
		}
		err := json.Unmarshal(raw, &v)
		return v, err
	})
}

func getOne[T any](row pgx.Row, kind, id string) (T, error) {
	var raw []byte
	var v T
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
		}
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return v, nil
}

func (s *Store) Driver(ctx context.Context, id string) (model.Driver, error) {
	return getOne[model.Driver](s.pool.QueryRow(ctx, `SELECT record FROM drivers WHERE id = $1`, id), "driver", id)
}

func (s *Store) Delivery(ctx context.Context, id string) (model.Delivery, error) {
	return getOne[model.Delivery](s.pool.QueryRow(ctx, `SELECT record FROM deliveries WHERE id = $1`, id), "delivery", id)
}

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const upsertDriver = `
INSERT INTO drivers (id, zone, online, record, updated_at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET zone = EXCLUDED.zone, online = EXCLUDED.online,
	record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`

const upsertDelivery = `
INSERT INTO deliveries (id, zone, status, assigned_driver, record, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET zone = EXCLUDED.zone, status = EXCLUDED.status,
	assigned_driver = EXCLUDED.assigned_driver, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`

func putDriver(ctx context.Context, db dbtx, now time.Time, d model.Driver) error {
	if err := d.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, upsertDriver, d.ID, string(d.Zone), d.Online, raw, now)
	return err
}

func putDelivery(ctx context.Context, db dbtx, now time.Time, d model.Delivery) error {
	if err := d.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	var driver *string
	if d.AssignedDriver != "" {
		driver = &d.AssignedDriver
	}
	_, err = db.Exec(ctx, upsertDelivery, d.ID, string(d.Zone), string(d.Status), driver, raw, now)
	return err
}

func (s *Store) UpsertDriver(ctx context.Context, d model.Driver) error {
	return putDriver(ctx, s.pool, s.now(), d)
}

func (s *Store) UpsertDelivery(ctx context.Context, d model.Delivery) error {
	return putDelivery(ctx, s.pool, s.now(), d)
}

func (s *Store) RemoveDelivery(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// UpdateDriverLocation rewrites only the last_known_location key of the
// driver document.
func (s *Store) UpdateDriverLocation(ctx context.Context, driverID string, sample model.LocationSample) error {
	raw, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE drivers SET record = jsonb_set(record, '{last_known_location}', $2::jsonb), updated_at = $3 WHERE id = $1`,
		driverID, raw, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("driver %s: %w", driverID, store.ErrNotFound)
	}
	return nil
}

// Update runs fn in a transaction. Rows read through the Tx are locked
// until commit.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(&pgTx{ctx: ctx, tx: tx, now: s.now()}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
	now time.Time
}

func (t *pgTx) Driver(id string) (model.Driver, error) {
	return getOne[model.Driver](t.tx.QueryRow(t.ctx, `SELECT record FROM drivers WHERE id = $1 FOR UPDATE`, id), "driver", id)
}

func (t *pgTx) Delivery(id string) (model.Delivery, error) {
	return getOne[model.Delivery](t.tx.QueryRow(t.ctx, `SELECT record FROM deliveries WHERE id = $1 FOR UPDATE`, id), "delivery", id)
}

func (t *pgTx) PutDriver(d model.Driver) error     { return putDriver(t.ctx, t.tx, t.now, d) }
func (t *pgTx) PutDelivery(d model.Delivery) error { return putDelivery(t.ctx, t.tx, t.now, d) }
