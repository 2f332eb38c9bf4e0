package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_results (
	job_key   TEXT PRIMARY KEY,
	variable  TEXT NOT NULL,
	source    TEXT NOT NULL,
	scenario  TEXT NOT NULL DEFAULT '',
	result    TEXT NOT NULL,
	stored_at BIGINT NOT NULL
)`

type resultRow struct {
	JobKey   string `db:"job_key"`
	Result   string `db:"result"`
	StoredAt int64  `db:"stored_at"`
}

// SQL is a Store backed by sqlite3 or postgres through sqlx.
type SQL struct {
	db      *sqlx.DB
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// OpenSQL connects, verifies the connection, and creates the table if needed.
func OpenSQL(ctx context.Context, driver, dsn string, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) (*SQL, error) {
	if dsn == "" {
		return nil, errors.New("store DSN is required for SQL drivers")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One connection keeps ":memory:" databases shared and writes serialized.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create job_results table: %w", err)
	}

	logger.Info("job store opened", "driver", driver, "ttl", ttl)
	return &SQL{db: db, ttl: ttl, clock: clock, metrics: metrics, logger: logger}, nil
}

func (s *SQL) Get(ctx context.Context, key domain.JobKey) (domain.Result, error) {
	var row resultRow
	query := s.db.Rebind(`SELECT job_key, result, stored_at FROM job_results WHERE job_key = ?`)
	if err := s.db.GetContext(ctx, &row, query, key.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.StoreLookups.WithLabelValues("miss").Inc()
			return domain.Result{}, ErrNotFound
		}
		return domain.Result{}, fmt.Errorf("get %s: %w", key, err)
	}
	s.metrics.StoreLookups.WithLabelValues("hit").Inc()
	return decodeResult([]byte(row.Result))
}

func (s *SQL) Put(ctx context.Context, res domain.Result) error {
	data, err := encodeResult(res)
	if err != nil {
		return err
	}
	key := res.Key()
	query := s.db.Rebind(`
		INSERT INTO job_results (job_key, variable, source, scenario, result, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_key) DO UPDATE SET
			result = excluded.result,
			stored_at = excluded.stored_at`)
	_, err = s.db.ExecContext(ctx, query,
		key.String(),
		string(key.Variable),
		string(key.Source),
		string(key.Scenario),
		string(data),
		s.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key domain.JobKey) error {
	query := s.db.Rebind(`DELETE FROM job_results WHERE job_key = ?`)
	if _, err := s.db.ExecContext(ctx, query, key.String()); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQL) List(ctx context.Context) ([]domain.Result, error) {
	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT job_key, result, stored_at FROM job_results ORDER BY job_key`); err != nil {
		return nil, fmt.Errorf("list job results: %w", err)
	}
	out := make([]domain.Result, 0, len(rows))
	for _, r := range rows {
		res, err := decodeResult([]byte(r.Result))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.JobKey, err)
		}
		out = append(out, res)
	}
	return out, nil
}

func (s *SQL) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_results`); err != nil {
		return fmt.Errorf("reset job results: %w", err)
	}
	return nil
}

func (s *SQL) Prune(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().Add(-s.ttl).UnixNano()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM job_results WHERE stored_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune job results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune job results: %w", err)
	}
	s.metrics.StorePruned.Add(float64(n))
	return int(n), nil
}

// CheckReadiness pings the database.
func (s *SQL) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQL) Close() error {
	return s.db.Close()
}
