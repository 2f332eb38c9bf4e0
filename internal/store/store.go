// Package store keeps retrieval results keyed by job. It is the only cache in
// the service and is owned by the session that fills it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
)

// ErrNotFound is returned when no result is stored under a key.
var ErrNotFound = errors.New("job result not found")

// Store holds at most one result per job key. Implementations are safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key domain.JobKey) (domain.Result, error)
	Put(ctx context.Context, res domain.Result) error
	Delete(ctx context.Context, key domain.JobKey) error
	// List returns every stored result ordered by key.
	List(ctx context.Context) ([]domain.Result, error)
	// Reset removes every result.
	Reset(ctx context.Context) error
	// Prune removes results stored longer than the retention period and
	// reports how many were removed.
	Prune(ctx context.Context) (int, error)
	Close() error
}

// Config selects and tunes a store implementation.
type Config struct {
	// Driver is "memory", "sqlite3", or "postgres".
	Driver string
	DSN    string
	// TTL is the retention period. Zero keeps results until reset.
	TTL time.Duration
}

// New opens the store named by cfg.Driver.
func New(ctx context.Context, cfg Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.TTL, clock, metrics), nil
	case "sqlite3", "postgres":
		return OpenSQL(ctx, cfg.Driver, cfg.DSN, cfg.TTL, clock, metrics, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// record is the persisted form of a result. Tables are not part of the
// result's JSON, so they travel next to it.
type record struct {
	Result domain.Result                 `json:"result"`
	Tables map[domain.Group]domain.Table `json:"tables,omitempty"`
}

func encodeResult(res domain.Result) ([]byte, error) {
	data, err := json.Marshal(record{Result: res, Tables: res.Tables})
	if err != nil {
		return nil, fmt.Errorf("encode result %s: %w", res.Key(), err)
	}
	return data, nil
}

func decodeResult(data []byte) (domain.Result, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Result{}, fmt.Errorf("decode result: %w", err)
	}
	rec.Result.Tables = rec.Tables
	return rec.Result, nil
}
