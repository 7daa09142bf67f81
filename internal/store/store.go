// Package store persists companies, signals and programs in SQLite or
// PostgreSQL.
package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/athena/internal/company"
	"github.com/sells-group/athena/internal/config"
	"github.com/sells-group/athena/internal/resilience"
)

// Store is a company store backed by a SQL database.
type Store interface {
	company.Store
	company.Ingester

	// ScoreDistribution returns the number of companies per heat score.
	ScoreDistribution(ctx context.Context) (map[int]int, error)
	// RisingCompanies returns companies whose heat score rose by at least
	// minDelta since the last snapshot, largest rise first.
	RisingCompanies(ctx context.Context, minDelta, limit int) ([]Rising, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Rising is a company with its heat score change since the last snapshot.
type Rising struct {
	company.Company
	Delta int `json:"delta"`
}

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Open connects to the store described by cfg, retrying transient
// connection failures.
func Open(ctx context.Context, cfg config.StoreConfig, retry resilience.RetryConfig) (Store, error) {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("store.open")
	}

	var open func(ctx context.Context) (Store, error)
	switch cfg.Driver {
	case "sqlite":
		open = func(ctx context.Context) (Store, error) {
			return NewSQLite(ctx, cfg.DatabaseURL, cfg.BusyTimeoutMs)
		}
	case "postgres":
		open = func(ctx context.Context) (Store, error) {
			return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		}
	default:
		return nil, eris.Wrapf(ErrUnknownDriver, "store: driver %q", cfg.Driver)
	}

	st, err := resilience.DoVal(ctx, retry, open)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	zap.L().Debug("store: opened", zap.String("driver", cfg.Driver))
	return st, nil
}
