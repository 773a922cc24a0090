package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kylefelipe/satalertas-server/internal/sqlcgen"
)

type Pool struct {
	pool *pgxpool.Pool
}

type Options struct {
	// ConnectAttempts bounds how many times Open pings before giving up. Zero means one.
	ConnectAttempts uint
	ConnectDelay    time.Duration
	Log             *zerolog.Logger
}

func Open(ctx context.Context, databaseURL string, opts Options) (*Pool, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	attempts := opts.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	delay := opts.ConnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	// Verify connectivity early; the database may still be starting.
	err = retry.Do(
		func() error { return p.Ping(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if opts.Log != nil {
				opts.Log.Warn().Err(err).Uint("attempt", n+1).Msg("database not reachable yet")
			}
		}),
	)
	if err != nil {
		p.Close()
		return nil, err
	}

	return &Pool{pool: p}, nil
}

func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return nil
	}
	return p.pool.Ping(ctx)
}

func (p *Pool) Queries() *sqlcgen.Queries {
	if p == nil || p.pool == nil {
		return nil
	}
	return sqlcgen.New(p.pool)
}

// InTx runs fn inside one transaction and commits only if fn succeeds.
func (p *Pool) InTx(ctx context.Context, fn func(q *sqlcgen.Queries) error) error {
	if p == nil || p.pool == nil {
		return errors.New("database not configured")
	}
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(sqlcgen.New(p.pool).WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
