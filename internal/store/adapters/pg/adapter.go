// Package pg implements the store repositories for PostgreSQL using pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afp-labs/mailgrant/internal/store/core"
)

// Config for the Postgres adapter.
type Config struct {
	DSN             string
	MaxConns        int
	ConnMaxLifetime time.Duration
}

type adapter struct {
	pool        *pgxpool.Pool
	users       *userRepo
	credentials *credentialRepo
	accessLog   *accessLogRepo
}

// New connects a pool and returns the Repository.
func New(ctx context.Context, cfg Config) (core.Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	return &adapter{
		pool:        pool,
		users:       &userRepo{pool: pool},
		credentials: &credentialRepo{pool: pool},
		accessLog:   &accessLogRepo{pool: pool},
	}, nil
}

func (a *adapter) Ping(ctx context.Context) error { return a.pool.Ping(ctx) }
func (a *adapter) Close()                         { a.pool.Close() }

func (a *adapter) Users() core.UserRepository             { return a.users }
func (a *adapter) Credentials() core.CredentialRepository { return a.credentials }
func (a *adapter) AccessLog() core.AccessLogRepository    { return a.accessLog }

// isUniqueViolation reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullIfEmpty maps "" to SQL NULL for optional text columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
