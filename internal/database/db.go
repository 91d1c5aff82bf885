package database

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/models"
)

//go:embed schema.sql
var schema string

// dbtx is satisfied by both the pool and an open transaction.
type dbtx interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres record store. Inside Atomic, db is the open
// transaction and every method joins it.
type Store struct {
	pool   *pgxpool.Pool
	db     dbtx
	logger *logrus.Logger
}

// Connect opens a pool against url and pings it.
func Connect(ctx context.Context, url string, logger *logrus.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	logger.WithField("host", config.ConnConfig.Host).Info("connected to database")
	return &Store{pool: pool, db: pool, logger: logger}, nil
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// tx runs fn in a transaction, or in a savepoint when s is already inside
// one.
func (s *Store) tx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.db, fn)
}

// Atomic runs fn in one transaction. Every write fn makes through tx
// commits together or not at all.
func (s *Store) Atomic(ctx context.Context, fn func(tx models.RecordStore) error) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{pool: s.pool, db: tx, logger: s.logger})
	})
}
