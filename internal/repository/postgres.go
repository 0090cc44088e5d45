package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/airbooking-core/config"
	"github.com/Domenick1991/airbooking-core/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"

	constraintBookingLocator = "bookings_locator_key"
	constraintIdempotencyKey = "idempotency_records_pkey"
)

// NewPool connects to Postgres, retrying while the database is still starting up.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	const attempts = 5
	for attempt := 1; attempt <= attempts; attempt++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		logger.Warn("postgres connect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// ApplySchema creates missing tables and indexes.
func ApplySchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, &pgUnitOfWork{tx: tx}); err != nil {
		return err
	}
	// Cancellation is honoured up to here; once commit starts it runs to completion.
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// classify maps Postgres error codes onto the domain error taxonomy.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintBookingLocator:
			return fmt.Errorf("%w: %s", ErrLocatorTaken, pgErr.Message)
		case constraintIdempotencyKey:
			return fmt.Errorf("%w: %s", ErrIdempotencyKeyTaken, pgErr.Message)
		}
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.Message)
	case codeCheckViolation:
		return fmt.Errorf("%w: %s (%s)", domain.ErrIntegrity, pgErr.Message, pgErr.ConstraintName)
	}
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, classify(err))
}

var _ Store = (*PGStore)(nil)
