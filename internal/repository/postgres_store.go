package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"groupdecide/pkg/database"
)

// uniqueViolation is the postgres SQLSTATE for a duplicate key
const uniqueViolation = "23505"

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*PostgresTx)(nil)
)

// PostgresStore runs every unit of work in one postgres transaction
type PostgresStore struct {
	db *database.PostgresDB
}

func NewPostgresStore(db *database.PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithinTx runs fn inside a transaction, committing only if fn succeeds
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		return fn(&PostgresTx{tx: tx})
	})
}

// Health checks the database connection
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Close closes the underlying pool
func (s *PostgresStore) Close() {
	s.db.Close()
}

// PostgresTx implements Tx on top of a pgx transaction
type PostgresTx struct {
	tx pgx.Tx
}

// mapError converts driver errors into repository sentinels
func mapError(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("failed to %s: %w (%s)", action, ErrDuplicate, pgErr.ConstraintName)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// execAffecting runs a statement that must touch at least one row
func (t *PostgresTx) execAffecting(ctx context.Context, action, query string, args ...any) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, action)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// execCount runs a statement and reports how many rows it touched
func (t *PostgresTx) execCount(ctx context.Context, action, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, action)
	}
	return tag.RowsAffected(), nil
}
