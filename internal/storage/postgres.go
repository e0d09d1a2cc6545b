package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gatekeeper/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS suspensions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	reason       TEXT NOT NULL,
	suspended_by TEXT NOT NULL DEFAULT '',
	suspended_at TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ,
	lifted_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS suspensions_user_idx ON suspensions (user_id, suspended_at DESC);
`

const postgresColumns = `id, user_id, reason, suspended_by, suspended_at, expires_at, lifted_at`

// uniqueViolation is the SQLSTATE for a duplicate primary key.
const uniqueViolation = "23505"

// PostgresStorage implements Storage on a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects, verifies the connection and ensures the schema exists.
func NewPostgresStorage(ctx context.Context, config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) ActiveSuspension(ctx context.Context, userID string, now time.Time) (*models.SuspensionRecord, error) {
	row := ps.pool.QueryRow(ctx, `
		SELECT `+postgresColumns+`
		FROM suspensions
		WHERE user_id = $1
		  AND lifted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY suspended_at DESC
		LIMIT 1`, userID, now)

	rec, err := scanPostgresRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active suspension: %w", err)
	}
	return rec, nil
}

func (ps *PostgresStorage) SaveSuspension(ctx context.Context, rec *models.SuspensionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid suspension: %w", err)
	}

	_, err := ps.pool.Exec(ctx, `
		INSERT INTO suspensions (`+postgresColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.UserID, rec.Reason, rec.SuspendedBy, rec.SuspendedAt, rec.ExpiresAt, rec.LiftedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to save suspension: %w", err)
	}
	return nil
}

func (ps *PostgresStorage) LiftSuspension(ctx context.Context, userID string, liftedAt time.Time) (int, error) {
	tag, err := ps.pool.Exec(ctx, `
		UPDATE suspensions SET lifted_at = $2
		WHERE user_id = $1 AND lifted_at IS NULL`, userID, liftedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to lift suspension: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotFound
	}
	return int(tag.RowsAffected()), nil
}

func (ps *PostgresStorage) Suspensions(ctx context.Context, userID string) ([]*models.SuspensionRecord, error) {
	rows, err := ps.pool.Query(ctx, `
		SELECT `+postgresColumns+`
		FROM suspensions
		WHERE user_id = $1
		ORDER BY suspended_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspensions: %w", err)
	}
	defer rows.Close()

	records := make([]*models.SuspensionRecord, 0)
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suspension: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list suspensions: %w", err)
	}
	return records, nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func scanPostgresRecord(row pgx.Row) (*models.SuspensionRecord, error) {
	var rec models.SuspensionRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Reason,
		&rec.SuspendedBy,
		&rec.SuspendedAt,
		&rec.ExpiresAt,
		&rec.LiftedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
