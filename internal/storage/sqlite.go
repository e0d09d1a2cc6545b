package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gatekeeper/internal/models"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as Unix nanoseconds so ordering and comparisons stay
// numeric.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS suspensions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	reason       TEXT NOT NULL,
	suspended_by TEXT NOT NULL DEFAULT '',
	suspended_at INTEGER NOT NULL,
	expires_at   INTEGER,
	lifted_at    INTEGER
);
CREATE INDEX IF NOT EXISTS suspensions_user_idx ON suspensions (user_id, suspended_at DESC);
`

const sqliteColumns = `id, user_id, reason, suspended_by, suspended_at, expires_at, lifted_at`

// SQLiteStorage implements Storage on database/sql with the pure-Go driver.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(ctx context.Context, config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent admin calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) ActiveSuspension(ctx context.Context, userID string, now time.Time) (*models.SuspensionRecord, error) {
	row := ss.db.QueryRowContext(ctx, `
		SELECT `+sqliteColumns+`
		FROM suspensions
		WHERE user_id = ?
		  AND lifted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY suspended_at DESC
		LIMIT 1`, userID, now.UnixNano())

	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active suspension: %w", err)
	}
	return rec, nil
}

func (ss *SQLiteStorage) SaveSuspension(ctx context.Context, rec *models.SuspensionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid suspension: %w", err)
	}

	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO suspensions (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Reason, rec.SuspendedBy,
		rec.SuspendedAt.UnixNano(), nullableNanos(rec.ExpiresAt), nullableNanos(rec.LiftedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save suspension: %w", err)
	}
	return nil
}

func (ss *SQLiteStorage) LiftSuspension(ctx context.Context, userID string, liftedAt time.Time) (int, error) {
	res, err := ss.db.ExecContext(ctx, `
		UPDATE suspensions SET lifted_at = ?
		WHERE user_id = ? AND lifted_at IS NULL`, liftedAt.UnixNano(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to lift suspension: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to lift suspension: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return int(n), nil
}

func (ss *SQLiteStorage) Suspensions(ctx context.Context, userID string) ([]*models.SuspensionRecord, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+`
		FROM suspensions
		WHERE user_id = ?
		ORDER BY suspended_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspensions: %w", err)
	}
	defer rows.Close()

	records := make([]*models.SuspensionRecord, 0)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
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

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*models.SuspensionRecord, error) {
	var (
		rec         models.SuspensionRecord
		suspendedAt int64
		expiresAt   sql.NullInt64
		liftedAt    sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Reason, &rec.SuspendedBy, &suspendedAt, &expiresAt, &liftedAt); err != nil {
		return nil, err
	}
	rec.SuspendedAt = time.Unix(0, suspendedAt).UTC()
	rec.ExpiresAt = timeFromNanos(expiresAt)
	rec.LiftedAt = timeFromNanos(liftedAt)
	return &rec, nil
}

func nullableNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
