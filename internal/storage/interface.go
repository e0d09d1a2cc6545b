package storage

import (
	"context"
	"time"

	"gatekeeper/internal/models"
)

// Storage persists suspension records. Records are never deleted; lifting
// stamps LiftedAt so the history stays auditable.
type Storage interface {
	// ActiveSuspension returns the most recent suspension of userID that is
	// active at now, or ErrNotFound.
	ActiveSuspension(ctx context.Context, userID string, now time.Time) (*models.SuspensionRecord, error)

	// SaveSuspension inserts a new record. Reusing an ID returns ErrDuplicate.
	SaveSuspension(ctx context.Context, rec *models.SuspensionRecord) error

	// LiftSuspension stamps liftedAt on every unlifted suspension of userID
	// and returns how many were lifted. Zero lifted returns ErrNotFound.
	LiftSuspension(ctx context.Context, userID string, liftedAt time.Time) (int, error)

	// Suspensions returns the full history for userID, newest first.
	Suspensions(ctx context.Context, userID string) ([]*models.SuspensionRecord, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Config holds configuration for storage backends.
type Config struct {
	Type             string
	ConnectionString string
	MaxOpenConns     int
}
