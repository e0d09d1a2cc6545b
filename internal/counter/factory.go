package counter

import (
	"context"
	"log/slog"

	"gatekeeper/internal/models"
)

// New returns the Redis backend when a URL is configured and the in-memory
// backend otherwise. Callers get the same contract either way.
func New(ctx context.Context, cfg *models.Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Redis.Configured() {
		logger.Info("No Redis configured; using process-local counters",
			"cleanup_interval", cfg.Counter.CleanupInterval,
		)
		return NewMemoryBackend(WithCleanupInterval(cfg.Counter.CleanupInterval)), nil
	}

	b, err := NewRedisBackend(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Using Redis counter backend")
	return b, nil
}
