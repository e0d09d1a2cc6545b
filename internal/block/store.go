// Package block keeps "refused until T" records for subjects and promotes
// repeated authentication failures into escalating blocks.
//
// Escalation policy:
// - Failures are counted per (subject, endpoint) in a window that starts at
//   the first failure and lasts FailureWindow
// - Reaching Threshold inside that window creates a block and resets the count
// - Each promotion bumps a per-subject level that is forgotten LevelTTL after
//   the first promotion
// - Block length is BaseDuration * 2^(level-1), capped at MaxDuration
// - Administrative blocks are level 0 and do not touch the level counter
package block

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gatekeeper/internal/counter"
	"gatekeeper/internal/models"
)

type Policy struct {
	Threshold     int
	FailureWindow time.Duration
	BaseDuration  time.Duration
	MaxDuration   time.Duration
	LevelTTL      time.Duration
}

func DefaultPolicy() Policy {
	return PolicyFromConfig(models.NewDefaultConfig().Blocking)
}

func PolicyFromConfig(cfg models.BlockingConfig) Policy {
	return Policy{
		Threshold:     cfg.FailureThreshold,
		FailureWindow: cfg.FailureWindow,
		BaseDuration:  cfg.BaseDuration,
		MaxDuration:   cfg.MaxDuration,
		LevelTTL:      cfg.LevelTTL,
	}
}

// DurationFor returns the block length for an escalation level (1-based).
func (p Policy) DurationFor(level int) time.Duration {
	if level < 1 {
		level = 1
	}
	d := p.BaseDuration
	for i := 1; i < level; i++ {
		if d >= p.MaxDuration/2 {
			return p.MaxDuration
		}
		d *= 2
	}
	if d > p.MaxDuration {
		return p.MaxDuration
	}
	return d
}

type Store struct {
	backend counter.Backend
	policy  Policy
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(backend counter.Backend, policy Policy, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		policy:  policy,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func blockKey(subject models.Subject) string {
	return "block:" + subject.String()
}

func levelKey(subject models.Subject) string {
	return "blocklevel:" + subject.String()
}

func failureKey(subject models.Subject, endpoint string) string {
	return "authfail:" + subject.String() + ":" + endpoint
}

// IsBlocked returns the active block for subject, or nil. A record past its
// expiry is treated as absent even if the backend has not evicted it yet.
func (s *Store) IsBlocked(ctx context.Context, subject models.Subject) (*models.BlockRecord, error) {
	raw, ok, err := s.backend.Get(ctx, blockKey(subject))
	if err != nil {
		return nil, fmt.Errorf("failed to read block for %s: %w", subject, err)
	}
	if !ok {
		return nil, nil
	}

	var rec models.BlockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode block for %s: %w", subject, err)
	}
	if !rec.Active(s.now()) {
		return nil, nil
	}
	return &rec, nil
}

// RecordFailure counts one authentication failure and returns the block in
// force, if this failure reached the threshold. A block already in place that
// outlasts the escalation is kept as is.
func (s *Store) RecordFailure(ctx context.Context, subject models.Subject, endpoint string) (*models.BlockRecord, error) {
	fkey := failureKey(subject, endpoint)
	count, err := s.backend.Increment(ctx, fkey, s.policy.FailureWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to count auth failure for %s: %w", subject, err)
	}
	// Exactly one caller observes the crossing, so concurrent failures cannot
	// escalate twice for the same window.
	if count != int64(s.policy.Threshold) {
		return nil, nil
	}

	level, err := s.backend.Increment(ctx, levelKey(subject), s.policy.LevelTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to escalate block level for %s: %w", subject, err)
	}

	now := s.now()
	duration := s.policy.DurationFor(int(level))
	rec := &models.BlockRecord{
		SubjectID: subject.ID,
		Level:     int(level),
		Reason:    fmt.Sprintf("%d authentication failures on %s", count, endpoint),
		BlockedAt: now,
		ExpiresAt: now.Add(duration),
	}

	existing, err := s.IsBlocked(ctx, subject)
	if err != nil {
		s.logger.Warn("Failed to read current block; overwriting", "subject", subject.String(), "error", err)
	}
	if existing != nil && !existing.ExpiresAt.Before(rec.ExpiresAt) {
		rec = existing
	} else if err := s.save(ctx, subject, rec, duration); err != nil {
		return nil, err
	}

	if err := s.backend.Delete(ctx, fkey); err != nil {
		s.logger.Warn("Failed to reset auth failure counter", "subject", subject.String(), "error", err)
	}

	s.logger.Warn("Subject blocked after repeated authentication failures",
		"subject", subject.String(),
		"endpoint", endpoint,
		"level", level,
		"expires_at", rec.ExpiresAt,
	)
	return rec, nil
}

// Block places an administrative block of the given length.
func (s *Store) Block(ctx context.Context, subject models.Subject, reason string, duration time.Duration) (*models.BlockRecord, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("block duration must be positive, got %s", duration)
	}

	now := s.now()
	rec := &models.BlockRecord{
		SubjectID: subject.ID,
		Level:     0,
		Reason:    reason,
		BlockedAt: now,
		ExpiresAt: now.Add(duration),
	}
	if err := s.save(ctx, subject, rec, duration); err != nil {
		return nil, err
	}
	s.logger.Info("Subject blocked by administrator", "subject", subject.String(), "duration", duration)
	return rec, nil
}

// Unblock lifts any block on subject. The escalation level is kept, so a
// subject that keeps failing after an early release still escalates.
func (s *Store) Unblock(ctx context.Context, subject models.Subject) error {
	if err := s.backend.Delete(ctx, blockKey(subject)); err != nil {
		return fmt.Errorf("failed to unblock %s: %w", subject, err)
	}
	s.logger.Info("Subject unblocked", "subject", subject.String())
	return nil
}

func (s *Store) save(ctx context.Context, subject models.Subject, rec *models.BlockRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode block: %w", err)
	}
	if err := s.backend.Set(ctx, blockKey(subject), string(data), ttl); err != nil {
		return fmt.Errorf("failed to store block for %s: %w", subject, err)
	}
	return nil
}
