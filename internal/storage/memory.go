package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gatekeeper/internal/models"
)

// MemoryStorage keeps records in process memory. Returned records are
// copies, so callers cannot mutate stored state.
type MemoryStorage struct {
	mu     sync.RWMutex
	byUser map[string][]*models.SuspensionRecord
	ids    map[string]struct{}
	closed bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byUser: make(map[string][]*models.SuspensionRecord),
		ids:    make(map[string]struct{}),
	}
}

func (ms *MemoryStorage) ActiveSuspension(ctx context.Context, userID string, now time.Time) (*models.SuspensionRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, fmt.Errorf("storage is closed")
	}

	var latest *models.SuspensionRecord
	for _, rec := range ms.byUser[userID] {
		if !rec.IsActive(now) {
			continue
		}
		if latest == nil || rec.SuspendedAt.After(latest.SuspendedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copyRecord(latest), nil
}

func (ms *MemoryStorage) SaveSuspension(ctx context.Context, rec *models.SuspensionRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid suspension: %w", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return fmt.Errorf("storage is closed")
	}
	if _, exists := ms.ids[rec.ID]; exists {
		return ErrDuplicate
	}

	ms.ids[rec.ID] = struct{}{}
	ms.byUser[rec.UserID] = append(ms.byUser[rec.UserID], copyRecord(rec))
	return nil
}

func (ms *MemoryStorage) LiftSuspension(ctx context.Context, userID string, liftedAt time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return 0, fmt.Errorf("storage is closed")
	}

	lifted := 0
	for _, rec := range ms.byUser[userID] {
		if rec.LiftedAt == nil {
			t := liftedAt
			rec.LiftedAt = &t
			lifted++
		}
	}
	if lifted == 0 {
		return 0, ErrNotFound
	}
	return lifted, nil
}

func (ms *MemoryStorage) Suspensions(ctx context.Context, userID string) ([]*models.SuspensionRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, fmt.Errorf("storage is closed")
	}

	out := make([]*models.SuspensionRecord, 0, len(ms.byUser[userID]))
	for _, rec := range ms.byUser[userID] {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SuspendedAt.After(out[j].SuspendedAt)
	})
	return out, nil
}

func (ms *MemoryStorage) Ping(ctx context.Context) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.closed {
		return fmt.Errorf("storage is closed")
	}
	return nil
}

func (ms *MemoryStorage) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	return nil
}

func copyRecord(rec *models.SuspensionRecord) *models.SuspensionRecord {
	cp := *rec
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		cp.ExpiresAt = &t
	}
	if rec.LiftedAt != nil {
		t := *rec.LiftedAt
		cp.LiftedAt = &t
	}
	return &cp
}
