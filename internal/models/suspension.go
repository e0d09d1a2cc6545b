package models

import (
	"errors"
	"strings"
	"time"
)

// DefaultSuspensionReason is reported when a record carries no reason.
const DefaultSuspensionReason = "Account suspended"

// SuspensionRecord is an administrative suspension of a user account.
//
// Lifecycle:
// - Created by an administrator, optionally with an expiry
// - Lifted explicitly (LiftedAt set) or by ExpiresAt passing
// - Records are never deleted, so the history of a user stays auditable
type SuspensionRecord struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Reason      string     `json:"reason"`
	SuspendedBy string     `json:"suspended_by,omitempty"`
	SuspendedAt time.Time  `json:"suspended_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LiftedAt    *time.Time `json:"lifted_at,omitempty"`
}

// IsActive reports whether the suspension applies at now: not lifted, and either
// open-ended or expiring in the future.
func (s *SuspensionRecord) IsActive(now time.Time) bool {
	if s == nil || s.LiftedAt != nil {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

// DisplayReason falls back to the default message for records without a reason.
func (s *SuspensionRecord) DisplayReason() string {
	if strings.TrimSpace(s.Reason) == "" {
		return DefaultSuspensionReason
	}
	return s.Reason
}

func (s *SuspensionRecord) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(s.UserID) == "" {
		return errors.New("user_id is required")
	}
	if s.SuspendedAt.IsZero() {
		return errors.New("suspended_at is required")
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(s.SuspendedAt) {
		return errors.New("expires_at must be after suspended_at")
	}
	return nil
}
