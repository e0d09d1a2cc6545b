// Package models - Administrative request types and input validation.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Normalize input (trimmed strings) before validating
// - Durations travel as Go duration strings ("15m", "24h")
package models

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// BlockRequest asks for an administrative block of one IP address.
type BlockRequest struct {
	IP       string `json:"ip"`
	Reason   string `json:"reason"`
	Duration string `json:"duration"`
}

// SuspendRequest asks for a user suspension. A nil ExpiresAt suspends until lifted.
type SuspendRequest struct {
	UserID    string     `json:"user_id"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r *BlockRequest) Normalize() {
	r.IP = strings.TrimSpace(r.IP)
	r.Reason = strings.TrimSpace(r.Reason)
	r.Duration = strings.TrimSpace(r.Duration)
}

func (r *BlockRequest) Validate() error {
	if r.IP == "" {
		return errors.New("ip is required")
	}
	if _, err := netip.ParseAddr(r.IP); err != nil {
		return fmt.Errorf("invalid ip: %s", r.IP)
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	if _, err := r.ParsedDuration(); err != nil {
		return err
	}
	return nil
}

// ParsedDuration returns the requested block length.
func (r *BlockRequest) ParsedDuration() (time.Duration, error) {
	if r.Duration == "" {
		return 0, errors.New("duration is required")
	}
	d, err := time.ParseDuration(r.Duration)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return d, nil
}

func (r *SuspendRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Reason = strings.TrimSpace(r.Reason)
}

// Validate checks the request against now so an already-expired suspension is
// rejected rather than silently stored.
func (r *SuspendRequest) Validate(now time.Time) error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return errors.New("expires_at must be in the future")
	}
	return nil
}
