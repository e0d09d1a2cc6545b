package models

import (
	"math"
	"time"
)

// BlockRecord marks a subject as refused until ExpiresAt. Level is 0 for
// administrative blocks and grows by one with each automatic escalation.
type BlockRecord struct {
	SubjectID string    `json:"subject_id"`
	Level     int       `json:"level"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Active reports whether the block still applies at now. Records are checked
// here as well as expired by the backend TTL, so clock skew between the two
// never extends a block.
func (b *BlockRecord) Active(now time.Time) bool {
	return b != nil && now.Before(b.ExpiresAt)
}

// RetryAfterSeconds is the whole number of seconds until expiry, never below 1.
func (b *BlockRecord) RetryAfterSeconds(now time.Time) int {
	remaining := b.ExpiresAt.Sub(now).Seconds()
	secs := int(math.Ceil(remaining))
	if secs < 1 {
		return 1
	}
	return secs
}
