package models

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMethod(t *testing.T) {
	tests := []struct {
		method string
		want   OperationClass
	}{
		{http.MethodGet, OperationRead},
		{http.MethodHead, OperationRead},
		{"get", OperationRead},
		{http.MethodPost, OperationMutate},
		{http.MethodPut, OperationMutate},
		{http.MethodPatch, OperationMutate},
		{http.MethodDelete, OperationMutate},
		{http.MethodOptions, OperationMutate},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMethod(tt.method))
		})
	}
}

func TestSubject_Attributable(t *testing.T) {
	assert.True(t, IPSubject("203.0.113.7").Attributable())
	assert.False(t, IPSubject(UnknownIP).Attributable())
	assert.False(t, IPSubject("").Attributable())
	assert.Equal(t, "user:u-1", UserSubject("u-1").String())
}

func TestBlockRecord_RetryAfterSeconds(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      int
	}{
		{"rounds up partial seconds", now.Add(1500 * time.Millisecond), 2},
		{"exact seconds", now.Add(90 * time.Second), 90},
		{"floors at one", now.Add(100 * time.Millisecond), 1},
		{"already expired still one", now.Add(-time.Second), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &BlockRecord{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, rec.RetryAfterSeconds(now))
		})
	}
}

func TestBlockRecord_Active(t *testing.T) {
	now := time.Now()
	rec := &BlockRecord{ExpiresAt: now.Add(time.Minute)}

	assert.True(t, rec.Active(now))
	assert.False(t, rec.Active(now.Add(time.Minute)))
	assert.False(t, (*BlockRecord)(nil).Active(now))
}

func TestSuspensionRecord_IsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		record SuspensionRecord
		want   bool
	}{
		{"open ended", SuspensionRecord{}, true},
		{"future expiry", SuspensionRecord{ExpiresAt: &future}, true},
		{"past expiry", SuspensionRecord{ExpiresAt: &past}, false},
		{"lifted", SuspensionRecord{LiftedAt: &past}, false},
		{"lifted before expiry", SuspensionRecord{ExpiresAt: &future, LiftedAt: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.IsActive(now))
		})
	}
}

func TestSuspensionRecord_DisplayReason(t *testing.T) {
	assert.Equal(t, DefaultSuspensionReason, (&SuspensionRecord{Reason: "  "}).DisplayReason())
	assert.Equal(t, "chargeback fraud", (&SuspensionRecord{Reason: "chargeback fraud"}).DisplayReason())
}

func TestBlockRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     BlockRequest
		wantErr string
	}{
		{"valid v4", BlockRequest{IP: " 198.51.100.4 ", Reason: "scraping", Duration: "1h"}, ""},
		{"valid v6", BlockRequest{IP: "2001:db8::1", Reason: "scraping", Duration: "30m"}, ""},
		{"missing ip", BlockRequest{Reason: "x", Duration: "1h"}, "ip is required"},
		{"bad ip", BlockRequest{IP: "10.0.0", Reason: "x", Duration: "1h"}, "invalid ip"},
		{"missing reason", BlockRequest{IP: "10.0.0.1", Duration: "1h"}, "reason is required"},
		{"bad duration", BlockRequest{IP: "10.0.0.1", Reason: "x", Duration: "soon"}, "invalid duration"},
		{"negative duration", BlockRequest{IP: "10.0.0.1", Reason: "x", Duration: "-5m"}, "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			err := req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSuspendRequest_Validate(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	assert.NoError(t, (&SuspendRequest{UserID: "u1", Reason: "abuse"}).Validate(now))
	assert.NoError(t, (&SuspendRequest{UserID: "u1", Reason: "abuse", ExpiresAt: &future}).Validate(now))
	assert.Error(t, (&SuspendRequest{UserID: "u1", Reason: "abuse", ExpiresAt: &past}).Validate(now))
	assert.Error(t, (&SuspendRequest{Reason: "abuse"}).Validate(now))
	assert.Error(t, (&SuspendRequest{UserID: "u1"}).Validate(now))
}

func TestUser_HasRole(t *testing.T) {
	assert.True(t, (&User{Role: "admin"}).HasRole("admin"))
	assert.False(t, (&User{Role: "member"}).HasRole("admin"))
	assert.False(t, (&User{}).HasRole(""))
	assert.False(t, (*User)(nil).HasRole("admin"))
}
