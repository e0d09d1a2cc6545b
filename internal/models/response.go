// Package models - API response types and error handling.
//
// Response Design Principles:
// - Every rejection is a structured JSON body, never a bare status
// - Optional fields use omitempty so admission bodies stay minimal
// - Machine-readable codes only where clients branch on them
package models

import (
	"time"
)

// ErrorResponse is the body of every rejection. Error carries the HTTP reason
// phrase; Message and Code are present only when they add information.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Reason phrases used in ErrorResponse.Error.
const (
	ErrorTooManyRequests = "Too Many Requests"
	ErrorUnauthorized    = "Unauthorized"
	ErrorForbidden       = "Forbidden"
	ErrorBadRequest      = "Bad Request"
	ErrorNotFound        = "Not Found"
	ErrorInternal        = "Internal Server Error"
	ErrorUnavailable     = "Service Unavailable"
)

// MessageRateLimited is shared by both 429 variants.
const MessageRateLimited = "Rate limit exceeded"

// Machine-readable error codes.
const (
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrorCodeInvalidRequest    = "INVALID_REQUEST"
	ErrorCodeNotFound          = "NOT_FOUND"
	ErrorCodeInternalError     = "INTERNAL_ERROR"
)

func NewErrorResponse(errText, message, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:   errText,
		Message: message,
		Code:    code,
	}
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{Status: status, Message: message}
}

// SessionResponse echoes the caller's identity back to them.
type SessionResponse struct {
	User *User `json:"user"`
}

type BlockStatusResponse struct {
	IP      string       `json:"ip"`
	Blocked bool         `json:"blocked"`
	Block   *BlockRecord `json:"block,omitempty"`
}

type SuspensionStatusResponse struct {
	UserID    string             `json:"user_id"`
	Suspended bool               `json:"suspended"`
	Reason    string             `json:"reason,omitempty"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	History   []SuspensionRecord `json:"history"`
}
