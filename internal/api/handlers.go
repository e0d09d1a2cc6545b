package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/suspension"
)

// BlockAdmin is the block store as seen by the admin endpoints.
type BlockAdmin interface {
	IsBlocked(ctx context.Context, subject models.Subject) (*models.BlockRecord, error)
	Block(ctx context.Context, subject models.Subject, reason string, duration time.Duration) (*models.BlockRecord, error)
	Unblock(ctx context.Context, subject models.Subject) error
}

// SuspensionAdmin is the suspension gate as seen by the admin endpoints.
type SuspensionAdmin interface {
	Check(ctx context.Context, userID string) (suspension.Status, error)
	Suspend(ctx context.Context, req models.SuspendRequest, suspendedBy string) (*models.SuspensionRecord, error)
	Lift(ctx context.Context, userID string) (int, error)
	History(ctx context.Context, userID string) ([]*models.SuspensionRecord, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers contains HTTP handlers for the gatekeeper API
type Handlers struct {
	blocks      BlockAdmin
	suspensions SuspensionAdmin
	adminRole   string
	version     string

	storage  Pinger
	counters Pinger
	now      func() time.Time
}

type HandlerOption func(*Handlers)

func WithAdminRole(role string) HandlerOption {
	return func(h *Handlers) {
		h.adminRole = role
	}
}

func WithVersion(version string) HandlerOption {
	return func(h *Handlers) {
		h.version = version
	}
}

// WithStorage adds the durable store to the health check. An unreachable
// store makes the service unhealthy.
func WithStorage(store Pinger) HandlerOption {
	return func(h *Handlers) {
		h.storage = store
	}
}

// WithCounterBackend adds the counter backend to the health check. The gates
// fail open without it, so an outage only degrades the service.
func WithCounterBackend(backend Pinger) HandlerOption {
	return func(h *Handlers) {
		h.counters = backend
	}
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handlers) {
		h.now = now
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(blocks BlockAdmin, suspensions SuspensionAdmin, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		blocks:      blocks,
		suspensions: suspensions,
		adminRole:   "admin",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version
	statusCode := http.StatusOK

	if h.counters != nil {
		if err := h.counters.Ping(ctx); err != nil {
			response.Status = models.StatusDegraded
			response.AddComponent("counter_backend", models.StatusUnhealthy, err.Error())
		} else {
			response.AddComponent("counter_backend", models.StatusHealthy, "Counter backend is operational")
		}
	}

	if h.storage != nil {
		if err := h.storage.Ping(ctx); err != nil {
			response.Status = models.StatusUnhealthy
			statusCode = http.StatusServiceUnavailable
			response.AddComponent("storage", models.StatusUnhealthy, err.Error())
		} else {
			response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
		}
	}

	h.writeJSONResponse(w, statusCode, response)
}

// Session returns the caller's identity.
// GET /api/v1/session
func (h *Handlers) Session(w http.ResponseWriter, _ *http.Request, auth *models.AuthenticatedContext, _ map[string]string) {
	h.writeJSONResponse(w, http.StatusOK, &models.SessionResponse{User: auth.User})
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing left to do but log.
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, message, code string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(http.StatusText(statusCode), message, code))
}
