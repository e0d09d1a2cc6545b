package admission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gatekeeper/internal/auth"
	"gatekeeper/internal/block"
	"gatekeeper/internal/clientip"
	"gatekeeper/internal/counter"
	"gatekeeper/internal/models"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/storage"
	"gatekeeper/internal/suspension"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userHeader = "X-Test-User"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type countingBlocks struct {
	BlockChecker
	calls atomic.Int32
}

func (c *countingBlocks) IsBlocked(ctx context.Context, subject models.Subject) (*models.BlockRecord, error) {
	c.calls.Add(1)
	return c.BlockChecker.IsBlocked(ctx, subject)
}

type countingLimiter struct {
	RateChecker
	calls atomic.Int32
}

func (c *countingLimiter) Check(ctx context.Context, key ratelimit.Key, cfg ratelimit.Config) (ratelimit.Decision, error) {
	c.calls.Add(1)
	return c.RateChecker.Check(ctx, key, cfg)
}

type countingSuspensions struct {
	SuspensionChecker
	calls atomic.Int32
}

func (c *countingSuspensions) Check(ctx context.Context, userID string) (suspension.Status, error) {
	c.calls.Add(1)
	return c.SuspensionChecker.Check(ctx, userID)
}

type reportSink struct {
	mu        sync.Mutex
	endpoints []string
}

func (s *reportSink) Report(_ models.Subject, endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = append(s.endpoints, endpoint)
	return true
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) RecordDecision(_ context.Context, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type harness struct {
	clock       *fakeClock
	backend     *counter.MemoryBackend
	store       *block.Store
	suspensions *suspension.Gate
	blocks      *countingBlocks
	limiter     *countingLimiter
	suspChecks  *countingSuspensions
	authCalls   atomic.Int32
	sink        *reportSink
	recorder    *outcomeRecorder
	pipeline    *Pipeline
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		clock:    &fakeClock{now: time.Date(2026, 10, 15, 9, 0, 30, 0, time.UTC)},
		sink:     &reportSink{},
		recorder: &outcomeRecorder{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h.backend = counter.NewMemoryBackend(counter.WithClock(h.clock.Now))
	t.Cleanup(func() { h.backend.Close() })

	h.store = block.NewStore(h.backend, block.DefaultPolicy(), block.WithClock(h.clock.Now), block.WithLogger(logger))
	h.blocks = &countingBlocks{BlockChecker: h.store}
	h.limiter = &countingLimiter{RateChecker: ratelimit.NewLimiter(h.backend, ratelimit.WithClock(h.clock.Now), ratelimit.WithLogger(logger))}
	h.suspensions = suspension.NewGate(storage.NewMemoryStorage(), h.backend, suspension.WithClock(h.clock.Now), suspension.WithLogger(logger))
	h.suspChecks = &countingSuspensions{SuspensionChecker: h.suspensions}

	provider := auth.ProviderFunc(func(r *http.Request) (*models.AuthenticatedContext, error) {
		h.authCalls.Add(1)
		id := r.Header.Get(userHeader)
		if id == "" {
			return nil, auth.ErrNoToken
		}
		return &models.AuthenticatedContext{User: &models.User{ID: id}, SessionHandle: "sess-" + id}, nil
	})

	base := []Option{WithClock(h.clock.Now), WithLogger(logger), WithRecorder(h.recorder)}
	h.pipeline = New(
		clientip.NewResolver(models.ClientIPConfig{TrustProxyHeaders: true}),
		h.blocks,
		h.limiter,
		auth.NewGate(provider, h.sink, auth.WithLogger(logger)),
		h.suspChecks,
		append(base, opts...)...,
	)
	return h
}

// okHandler answers 200 with the user id and params it was handed.
func okHandler(w http.ResponseWriter, _ *http.Request, authCtx *models.AuthenticatedContext, params map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"user": authCtx.User.ID, "params": params})
}

func (h *harness) router(opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()
	router.Handle("/items/{id}", h.pipeline.Wrap(okHandler, opts...))
	return router
}

func request(method, ip, user string) *http.Request {
	req := httptest.NewRequest(method, "/items/42", nil)
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	return req
}

func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPipeline_AdmitsAndPassesContext(t *testing.T) {
	h := newHarness(t)
	router := h.router()

	rec := serve(router, request(http.MethodGet, "203.0.113.10", "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		User   string            `json:"user"`
		Params map[string]string `json:"params"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "user-1", body.User)
	assert.Equal(t, "42", body.Params["id"])

	assert.Equal(t, "60", rec.Header().Get(ratelimit.HeaderLimit))
	assert.Equal(t, "59", rec.Header().Get(ratelimit.HeaderRemaining))
	assert.NotEmpty(t, rec.Header().Get(ratelimit.HeaderReset))
	assert.Equal(t, []string{OutcomeAdmitted}, h.recorder.outcomes)
}

func TestPipeline_IndependentBudgets(t *testing.T) {
	h := newHarness(t)
	router := h.router()
	ip := "203.0.113.11"

	for i := 0; i < 20; i++ {
		require.Equal(t, http.StatusOK, serve(router, request(http.MethodPost, ip, "u")).Code, "mutate %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(router, request(http.MethodPost, ip, "u")).Code)

	rec := serve(router, request(http.MethodGet, ip, "u"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "59", rec.Header().Get(ratelimit.HeaderRemaining))
}

func TestPipeline_PerSubjectIsolation(t *testing.T) {
	h := newHarness(t)
	router := h.router()

	for i := 0; i < 60; i++ {
		require.Equal(t, http.StatusOK, serve(router, request(http.MethodGet, "198.51.100.1", "u")).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(router, request(http.MethodGet, "198.51.100.1", "u")).Code)
	assert.Equal(t, http.StatusOK, serve(router, request(http.MethodGet, "198.51.100.2", "u")).Code)
}

func TestPipeline_RateLimitedResponse(t *testing.T) {
	h := newHarness(t)
	router := h.router()
	ip := "198.51.100.3"

	for i := 0; i < 60; i++ {
		require.Equal(t, http.StatusOK, serve(router, request(http.MethodGet, ip, "u")).Code)
	}
	rec := serve(router, request(http.MethodGet, ip, "u"))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get(ratelimit.HeaderLimit))
	assert.Equal(t, "0", rec.Header().Get(ratelimit.HeaderRemaining))
	assert.Empty(t, rec.Header().Get("Retry-After"))

	reset, err := strconv.ParseInt(rec.Header().Get(ratelimit.HeaderReset), 10, 64)
	require.NoError(t, err)
	now := h.clock.Now().Unix()
	assert.Greater(t, reset, now)
	assert.LessOrEqual(t, reset, now+60)

	body := decodeError(t, rec)
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, "Rate limit exceeded", body["message"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, int32(60), h.authCalls.Load(), "rejected request never reaches auth")
}

func TestPipeline_RouteLimitOverridesDefault(t *testing.T) {
	h := newHarness(t)
	router := h.router(WithRateLimit(ratelimit.Config{Window: time.Minute, MaxRequests: 10}))

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, serve(router, request(http.MethodPost, "198.51.100.4", "u")).Code)
	}
	rec := serve(router, request(http.MethodPost, "198.51.100.4", "u"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get(ratelimit.HeaderLimit))
}

func TestPipeline_ScopesAreIndependent(t *testing.T) {
	h := newHarness(t)
	limited := h.router(WithScope("admin"), WithRateLimit(ratelimit.Config{Window: time.Minute, MaxRequests: 1}))
	shared := h.router()

	require.Equal(t, http.StatusOK, serve(limited, request(http.MethodPost, "198.51.100.5", "u")).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(limited, request(http.MethodPost, "198.51.100.5", "u")).Code)
	assert.Equal(t, http.StatusOK, serve(shared, request(http.MethodPost, "198.51.100.5", "u")).Code)
}

func TestPipeline_BlockShortCircuits(t *testing.T) {
	h := newHarness(t)
	router := h.router()
	ip := "198.51.100.6"

	_, err := h.store.Block(context.Background(), models.IPSubject(ip), "abuse", 10*time.Minute)
	require.NoError(t, err)

	rec := serve(router, request(http.MethodGet, ip, "user-1"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("Retry-After"))
	assert.Empty(t, rec.Header().Get(ratelimit.HeaderLimit))

	body := decodeError(t, rec)
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, "Rate limit exceeded", body["message"])
	assert.NotContains(t, body, "code")

	assert.Zero(t, h.limiter.calls.Load())
	assert.Zero(t, h.authCalls.Load())
	assert.Zero(t, h.suspChecks.calls.Load())
	assert.Equal(t, []string{OutcomeBlocked}, h.recorder.outcomes)
}

func TestPipeline_AuthFailureIsReported(t *testing.T) {
	h := newHarness(t)
	router := h.router()

	rec := serve(router, request(http.MethodGet, "198.51.100.7", ""))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, map[string]any{"error": "Unauthorized"}, decodeError(t, rec))
	assert.Equal(t, []string{"/items/{id}"}, h.sink.endpoints)
	assert.Zero(t, h.suspChecks.calls.Load())
}

func TestPipeline_SuspensionAfterAuth(t *testing.T) {
	h := newHarness(t)
	router := h.router()

	_, err := h.suspensions.Suspend(context.Background(),
		models.SuspendRequest{UserID: "user-9", Reason: "Payment dispute"}, "admin")
	require.NoError(t, err)

	rec := serve(router, request(http.MethodGet, "198.51.100.8", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "failed auth wins over suspension")

	rec = serve(router, request(http.MethodGet, "198.51.100.8", "user-9"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, map[string]any{"error": "Forbidden", "message": "Payment dispute"}, decodeError(t, rec))
}

func TestPipeline_UnknownIPBypass(t *testing.T) {
	h := newHarness(t)
	router := h.router()

	_, err := h.suspensions.Suspend(context.Background(),
		models.SuspendRequest{UserID: "user-2", Reason: "tos"}, "admin")
	require.NoError(t, err)

	rec := serve(router, request(http.MethodGet, "", "user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(ratelimit.HeaderLimit))

	rec = serve(router, request(http.MethodGet, "", "user-2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, request(http.MethodGet, "", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.sink.endpoints, "unknown callers are not attributed")

	assert.Zero(t, h.blocks.calls.Load())
	assert.Zero(t, h.limiter.calls.Load())
	assert.Equal(t, int32(3), h.authCalls.Load())
	assert.Equal(t, int32(2), h.suspChecks.calls.Load())
}

func TestPipeline_WithoutRateLimitStillBlocks(t *testing.T) {
	h := newHarness(t)
	router := h.router(WithoutRateLimit())

	for i := 0; i < 25; i++ {
		rec := serve(router, request(http.MethodPost, "198.51.100.9", "u"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get(ratelimit.HeaderLimit))
	}
	assert.Zero(t, h.limiter.calls.Load())

	_, err := h.store.Block(context.Background(), models.IPSubject("198.51.100.9"), "abuse", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, request(http.MethodPost, "198.51.100.9", "u")).Code)
}

func TestPipeline_RateLimitingDisabledGlobally(t *testing.T) {
	h := newHarness(t, WithRateLimiting(false))
	router := h.router(WithRateLimit(ratelimit.Config{Window: time.Minute, MaxRequests: 1}))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, serve(router, request(http.MethodPost, "198.51.100.10", "u")).Code)
	}
	assert.Zero(t, h.limiter.calls.Load())
}

type failingBlocks struct{}

func (failingBlocks) IsBlocked(context.Context, models.Subject) (*models.BlockRecord, error) {
	return nil, errors.New("redis: connection refused")
}

type failingSuspensions struct{}

func (failingSuspensions) Check(context.Context, string) (suspension.Status, error) {
	return suspension.Status{}, errors.New("database is locked")
}

func TestPipeline_FailsOpen(t *testing.T) {
	h := newHarness(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(
		clientip.NewResolver(models.ClientIPConfig{TrustProxyHeaders: true}),
		failingBlocks{},
		h.limiter,
		auth.NewGate(auth.ProviderFunc(func(*http.Request) (*models.AuthenticatedContext, error) {
			return &models.AuthenticatedContext{User: &models.User{ID: "u"}}, nil
		}), nil),
		failingSuspensions{},
		WithLogger(logger),
	)

	rec := serve(p.Wrap(okHandler), request(http.MethodGet, "198.51.100.11", "u"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPipeline_ContractErrors(t *testing.T) {
	tests := []struct {
		name string
		opts []RouteOption
	}{
		{"invalid rate limit", []RouteOption{WithRateLimit(ratelimit.Config{Window: 0, MaxRequests: 5})}},
		{"empty scope", []RouteOption{WithScope("")}},
		{"negative cache", []RouteOption{WithCache(-time.Second, 0)}},
		{"params failure", []RouteOption{WithParams(func(*http.Request) (map[string]string, error) {
			return nil, errors.New("no route match")
		})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			called := false
			handler := h.pipeline.Wrap(func(http.ResponseWriter, *http.Request, *models.AuthenticatedContext, map[string]string) {
				called = true
			}, tt.opts...)

			rec := serve(handler, request(http.MethodGet, "198.51.100.12", "u"))
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "Internal Server Error", decodeError(t, rec)["error"])
			assert.False(t, called)
			assert.Contains(t, h.recorder.outcomes, OutcomeError)
		})
	}
}

func TestPipeline_SubMillisecondPolicyIsInternalError(t *testing.T) {
	tiny := ratelimit.Config{Window: 500 * time.Microsecond, MaxRequests: 10}
	h := newHarness(t, WithPolicy(ratelimit.Policy{Read: tiny, Mutate: tiny}))
	router := h.router()

	var rec *httptest.ResponseRecorder
	require.NotPanics(t, func() {
		rec = serve(router, request(http.MethodGet, "198.51.100.13", "u"))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, h.recorder.outcomes, OutcomeError)
	assert.Zero(t, h.authCalls.Load())
}

func TestPipeline_ParamsWithoutRouter(t *testing.T) {
	h := newHarness(t)
	var got map[string]string
	handler := h.pipeline.Wrap(func(_ http.ResponseWriter, _ *http.Request, _ *models.AuthenticatedContext, params map[string]string) {
		got = params
	})

	serve(handler, request(http.MethodGet, "198.51.100.13", "u"))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
