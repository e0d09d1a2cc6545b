// Package admission wraps protected route handlers in the ordered gates every
// request must pass: IP resolution, block check, rate limit, authentication
// and suspension. Each gate short-circuits the ones after it. Infrastructure
// failures in the block and suspension gates fail open; the rate limiter does
// the same internally.
package admission

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/ratelimit"
	"gatekeeper/internal/suspension"

	"github.com/gorilla/mux"
)

// HandlerFunc is a route handler that only runs for admitted requests.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, auth *models.AuthenticatedContext, params map[string]string)

type IPResolver interface {
	Resolve(r *http.Request) string
}

type BlockChecker interface {
	IsBlocked(ctx context.Context, subject models.Subject) (*models.BlockRecord, error)
}

type RateChecker interface {
	Check(ctx context.Context, key ratelimit.Key, cfg ratelimit.Config) (ratelimit.Decision, error)
}

type Authenticator interface {
	Authenticate(r *http.Request, ip, endpoint string) (*models.AuthenticatedContext, error)
}

type SuspensionChecker interface {
	Check(ctx context.Context, userID string) (suspension.Status, error)
}

// Recorder counts admission outcomes. observability.AdmissionMetrics implements it.
type Recorder interface {
	RecordDecision(ctx context.Context, outcome string)
}

// Outcomes passed to Recorder.
const (
	OutcomeAdmitted        = "admitted"
	OutcomeBlocked         = "blocked"
	OutcomeRateLimited     = "rate_limited"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeSuspended       = "suspended"
	OutcomeError           = "error"
)

type Pipeline struct {
	ips         IPResolver
	blocks      BlockChecker
	limiter     RateChecker
	auth        Authenticator
	suspensions SuspensionChecker

	policy      ratelimit.Policy
	rateLimited bool
	recorder    Recorder
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Pipeline)

// WithPolicy sets the method-aware default budgets.
func WithPolicy(policy ratelimit.Policy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

// WithRateLimiting turns rate limiting on or off for every route.
func WithRateLimiting(enabled bool) Option {
	return func(p *Pipeline) {
		p.rateLimited = enabled
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func New(ips IPResolver, blocks BlockChecker, limiter RateChecker, auth Authenticator, suspensions SuspensionChecker, opts ...Option) *Pipeline {
	p := &Pipeline{
		ips:         ips,
		blocks:      blocks,
		limiter:     limiter,
		auth:        auth,
		suspensions: suspensions,
		policy:      ratelimit.DefaultPolicy(),
		rateLimited: true,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wrap returns h guarded by the pipeline. Invalid route options are reported
// per request as 500, so a misconfigured route cannot take the process down.
func (p *Pipeline) Wrap(h HandlerFunc, opts ...RouteOption) http.Handler {
	rt := newRoute(opts)
	configErr := errors.Join(rt.configErrs...)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if configErr != nil {
			p.logger.Error("Invalid admission route config", "path", r.URL.Path, "error", configErr)
			p.record(ctx, OutcomeError)
			writeInternal(w)
			return
		}

		ip := p.ips.Resolve(r)
		endpoint := endpointOf(r)

		if ip != models.UnknownIP {
			subject := models.IPSubject(ip)

			if rec := p.checkBlock(ctx, subject); rec != nil {
				p.logger.Info("Request rejected: blocked", "ip", ip, "path", r.URL.Path, "reason", rec.Reason, "level", rec.Level)
				p.record(ctx, OutcomeBlocked)
				writeBlocked(w, rec.RetryAfterSeconds(p.now()))
				return
			}

			if cfg, ok := p.limitFor(rt, r.Method); ok {
				key := ratelimit.Key{Subject: subject, Class: models.ClassifyMethod(r.Method), Scope: rt.scope}
				decision, err := p.limiter.Check(ctx, key, cfg)
				if err != nil {
					p.logger.Error("Rate limit check rejected config", "path", r.URL.Path, "error", err)
					p.record(ctx, OutcomeError)
					writeInternal(w)
					return
				}
				ratelimit.SetHeaders(w.Header(), decision)
				if !decision.Allowed {
					p.logger.Info("Request rejected: rate limited", "ip", ip, "path", r.URL.Path, "reason", key.String())
					p.record(ctx, OutcomeRateLimited)
					writeRateLimited(w)
					return
				}
			}
		}

		authCtx, err := p.auth.Authenticate(r, ip, endpoint)
		if err != nil {
			p.logger.Info("Request rejected: unauthenticated", "ip", ip, "path", r.URL.Path, "reason", err.Error())
			p.record(ctx, OutcomeUnauthenticated)
			writeUnauthorized(w)
			return
		}

		status, err := p.suspensions.Check(ctx, authCtx.User.ID)
		if err != nil {
			p.logger.Warn("Suspension check failed; allowing request", "user_id", authCtx.User.ID, "error", err)
		} else if status.Suspended {
			p.logger.Info("Request rejected: suspended", "ip", ip, "path", r.URL.Path, "reason", status.Reason, "user_id", authCtx.User.ID)
			p.record(ctx, OutcomeSuspended)
			writeSuspended(w, status.Reason)
			return
		}

		params, err := rt.params(r)
		if err != nil {
			p.logger.Error("Failed to resolve route params", "path", r.URL.Path, "error", err)
			p.record(ctx, OutcomeError)
			writeInternal(w)
			return
		}

		p.record(ctx, OutcomeAdmitted)
		h(newComposingWriter(w, r.Method, rt.cache), r, authCtx, params)
	})
}

func (p *Pipeline) checkBlock(ctx context.Context, subject models.Subject) *models.BlockRecord {
	rec, err := p.blocks.IsBlocked(ctx, subject)
	if err != nil {
		p.logger.Warn("Block check failed; allowing request", "subject", subject.String(), "error", err)
		return nil
	}
	return rec
}

// limitFor resolves the budget for a request: the route's explicit config,
// else the method-aware default. ok is false when limiting is off.
func (p *Pipeline) limitFor(rt *route, method string) (ratelimit.Config, bool) {
	if !p.rateLimited || rt.noLimit {
		return ratelimit.Config{}, false
	}
	if rt.rateLimit != nil {
		return *rt.rateLimit, true
	}
	return p.policy.For(models.ClassifyMethod(method)), true
}

func (p *Pipeline) record(ctx context.Context, outcome string) {
	if p.recorder != nil {
		p.recorder.RecordDecision(ctx, outcome)
	}
}

// endpointOf names the route for failure counting. Templated paths keep
// /blocks/1.2.3.4 and /blocks/5.6.7.8 under one counter.
func endpointOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
