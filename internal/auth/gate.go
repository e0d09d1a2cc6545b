package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"gatekeeper/internal/models"
)

// FailureSink receives failed attempts. block.FailureReporter implements it.
type FailureSink interface {
	Report(subject models.Subject, endpoint string) bool
}

// Gate authenticates requests for the admission pipeline.
type Gate struct {
	provider Provider
	failures FailureSink
	logger   *slog.Logger
}

type GateOption func(*Gate)

func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// NewGate wraps provider. failures may be nil, in which case nothing is reported.
func NewGate(provider Provider, failures FailureSink, opts ...GateOption) *Gate {
	g := &Gate{
		provider: provider,
		failures: failures,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate asks the provider for the caller. Rejected or missing
// credentials are reported against ip for endpoint; provider outages are not,
// since the caller did nothing wrong.
func (g *Gate) Authenticate(r *http.Request, ip, endpoint string) (*models.AuthenticatedContext, error) {
	authCtx, err := g.provider.Authenticate(r)
	if err == nil && (authCtx == nil || authCtx.User == nil) {
		err = ErrUnauthenticated
	}
	if err == nil {
		return authCtx, nil
	}

	if !errors.Is(err, ErrUnauthenticated) && !errors.Is(err, ErrNoToken) {
		g.logger.Warn("Auth provider error", "ip", ip, "path", endpoint, "error", err)
		return nil, err
	}

	subject := models.IPSubject(ip)
	if g.failures != nil && subject.Attributable() {
		g.failures.Report(subject, endpoint)
	}
	return nil, err
}
