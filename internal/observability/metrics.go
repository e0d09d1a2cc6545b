package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsServer serves Prometheus metrics on their own port, away from the
// admission-controlled API.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(port int, path string, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()

	if provider != nil && provider.promExporter != nil {
		mux.Handle(path, promhttp.Handler())
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start blocks serving metrics. It returns http.ErrServerClosed after Shutdown.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// AdmissionMetrics counts pipeline outcomes by gate.
type AdmissionMetrics struct {
	decisions metric.Int64Counter
}

func NewAdmissionMetrics(meter metric.Meter) (*AdmissionMetrics, error) {
	decisions, err := meter.Int64Counter(
		"admission.decisions",
		metric.WithDescription("Admission pipeline outcomes"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}
	return &AdmissionMetrics{decisions: decisions}, nil
}

// RecordDecision adds one pipeline outcome, such as "admitted" or "blocked".
func (m *AdmissionMetrics) RecordDecision(ctx context.Context, outcome string) {
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
