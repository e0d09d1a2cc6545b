package observability

import (
	"context"
	"errors"
	"time"

	"gatekeeper/internal/models"
	"gatekeeper/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage with a span, a latency
// histogram sample and, on failure, an error count per call.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer("gatekeeper/storage")
	meter := otel.Meter("gatekeeper/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

// record ends the span. ErrNotFound is an expected answer, not a failure.
func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) ActiveSuspension(ctx context.Context, userID string, now time.Time) (*models.SuspensionRecord, error) {
	ctx, span := s.startSpan(ctx, "ActiveSuspension", attribute.String("user_id", userID))
	start := time.Now()
	result, err := s.inner.ActiveSuspension(ctx, userID, now)
	s.record(ctx, span, "ActiveSuspension", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveSuspension(ctx context.Context, rec *models.SuspensionRecord) error {
	ctx, span := s.startSpan(ctx, "SaveSuspension",
		attribute.String("user_id", rec.UserID),
		attribute.String("suspension_id", rec.ID),
	)
	start := time.Now()
	err := s.inner.SaveSuspension(ctx, rec)
	s.record(ctx, span, "SaveSuspension", start, err)
	return err
}

func (s *InstrumentedStorage) LiftSuspension(ctx context.Context, userID string, liftedAt time.Time) (int, error) {
	ctx, span := s.startSpan(ctx, "LiftSuspension", attribute.String("user_id", userID))
	start := time.Now()
	n, err := s.inner.LiftSuspension(ctx, userID, liftedAt)
	s.record(ctx, span, "LiftSuspension", start, err)
	return n, err
}

func (s *InstrumentedStorage) Suspensions(ctx context.Context, userID string) ([]*models.SuspensionRecord, error) {
	ctx, span := s.startSpan(ctx, "Suspensions", attribute.String("user_id", userID))
	start := time.Now()
	result, err := s.inner.Suspensions(ctx, userID)
	s.record(ctx, span, "Suspensions", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
