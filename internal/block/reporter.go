package block

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gatekeeper/internal/models"

	"golang.org/x/time/rate"
)

// FailureRecorder is the part of Store the reporter drives.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, subject models.Subject, endpoint string) (*models.BlockRecord, error)
}

type failure struct {
	subject  models.Subject
	endpoint string
}

// FailureReporter records authentication failures off the request path. The
// 401 is written without waiting for the backend. Reports beyond the queue
// size or the admission rate are dropped and logged, so a credential-stuffing
// burst cannot pile up goroutines or backend load.
type FailureReporter struct {
	recorder FailureRecorder
	queue    chan failure
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type ReporterConfig struct {
	QueueSize int
	// PerSecond bounds how many reports are accepted per second.
	PerSecond float64
	// Timeout bounds each backend write.
	Timeout time.Duration
	Logger  *slog.Logger
}

func ReporterConfigFrom(cfg models.BlockingConfig, timeout time.Duration, logger *slog.Logger) ReporterConfig {
	return ReporterConfig{
		QueueSize: cfg.ReporterQueue,
		PerSecond: cfg.ReporterRate,
		Timeout:   timeout,
		Logger:    logger,
	}
}

// NewFailureReporter starts the worker goroutine. Close stops it.
func NewFailureReporter(recorder FailureRecorder, cfg ReporterConfig) *FailureReporter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	burst := int(cfg.PerSecond)
	if burst < 1 {
		burst = 1
	}

	r := &FailureReporter{
		recorder: recorder,
		queue:    make(chan failure, cfg.QueueSize),
		limiter:  rate.NewLimiter(rate.Limit(cfg.PerSecond), burst),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}

	r.wg.Add(1)
	go r.run()
	return r
}

// Report enqueues a failure and returns immediately. It reports false when
// the failure was dropped.
func (r *FailureReporter) Report(subject models.Subject, endpoint string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}

	if !r.limiter.Allow() {
		r.logger.Warn("Dropping auth failure report: rate exceeded", "subject", subject.String(), "endpoint", endpoint)
		return false
	}

	select {
	case r.queue <- failure{subject: subject, endpoint: endpoint}:
		return true
	default:
		r.logger.Warn("Dropping auth failure report: queue full", "subject", subject.String(), "endpoint", endpoint)
		return false
	}
}

// Close stops accepting reports and waits for queued ones to be recorded.
func (r *FailureReporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *FailureReporter) run() {
	defer r.wg.Done()

	for f := range r.queue {
		// Detached from the request: the response has usually been written
		// by the time this runs.
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		_, err := r.recorder.RecordFailure(ctx, f.subject, f.endpoint)
		cancel()

		if err != nil {
			r.logger.Warn("Failed to record auth failure; no block created",
				"subject", f.subject.String(),
				"endpoint", f.endpoint,
				"error", err,
			)
		}
	}
}
