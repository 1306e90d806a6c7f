package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/splax/terror/internal/classify"
	"github.com/splax/terror/internal/domain"
	"github.com/splax/terror/internal/repository"
)

const (
	defaultPersistTimeout = 10 * time.Second
	defaultMaxInFlight    = 64
)

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("capture: dispatcher closed")

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPersistTimeout bounds each write. Default: 10s.
func WithPersistTimeout(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxInFlight bounds concurrent writes. Default: 64.
func WithMaxInFlight(n int) DispatcherOption {
	return func(p *Dispatcher) {
		if n > 0 {
			p.maxInFlight = int64(n)
		}
	}
}

// WithDispatcherMetrics reports persistence outcomes to m.
func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(p *Dispatcher) { p.metrics = m }
}

// Dispatcher writes error records in the background, one detached goroutine per
// record. Writes are unordered, may overlap, and are never retried. Failures are
// logged and counted, never returned.
type Dispatcher struct {
	repo        repository.ErrorRecordRepository
	logger      *slog.Logger
	metrics     *Metrics
	timeout     time.Duration
	maxInFlight int64
	sem         *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher writing to repo.
func NewDispatcher(repo repository.ErrorRecordRepository, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		repo:        repo,
		logger:      logger,
		timeout:     defaultPersistTimeout,
		maxInFlight: defaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = semaphore.NewWeighted(d.maxInFlight)
	return d
}

// Dispatch schedules rec for persistence and returns immediately.
func (d *Dispatcher) Dispatch(rec domain.ErrorRecord) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("dispatcher closed, dropping error record", "error_id", rec.ID.String())
		d.metrics.recordPersist(outcomeDropped, 0)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.persist(rec)
	}()
}

func (d *Dispatcher) persist(rec domain.ErrorRecord) {
	start := time.Now()
	errorID := rec.ID.String()
	defer func() {
		if v := recover(); v != nil {
			d.logger.Error("error record persistence panicked", "error_id", errorID, "error", classify.NewPanicError(v))
			d.metrics.recordPersist(outcomePanic, time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		d.logger.Error("error record persistence saturated", "error_id", errorID, "error", err)
		d.metrics.recordPersist(outcomeDropped, time.Since(start))
		return
	}
	defer d.sem.Release(1)

	if d.repo == nil {
		d.logger.Error("error record persistence unavailable", "error_id", errorID, "error", repository.ErrStore)
		d.metrics.recordPersist(outcomeFailed, time.Since(start))
		return
	}
	if err := d.repo.InsertErrorRecord(ctx, rec); err != nil {
		d.logger.Error("failed to persist error record", "error_id", errorID, "type", rec.Response.Type, "error", err)
		d.metrics.recordPersist(outcomeFailed, time.Since(start))
		return
	}
	d.logger.Debug("error record persisted", "error_id", errorID, "duration_ms", time.Since(start).Milliseconds())
	d.metrics.recordPersist(outcomeStored, time.Since(start))
}

// Close stops accepting records and waits for in-flight writes or ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain error records: %w", ctx.Err())
	}
}
