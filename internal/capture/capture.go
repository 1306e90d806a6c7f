// Package capture turns a failed request into a client response and a
// background-persisted error record.
//
// Handle classifies the failure, snapshots the request, assembles the record,
// writes the response, and only then hands the record to the Dispatcher. The
// response never waits on persistence and persistence failures never reach the
// caller.
package capture

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/splax/terror/internal/classify"
	"github.com/splax/terror/internal/domain"
	"github.com/splax/terror/internal/snapshot"
)

// Scheduler accepts records for deferred persistence without blocking.
type Scheduler interface {
	Dispatch(rec domain.ErrorRecord)
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithMetrics reports captures to m.
func WithMetrics(m *Metrics) Option {
	return func(c *Capturer) { c.metrics = m }
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Capturer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator overrides record identifier generation.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(c *Capturer) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// Capturer runs the capture pipeline. It holds no mutable state and is safe
// for concurrent use.
type Capturer struct {
	registry  *classify.Registry
	scheduler Scheduler
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time
	newID     func() uuid.UUID
}

// New constructs a Capturer. A nil registry uses classify.Default.
func New(registry *classify.Registry, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Capturer {
	if registry == nil {
		registry = classify.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Capturer{
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
		newID:     newRecordID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newRecordID prefers time-ordered v7 identifiers.
func newRecordID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Capture classifies err against req and builds its record.
func (c *Capturer) Capture(req *http.Request, err error) (int, domain.ErrorRecord) {
	class, rec := c.capture(req, err)
	return class.Status, rec
}

func (c *Capturer) capture(req *http.Request, err error) (classify.Classification, domain.ErrorRecord) {
	class := c.registry.Classify(err)
	desc := classify.Describe(err)
	rec := domain.ErrorRecord{
		ID:        c.newID(),
		CreatedAt: c.now().UTC(),
		Request:   snapshot.FromRequest(req),
		Response: domain.ErrorResponse{
			Msg:     desc.Message,
			Type:    class.Label(),
			Details: desc.Lines(),
		},
	}
	return class, rec
}

// Handle captures err, writes the error response to w and then schedules the
// record for persistence. It returns the body that was sent.
func (c *Capturer) Handle(w http.ResponseWriter, req *http.Request, err error) Response {
	class, rec := c.capture(req, err)
	status := class.Status
	body := NewResponse(rec)

	c.metrics.recordCapture(class.Category, status)
	fields := []any{
		"error_id", body.ErrorID,
		"type", body.Type,
		"status", status,
		"error", err,
	}
	if req != nil {
		fields = append(fields, "method", req.Method, "path", rec.Request.Path)
	}
	c.logger.Error("request failed", fields...)

	if writeErr := WriteResponse(w, status, body); writeErr != nil {
		c.logger.Warn("failed to write error response", "error_id", body.ErrorID, "error", writeErr)
	}
	if c.scheduler != nil {
		c.scheduler.Dispatch(rec)
	}
	return body
}

// Record captures err and schedules its record without writing a response. Use
// it when the handler already started its reply.
func (c *Capturer) Record(req *http.Request, err error) domain.ErrorRecord {
	class, rec := c.capture(req, err)
	c.metrics.recordCapture(class.Category, class.Status)
	c.logger.Error("request failed after response started",
		"error_id", rec.ID.String(),
		"type", rec.Response.Type,
		"error", err,
	)
	if c.scheduler != nil {
		c.scheduler.Dispatch(rec)
	}
	return rec
}
