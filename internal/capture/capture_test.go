package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/splax/terror/internal/classify"
	"github.com/splax/terror/internal/domain"
	"github.com/splax/terror/internal/repository"
	"github.com/splax/terror/internal/snapshot"
)

type recordingRepository struct {
	mu      sync.Mutex
	records []domain.ErrorRecord
	err     error
}

func (r *recordingRepository) InsertErrorRecord(ctx context.Context, rec domain.ErrorRecord) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingRepository) snapshot() []domain.ErrorRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ErrorRecord(nil), r.records...)
}

type schedulerFunc func(rec domain.ErrorRecord)

func (f schedulerFunc) Dispatch(rec domain.ErrorRecord) { f(rec) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("close dispatcher: %v", err)
	}
}

func TestHandleUnknownFailure(t *testing.T) {
	repo := &recordingRepository{}
	dispatcher := NewDispatcher(repo, discardLogger())
	capturer := New(classify.Default(), dispatcher, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/reports?year=2025", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	body := capturer.Handle(rec, req, errors.New("nil map write"))
	closeDispatcher(t, dispatcher)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Header().Get(ErrorIDHeader) != body.ErrorID {
		t.Fatalf("error id header mismatch")
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload) != 4 {
		t.Fatalf("expected exactly msg/type/details/errorId, got %v", payload)
	}
	for _, key := range []string{"request", "created_at", "createdAt"} {
		if _, ok := payload[key]; ok {
			t.Fatalf("response leaked %q", key)
		}
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("Bearer secret")) {
		t.Fatal("response leaked request headers")
	}
	if payload["msg"] != classify.FallbackMessage {
		t.Fatalf("unexpected msg %v", payload["msg"])
	}
	if payload["type"] != "Error.errorString" {
		t.Fatalf("unexpected type %v", payload["type"])
	}
	details, ok := payload["details"].([]any)
	if !ok || len(details) < 2 || details[0] != "errorString: nil map write" {
		t.Fatalf("unexpected details %v", payload["details"])
	}

	stored := repo.snapshot()
	if len(stored) != 1 {
		t.Fatalf("expected one persisted record, got %d", len(stored))
	}
	if stored[0].ID.String() != body.ErrorID {
		t.Fatalf("persisted id %s does not match response id %s", stored[0].ID, body.ErrorID)
	}
	if stored[0].Request.QueryParams["year"] != "2025" {
		t.Fatalf("expected request snapshot persisted, got %+v", stored[0].Request)
	}
	if stored[0].CreatedAt.Location() != time.UTC {
		t.Fatal("expected UTC capture timestamp")
	}
}

func TestHandleRespondsBeforeDispatch(t *testing.T) {
	rec := httptest.NewRecorder()
	var dispatched bool
	scheduler := schedulerFunc(func(r domain.ErrorRecord) {
		dispatched = true
		if rec.Code != http.StatusInternalServerError || !rec.Flushed || rec.Body.Len() == 0 {
			t.Fatalf("record dispatched before the response was written")
		}
	})
	capturer := New(nil, scheduler, discardLogger())
	capturer.Handle(rec, httptest.NewRequest(http.MethodDelete, "/items/1", nil), errors.New("boom"))
	if !dispatched {
		t.Fatal("expected record to be dispatched")
	}
}

type headerError struct{ value string }

func (e *headerError) Error() string { return "bad header " + e.value }

func TestHandleTypedNilError(t *testing.T) {
	var typed *headerError
	var dispatched []domain.ErrorRecord
	capturer := New(nil, schedulerFunc(func(r domain.ErrorRecord) { dispatched = append(dispatched, r) }), discardLogger())
	rec := httptest.NewRecorder()
	body := capturer.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), typed)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body.Msg != classify.FallbackMessage || body.Type != "Error.headerError" {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(body.Details) == 0 || body.Details[0] != "headerError: <nil>" {
		t.Fatalf("unexpected details %v", body.Details)
	}
	if len(dispatched) != 1 {
		t.Fatalf("expected one dispatched record, got %d", len(dispatched))
	}
}

func TestHandleUsesDescription(t *testing.T) {
	capturer := New(nil, nil, discardLogger())
	rec := httptest.NewRecorder()
	body := capturer.Handle(rec, httptest.NewRequest(http.MethodPost, "/users", nil), classify.Invalid("email", "must not be empty"))

	if body.Msg != "invalid email: must not be empty" {
		t.Fatalf("unexpected msg %q", body.Msg)
	}
	if body.Type != "ValidationError.ValidationError" {
		t.Fatalf("unexpected type %q", body.Type)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected uniform 500, got %d", rec.Code)
	}
}

func TestHandleStoreUnreachable(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	repo := &recordingRepository{err: repository.ErrStore}
	dispatcher := NewDispatcher(repo, discardLogger(), WithDispatcherMetrics(metrics))
	capturer := New(nil, dispatcher, discardLogger(), WithMetrics(metrics))

	rec := httptest.NewRecorder()
	body := capturer.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("boom"))
	closeDispatcher(t, dispatcher)

	if rec.Code != http.StatusInternalServerError || body.ErrorID == "" {
		t.Fatalf("expected a normal error response, got %d %+v", rec.Code, body)
	}
	if got := testutil.ToFloat64(metrics.persisted.WithLabelValues(outcomeFailed)); got != 1 {
		t.Fatalf("expected one failed persist, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.captured.WithLabelValues("Error", "500")); got != 1 {
		t.Fatalf("expected one capture, got %v", got)
	}
}

func TestHandleBinaryHeader(t *testing.T) {
	repo := &recordingRepository{}
	dispatcher := NewDispatcher(repo, discardLogger())
	capturer := New(nil, dispatcher, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace", "id\xff")
	rec := httptest.NewRecorder()
	capturer.Handle(rec, req, errors.New("boom"))
	closeDispatcher(t, dispatcher)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	stored := repo.snapshot()
	if len(stored) != 1 {
		t.Fatalf("expected one record, got %d", len(stored))
	}
	raw, err := snapshot.Encode(stored[0].Request.Headers["X-Trace"])
	if err != nil {
		t.Fatalf("encode header: %v", err)
	}
	if !bytes.Equal(raw, []byte("id\xff")) {
		t.Fatalf("header bytes not preserved: %v", raw)
	}
}

func TestHandleConcurrentCapturesUniqueIDs(t *testing.T) {
	const n = 100
	repo := &recordingRepository{}
	dispatcher := NewDispatcher(repo, discardLogger(), WithMaxInFlight(8))
	capturer := New(nil, dispatcher, discardLogger())

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := capturer.Handle(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), errors.New("boom"))
			ids <- body.ErrorID
		}()
	}
	wg.Wait()
	close(ids)
	closeDispatcher(t, dispatcher)

	seen := make(map[string]struct{}, n)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate error id %s", id)
		}
		seen[id] = struct{}{}
	}
	stored := repo.snapshot()
	if len(stored) != n {
		t.Fatalf("expected %d persisted records, got %d", n, len(stored))
	}
	for _, rec := range stored {
		if _, ok := seen[rec.ID.String()]; !ok {
			t.Fatalf("persisted record %s was never returned", rec.ID)
		}
		delete(seen, rec.ID.String())
	}
}

func TestCaptureUsesInjectedClockAndID(t *testing.T) {
	fixed := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	id := uuid.MustParse("6f1c2b9a-0000-4000-8000-000000000001")
	capturer := New(nil, nil, discardLogger(),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() uuid.UUID { return id }),
	)
	status, rec := capturer.Capture(nil, nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", status)
	}
	if rec.ID != id || !rec.CreatedAt.Equal(fixed) || rec.CreatedAt.Location() != time.UTC {
		t.Fatalf("unexpected record identity %s %s", rec.ID, rec.CreatedAt)
	}
	if rec.Response.Type != "Error.Error" {
		t.Fatalf("unexpected type %q", rec.Response.Type)
	}
}

func TestRecordSchedulesWithoutWriting(t *testing.T) {
	var got []domain.ErrorRecord
	capturer := New(nil, schedulerFunc(func(r domain.ErrorRecord) { got = append(got, r) }), discardLogger())
	rec := capturer.Record(httptest.NewRequest(http.MethodGet, "/stream", nil), errors.New("client went away"))
	if len(got) != 1 || got[0].ID != rec.ID {
		t.Fatalf("expected the record to be scheduled once, got %d", len(got))
	}
}
