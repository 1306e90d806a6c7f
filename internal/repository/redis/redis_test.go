package redis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/splax/terror/internal/domain"
)

func TestStreamName(t *testing.T) {
	if got := StreamName(""); got != "terror:errors" {
		t.Fatalf("unexpected default stream %q", got)
	}
	if got := StreamName(" audit "); got != "audit:errors" {
		t.Fatalf("unexpected stream %q", got)
	}
}

func TestStreamValues(t *testing.T) {
	id := uuid.New()
	created := time.Date(2025, time.June, 1, 8, 30, 0, 0, time.UTC)
	rec := domain.ErrorRecord{
		ID:        id,
		CreatedAt: created,
		Request:   domain.RequestSnapshot{Method: "POST", Path: "/orders"},
		Response:  domain.ErrorResponse{Msg: "An unknown error occurred.", Type: "StoreError.PgError", Details: []string{"a", "b"}},
	}
	values, err := streamValues(rec)
	if err != nil {
		t.Fatalf("streamValues: %v", err)
	}
	if values["_id"] != id.String() {
		t.Fatalf("unexpected _id %v", values["_id"])
	}
	if values["created_at"] != "2025-06-01T08:30:00Z" {
		t.Fatalf("unexpected created_at %v", values["created_at"])
	}
	var doc domain.ErrorDocument
	if err := json.Unmarshal([]byte(values["document"].(string)), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Request.Path != "/orders" || len(doc.Response.Details) != 2 {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestXAddArgsKeyedByRecordID(t *testing.T) {
	repo := New(nil, "audit")
	id := uuid.New()
	args, err := repo.xaddArgs(domain.ErrorRecord{ID: id, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("xaddArgs: %v", err)
	}
	if args.Stream != "audit:errors" || args.ID != "*" {
		t.Fatalf("unexpected stream %q id %q", args.Stream, args.ID)
	}
	values := args.Values.(map[string]any)
	if values["_id"] != id.String() {
		t.Fatalf("expected record id in entry, got %v", values["_id"])
	}
}
