package capture

import (
	"encoding/json"
	"net/http"

	"github.com/splax/terror/internal/domain"
)

// ErrorIDHeader carries the record identifier alongside the body.
const ErrorIDHeader = "X-Error-Id"

// Response is the client-visible error body. It never carries the request
// snapshot or the capture timestamp.
type Response struct {
	Msg     string   `json:"msg"`
	Type    string   `json:"type"`
	Details []string `json:"details"`
	ErrorID string   `json:"errorId"`
}

// NewResponse derives the client body from rec.
func NewResponse(rec domain.ErrorRecord) Response {
	details := rec.Response.Details
	if details == nil {
		details = []string{}
	}
	return Response{
		Msg:     rec.Response.Msg,
		Type:    rec.Response.Type,
		Details: details,
		ErrorID: rec.ID.String(),
	}
}

// WriteResponse writes body with status and flushes it to the transport when
// the writer supports flushing.
func WriteResponse(w http.ResponseWriter, status int, body Response) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ErrorIDHeader, body.ErrorID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
