package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestSnapshot is the text-safe copy of an inbound request's metadata.
type RequestSnapshot struct {
	Headers     map[string]string `json:"headers"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	PathParams  map[string]string `json:"path_params"`
	QueryString string            `json:"query_string"`
	QueryParams map[string]string `json:"query_params"`
}

// ErrorResponse is the classified description of a failure.
type ErrorResponse struct {
	Msg     string   `json:"msg"`
	Type    string   `json:"type"`
	Details []string `json:"details"`
}

// ErrorRecord describes one captured failure.
type ErrorRecord struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Request   RequestSnapshot
	Response  ErrorResponse
}

// ErrorDocument is the persisted layout of an ErrorRecord. The response fields
// appear both nested and at the top level.
type ErrorDocument struct {
	ID        string          `json:"_id"`
	CreatedAt time.Time       `json:"created_at"`
	Request   RequestSnapshot `json:"request"`
	Response  ErrorResponse   `json:"response"`
	Msg       string          `json:"msg"`
	Type      string          `json:"type"`
	Details   []string        `json:"details"`
	ErrorID   string          `json:"error_id"`
}

// Document renders the record in its stored form.
func (r ErrorRecord) Document() ErrorDocument {
	id := r.ID.String()
	return ErrorDocument{
		ID:        id,
		CreatedAt: r.CreatedAt.UTC(),
		Request:   r.Request,
		Response:  r.Response,
		Msg:       r.Response.Msg,
		Type:      r.Response.Type,
		Details:   r.Response.Details,
		ErrorID:   id,
	}
}
