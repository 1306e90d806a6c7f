package httpx

import (
	"net/http"

	"github.com/splax/terror/internal/capture"
	"github.com/splax/terror/internal/classify"
)

// HandlerFunc is an HTTP handler that may fail. A returned error is captured.
type HandlerFunc func(w http.ResponseWriter, req *http.Request) error

// ErrorHandler adapts h so returned errors and panics go through the capture
// pipeline.
func ErrorHandler(c *capture.Capturer, h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sr := trackWriter(w)
		defer recoverInto(c, sr, req)
		if err := h(sr, req); err != nil {
			fail(c, sr, req, err)
		}
	})
}

// Recover captures panics raised by next.
func Recover(c *capture.Capturer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sr := trackWriter(w)
		defer recoverInto(c, sr, req)
		next.ServeHTTP(sr, req)
	})
}

func recoverInto(c *capture.Capturer, sr *statusRecorder, req *http.Request) {
	v := recover()
	if v == nil {
		return
	}
	if v == http.ErrAbortHandler {
		panic(v)
	}
	fail(c, sr, req, classify.NewPanicError(v))
}

// fail responds through the capturer unless the handler already started its
// reply, in which case the failure is only recorded.
func fail(c *capture.Capturer, sr *statusRecorder, req *http.Request, err error) {
	if sr.status != 0 {
		c.Record(req, err)
		return
	}
	c.Handle(sr, req, err)
}

func trackWriter(w http.ResponseWriter) *statusRecorder {
	if sr, ok := w.(*statusRecorder); ok {
		return sr
	}
	return &statusRecorder{ResponseWriter: w}
}
