package httpx

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"

	"github.com/splax/terror/internal/classify"
	"github.com/splax/terror/internal/repository"
)

// handleFail fails on purpose so the capture path can be exercised end to end.
func handleFail(w http.ResponseWriter, req *http.Request) error {
	switch kind := req.PathValue("kind"); kind {
	case "validation":
		return classify.Invalid("kind", "smoke validation failure")
	case "store":
		return fmt.Errorf("smoke insert: %w", repository.ErrStore)
	case "stack":
		return pkgerrors.New("smoke failure with recorded stack")
	case "panic":
		panic("smoke panic")
	case "described":
		return classify.WithMessage(errors.New("smoke failure"), "The smoke test failed as requested.")
	default:
		return fmt.Errorf("smoke failure %q", kind)
	}
}
