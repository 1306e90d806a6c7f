package classify

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// FallbackMessage is reported when a failure carries no client-facing message.
const FallbackMessage = "An unknown error occurred."

// Description is the client-facing message and detail text of a failure.
// Empty fields mean the failure did not provide them.
type Description struct {
	Message string
	Details string
}

// Lines splits Details into the ordered detail sequence.
func (d Description) Lines() []string {
	return strings.Split(d.Details, "\n")
}

// Describer is implemented by failures that carry their own description.
type Describer interface {
	Describe() Description
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// Describe is the single adapter from any failure to a complete Description.
// The first Describer in the chain supplies what it has; a missing message becomes
// FallbackMessage and missing details become a synthesized trace. A Describer
// that panics is treated as absent.
func Describe(err error) Description {
	d := ownDescription(err)
	if strings.TrimSpace(d.Message) == "" {
		d.Message = FallbackMessage
	}
	if d.Details == "" {
		d.Details = Trace(err)
	}
	return d
}

// Trace synthesizes the detail text for err: one "<Type>: <message>" line per
// chain link followed by the best stack available. A recovered panic supplies
// its own stack, a pkg/errors cause supplies the stack it recorded, and anything
// else gets the stack of the calling goroutine.
func Trace(err error) string {
	var b strings.Builder
	for i, link := range chain(err) {
		if i > 0 {
			b.WriteString("caused by ")
		}
		fmt.Fprintf(&b, "%s: %s\n", TypeName(link), safeText(link))
	}
	b.WriteString(stackOf(err))
	return strings.TrimRight(b.String(), "\n")
}

func ownDescription(err error) (d Description) {
	defer func() {
		if recover() != nil {
			d = Description{}
		}
	}()
	var describer Describer
	if errors.As(err, &describer) {
		d = describer.Describe()
	}
	return d
}

func stackOf(err error) (stack string) {
	defer func() {
		if recover() != nil {
			stack = string(debug.Stack())
		}
	}()
	var panicErr *PanicError
	var traced stackTracer
	switch {
	case errors.As(err, &panicErr) && len(panicErr.Stack) > 0:
		return string(panicErr.Stack)
	case errors.As(err, &traced):
		return fmt.Sprintf("%+v", traced.StackTrace())
	}
	return string(debug.Stack())
}

// safeText returns err.Error(), or "<nil>" for a nil pointer whose Error method
// dereferences it and "!panic" for any other panicking Error method.
func safeText(err error) (text string) {
	defer func() {
		if recover() != nil {
			if v := reflect.ValueOf(err); v.Kind() == reflect.Pointer && v.IsNil() {
				text = "<nil>"
				return
			}
			text = "!panic"
		}
	}()
	return err.Error()
}

func chain(err error) []error {
	var links []error
	for err != nil && len(links) < 32 {
		links = append(links, err)
		err = safeUnwrap(err)
	}
	return links
}

func safeUnwrap(err error) (next error) {
	defer func() {
		if recover() != nil {
			next = nil
		}
	}()
	return unwrapFirst(err)
}
