// Package classify resolves failures to an HTTP status and a two-part type label.
//
// A Registry is an ordered table of entries tested most-specific first. It always
// ends with a catch-all entry, so every failure resolves to exactly one entry. The
// table is frozen by NewRegistry and is safe for unlimited concurrent readers.
package classify

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
)

// DefaultCategory names the catch-all entry appended by NewRegistry.
const DefaultCategory = "Error"

// Matcher reports whether err belongs to a category.
type Matcher func(err error) bool

// Entry maps a failure category to a status code. A nil Match accepts any failure.
type Entry struct {
	Status   int
	Category string
	Match    Matcher
}

// CatchAll returns an entry matching every failure.
func CatchAll(status int, category string) Entry {
	return Entry{Status: status, Category: category}
}

// MatchAs matches failures with a T anywhere in their chain.
func MatchAs[T error]() Matcher {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// MatchIs matches failures wrapping target.
func MatchIs(target error) Matcher {
	return func(err error) bool {
		return errors.Is(err, target)
	}
}

// Classification is the resolved entry for one failure.
type Classification struct {
	Status   int
	Category string
	Concrete string
}

// Label renders "<Category>.<Concrete>".
func (c Classification) Label() string {
	return c.Category + "." + c.Concrete
}

// Registry is an immutable ordered classification table.
type Registry struct {
	entries []Entry
}

// NewRegistry freezes a copy of entries, filling zero statuses with 500 and empty
// categories with DefaultCategory. A catch-all is appended unless the last entry
// already is one.
func NewRegistry(entries ...Entry) *Registry {
	frozen := make([]Entry, 0, len(entries)+1)
	for _, e := range entries {
		if e.Status == 0 {
			e.Status = http.StatusInternalServerError
		}
		if strings.TrimSpace(e.Category) == "" {
			e.Category = DefaultCategory
		}
		frozen = append(frozen, e)
	}
	if len(frozen) == 0 || frozen[len(frozen)-1].Match != nil {
		frozen = append(frozen, CatchAll(http.StatusInternalServerError, DefaultCategory))
	}
	return &Registry{entries: frozen}
}

// Default mirrors the stock table: validation and store-layer failures are
// recognized but, like everything else, surface as 500.
func Default() *Registry {
	return NewRegistry(
		Entry{Status: http.StatusInternalServerError, Category: "ValidationError", Match: MatchAs[*ValidationError]()},
		Entry{Status: http.StatusInternalServerError, Category: "StoreError", Match: IsStoreError},
		CatchAll(http.StatusInternalServerError, DefaultCategory),
	)
}

// Entries returns a copy of the frozen table.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Classify returns the first entry matching err. It never fails; a nil error
// resolves to the catch-all with the category repeated as the concrete name.
func (r *Registry) Classify(err error) Classification {
	last := r.entries[len(r.entries)-1]
	if err == nil {
		return Classification{Status: last.Status, Category: last.Category, Concrete: last.Category}
	}
	concrete := TypeName(err)
	for _, e := range r.entries {
		if e.matches(err) {
			return Classification{Status: e.Status, Category: e.Category, Concrete: concrete}
		}
	}
	return Classification{Status: last.Status, Category: last.Category, Concrete: concrete}
}

// matches reports whether e accepts err. A panicking matcher does not match.
func (e Entry) matches(err error) (ok bool) {
	if e.Match == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return e.Match(err)
}

// TypeName returns the bare type name of err, looking through fmt wrappers.
func TypeName(err error) string {
	for err != nil {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if isWrapper(err, t) {
			next := unwrapFirst(err)
			if next == nil {
				return t.Name()
			}
			err = next
			continue
		}
		if name := t.Name(); name != "" {
			return name
		}
		return t.String()
	}
	return DefaultCategory
}

// isWrapper reports types that only annotate a cause.
func isWrapper(err error, t reflect.Type) bool {
	if _, ok := err.(*described); ok {
		return true
	}
	switch t.PkgPath() {
	case "fmt":
		return strings.HasPrefix(t.Name(), "wrapError")
	case "github.com/pkg/errors":
		return t.Name() == "withStack" || t.Name() == "withMessage"
	}
	return false
}

func unwrapFirst(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		if errs := u.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
	}
	return nil
}
