package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OCAP2/interactive-markers/internal/store"
)

var (
	// ErrNotFound is returned by mutations naming a marker that does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrInvalidMarker is returned when a marker cannot be stored, e.g. it has no name.
	ErrInvalidMarker = errors.New("invalid marker")

	// ErrTransport is wrapped by every error reported by the transport.
	ErrTransport = errors.New("transport failure")

	errNoTransport = errors.New("no transport configured")
)

// TransportError reports a batch that did not reach every subscriber.
// Failed lists the affected client ids when the transport knows them.
type TransportError struct {
	Failed []string
	Err    error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(ErrTransport.Error())
	if len(e.Failed) > 0 {
		fmt.Fprintf(&b, " for %d subscriber(s) [%s]", len(e.Failed), strings.Join(e.Failed, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

func asTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Err: err}
}
