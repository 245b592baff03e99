// Package traceerr gives every error in the monitor a trace id that survives
// wrapping, so a failure can be correlated end-to-end across the chain
// client, the filter engine, and the dispatcher from a single log line.
package traceerr

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/goware/superr"
)

type traceIDKey struct{}

// NewTraceID mints a fresh trace id for a tick, a request, or a one-shot run.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID attaches a trace id to ctx, creating one if none is given.
func WithTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewTraceID()
	}
	return context.WithValue(ctx, traceIDKey{}, id)
}

// TraceID returns the trace id carried by ctx, or "" if none was attached.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

// Traced is an error carrying a trace id. Wrapping a Traced error with Wrap
// inherits the inner trace id instead of minting a new one, so a chain of
// wraps still correlates back to the original failure.
type Traced struct {
	TraceID string
	Kind    error
	cause   error
}

func (e *Traced) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("[trace=%s] %s", e.TraceID, e.Kind)
	}
	return fmt.Sprintf("[trace=%s] %s: %s", e.TraceID, e.Kind, e.cause)
}

func (e *Traced) Unwrap() error { return e.cause }

func (e *Traced) Is(target error) bool {
	return e.Kind == target
}

// New wraps cause under the sentinel kind, stamping ctx's trace id (or
// minting one). If cause already carries a trace id, it is reused, so an
// error wrapped twice keeps its original trace id end to end.
func New(ctx context.Context, kind error, cause error) error {
	id := TraceID(ctx)
	if inner := AsTraceID(cause); inner != "" {
		id = inner
	}
	if id == "" {
		id = NewTraceID()
	}
	wrapped := cause
	if wrapped == nil {
		wrapped = kind
	} else {
		wrapped = superr.New(kind, cause)
	}
	return &Traced{TraceID: id, Kind: kind, cause: wrapped}
}

// AsTraceID extracts the trace id from err if it (or something it wraps) is
// a *Traced, else returns "".
func AsTraceID(err error) string {
	for err != nil {
		if t, ok := err.(*Traced); ok {
			return t.TraceID
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
