// Package faults defines the domain fault taxonomy for the relay core: a
// base fault type carrying a stable log event identifier, an operation
// context, and a cause chain, plus the single conversion point that turns a
// fault into a failure event on the bus.
package faults

import (
	"fmt"

	"github.com/clipwave/mediarelay/internal/domain/events"
)

// Fault is the base failure type for the relay domain. It is immutable
// after construction except for the operation context, which may be
// attached exactly once if previously absent.
type Fault struct {
	msg   string
	event LogEvent
	opCtx events.OperationContext
	data  map[string]any
	cause error
}

// New constructs a fault with the given log event and message.
func New(event LogEvent, msg string) *Fault {
	return &Fault{msg: msg, event: event}
}

// Newf constructs a fault with a formatted message.
func Newf(event LogEvent, format string, args ...any) *Fault {
	return &Fault{msg: fmt.Sprintf(format, args...), event: event}
}

// Wrap constructs a fault that records err as its cause.
func Wrap(err error, event LogEvent, msg string) *Fault {
	return &Fault{msg: msg, event: event, cause: err}
}

// WithData attaches a key/value diagnostic pair. It returns the fault to
// allow chaining at the creation site.
func (f *Fault) WithData(key string, value any) *Fault {
	if f.data == nil {
		f.data = make(map[string]any)
	}
	f.data[key] = value
	return f
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %v", f.msg, f.cause)
	}
	return f.msg
}

// Unwrap exposes the cause chain to errors.Is and errors.As.
func (f *Fault) Unwrap() error { return f.cause }

// Message returns the fault's own message, without the cause chain.
func (f *Fault) Message() string { return f.msg }

// LogEvent returns the stable identifier for this fault category.
func (f *Fault) LogEvent() LogEvent { return f.event }

// Data returns the diagnostic key/value pairs attached to this fault.
func (f *Fault) Data() map[string]any { return f.data }

// OperationContext returns the attached correlation document, if any.
func (f *Fault) OperationContext() events.OperationContext { return f.opCtx }

// AttachOperationContext attaches the correlation document if none is
// present. A context already attached is never overwritten; callers on the
// way up may only populate an absent one.
func (f *Fault) AttachOperationContext(opCtx events.OperationContext) {
	if !f.opCtx.IsZero() {
		return
	}
	f.opCtx = opCtx
}
