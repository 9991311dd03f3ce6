// Package daqerr defines the daemon's closed error taxonomy.
//
// Code is a stable, RPC-facing identifier: a string newtype, comparable,
// allocation-free, and itself an error. Device-specific detail is carried as
// context on an *E wrapper rather than as a leaf of the taxonomy, so the
// surface stays small no matter how many driver families exist.
package daqerr

// Code is a closed error kind shared by drivers, the registry, the
// RunEngine, and the RPC surface.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (spec.md §7).
const (
	NotFound      Code = "not_found"
	AlreadyExists Code = "already_exists"
	InvalidArgument Code = "invalid_argument"
	ValidationFailed Code = "validation_failed"
	Communication Code = "communication"
	Timeout       Code = "timeout"
	Hardware      Code = "hardware"
	NotArmed      Code = "not_armed"
	StateInvalid  Code = "state_invalid"
	Cancelled     Code = "cancelled"
	Internal      Code = "internal"
)

// E wraps a Code with an operation name, a human message, and an optional
// underlying cause, so that context survives Unwrap() chains.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s += " (" + e.Op + ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E with the given code, operation, and message.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap builds an *E that chains an underlying error as its cause.
func Wrap(c Code, op string, err error) *E {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: err.Error(), Err: err}
}

// Of extracts a Code from an error: "" for nil, the Code itself or the Code
// reported by a Code() method, and Internal for any other error. It looks at
// err only, not at errors it wraps.
func Of(err error) Code {
	if err == nil {
		return ""
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Internal
}

// Retryable reports whether the RunEngine's retry policy (spec.md §4.7.4,
// §7) should retry a command that failed with this code.
func Retryable(c Code) bool {
	return c == Timeout || c == Communication
}
