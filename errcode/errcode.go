package errcode

import "errors"

// Code is a stable, log-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK            Code = "ok"
	InvalidConfig Code = "invalid_config"
	UnknownSensor Code = "unknown_sensor"

	// Bus / sensor protocol
	BusError    Code = "bus_error"
	NotReady    Code = "not_ready"
	NotPresent  Code = "not_present"
	CRCMismatch Code = "crc_mismatch"

	// Network
	Timeout    Code = "timeout"
	Transport  Code = "transport"
	HTTPStatus Code = "http_status"

	// OTA
	NoVersion     Code = "no_version"
	StageFailed   Code = "stage_failed"
	PromoteFailed Code = "promote_failed"
	TooLarge      Code = "too_large"

	Error Code = "error" // generic fallback
)

// E keeps the failing operation and a cause alongside the code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap returns nil for a nil cause, otherwise an *E carrying code and op.
func Wrap(c Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Err: err}
}

// New builds an *E without a cause.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// Retryable reports whether err came from the transport rather than from the
// peer's protocol or payload. Timeouts and transport failures are retryable;
// status, format and version errors are not.
func Retryable(err error) bool {
	switch Of(err) {
	case Timeout, Transport, BusError, NotReady:
		return true
	default:
		return false
	}
}
