// Package brokererr defines the error taxonomy shared by every core
// component. A Code classifies the failure; Error() renders the
// human-readable phrase that the facade puts on the wire in a response
// DTO's `error` field.
package brokererr

import "fmt"

// Code is one of the categories in the error taxonomy.
type Code string

const (
	NotRegistered         Code = "NOT_REGISTERED"
	AlreadyRegistered     Code = "ALREADY_REGISTERED"
	InvalidID             Code = "INVALID_ID"
	NotConnected          Code = "NOT_CONNECTED"
	WriteDisabled         Code = "WRITE_DISABLED"
	CalibrationIncomplete Code = "CALIBRATION_INCOMPLETE"
	MovementCancelled     Code = "MOVEMENT_CANCELLED"
	MovementInterrupted   Code = "MOVEMENT_INTERRUPTED"
	DidNotReachTarget     Code = "DID_NOT_REACH_TARGET"
	UnsupportedOperation  Code = "UNSUPPORTED_OPERATION"
	TransportError        Code = "TRANSPORT_ERROR"
	ProtocolError         Code = "PROTOCOL_ERROR"
	InvalidRequest        Code = "INVALID_REQUEST"
	Internal              Code = "INTERNAL"
)

// phrases gives each code a stable, human-readable stage-prefixed phrase.
// The facade never invents its own wording — it always goes through New.
var phrases = map[Code]string{
	NotRegistered:         "Manipulator not registered",
	AlreadyRegistered:     "Manipulator already registered",
	InvalidID:             "Invalid manipulator ID",
	NotConnected:          "Manipulator not connected",
	WriteDisabled:         "Write disabled",
	CalibrationIncomplete: "Calibration not complete",
	MovementCancelled:     "Movement cancelled",
	MovementInterrupted:   "Movement interrupted",
	DidNotReachTarget:     "Did not reach target",
	UnsupportedOperation:  "Unsupported operation",
	TransportError:        "Transport error",
	ProtocolError:         "Protocol error",
	InvalidRequest:        "Invalid request",
	Internal:              "Internal error",
}

// Error is the broker's typed error. It always renders to a single
// English phrase suitable for the wire protocol's `error` field.
type Error struct {
	Code   Code
	Detail string
}

// New builds an Error for code with an optional detail appended after a
// colon (e.g. "Manipulator not registered: 7").
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func (e *Error) Error() string {
	phrase := phrases[e.Code]
	if phrase == "" {
		phrase = string(e.Code)
	}
	if e.Detail == "" {
		return phrase
	}
	return fmt.Sprintf("%s: %s", phrase, e.Detail)
}

// Internalf wraps an arbitrary error as an INTERNAL broker error,
// preserving its message as the detail. Used at the facade boundary so a
// binding's raw error never reaches the wire unlabeled.
func Internalf(format string, args ...any) *Error {
	return New(Internal, fmt.Sprintf(format, args...))
}

// As reports whether err is a *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	be, ok := err.(*Error)
	return be, ok
}

// CodeOf returns the Code of err if it is a *Error, or Internal otherwise.
func CodeOf(err error) Code {
	if be, ok := As(err); ok {
		return be.Code
	}
	return Internal
}
