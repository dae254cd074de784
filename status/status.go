// Package status defines the single error-code enumeration shared by every
// layer of the SDK, from the mailbox up through the feature APIs.
package status

import (
	"errors"
	"fmt"

	"github.com/plgd-dev/go-coap/v2/message/codes"
)

// Code is the SDK-wide status enumeration. It deliberately mirrors a single
// flat C enum rather than a tree of Go error types: callers across the
// engine, the OTA state machine and the feature APIs all switch on the same
// set of outcomes.
type Code int

const (
	Ok Code = iota
	Fail
	DNSLookup
	NotImplemented
	MemAlloc
	Null
	InvalidFormat
	Serialize
	Io
	Timeout
	QueueFull
	NotAllowed
	InvalidState
	NoMoreData
	CoapResponse
	InvalidBlockSize
	BadRequest
	Nack
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case Fail:
		return "Fail"
	case DNSLookup:
		return "DNSLookup"
	case NotImplemented:
		return "NotImplemented"
	case MemAlloc:
		return "MemAlloc"
	case Null:
		return "Null"
	case InvalidFormat:
		return "InvalidFormat"
	case Serialize:
		return "Serialize"
	case Io:
		return "Io"
	case Timeout:
		return "Timeout"
	case QueueFull:
		return "QueueFull"
	case NotAllowed:
		return "NotAllowed"
	case InvalidState:
		return "InvalidState"
	case NoMoreData:
		return "NoMoreData"
	case CoapResponse:
		return "CoapResponse"
	case InvalidBlockSize:
		return "InvalidBlockSize"
	case BadRequest:
		return "BadRequest"
	case Nack:
		return "Nack"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the concrete error type returned across the SDK boundary. It
// carries the flat status Code plus, for CoapResponse, the CoAP response
// code that produced it, and wraps an underlying cause where one exists so
// callers can still errors.Is/As through to transport-level failures.
type Error struct {
	Code     Code
	CoAPCode codes.Code
	Path     string
	cause    error
}

func New(code Code, path string) *Error {
	return &Error{Code: code, Path: path}
}

func Wrap(code Code, path string, cause error) *Error {
	return &Error{Code: code, Path: path, cause: cause}
}

// FromCoAPCode maps a non-2.xx CoAP response code to a CoapResponse error,
// preserving the class/detail pair per spec: "CoAP response codes outside
// class 2 are reported as CoapResponse with the class and detail preserved."
func FromCoAPCode(path string, c codes.Code) *Error {
	return &Error{Code: CoapResponse, CoAPCode: c, Path: path}
}

func (e *Error) Error() string {
	if e.Code == CoapResponse {
		if e.Path != "" {
			return fmt.Sprintf("coap %s: response %s", e.Path, e.CoAPCode)
		}
		return fmt.Sprintf("coap response %s", e.CoAPCode)
	}
	if e.Path != "" {
		if e.cause != nil {
			return fmt.Sprintf("coap %s: %s: %s", e.Path, e.Code, e.cause)
		}
		return fmt.Sprintf("coap %s: %s", e.Path, e.Code)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf extracts the status Code from err, walking the error chain with
// errors.As. Returns Fail for any non-nil error that didn't originate here.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return Fail
}
