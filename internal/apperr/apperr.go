// Package apperr defines the failure kinds shared by the exam pipeline.
//
// Every error that crosses a pipeline boundary is an *Error carrying one of
// five kinds, so callers can branch with errors.Is(err, apperr.ErrUpstream)
// instead of matching messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindConfiguration is a missing or invalid startup setting.
	KindConfiguration Kind = "configuration"
	// KindUpstream is a failed or rejected language-model call.
	KindUpstream Kind = "upstream"
	// KindParse is model output that is not valid JSON after extraction.
	KindParse Kind = "parse"
	// KindValidation is parsed or submitted data missing required fields.
	KindValidation Kind = "validation"
	// KindIO is a document read or write failure.
	KindIO Kind = "io"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrUpstream      = &Error{Kind: KindUpstream}
	ErrParse         = &Error{Kind: KindParse}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrIO            = &Error{Kind: KindIO}
)

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "generate"
	Msg  string
	Raw  string // raw model output, set for parse failures
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// RawOf returns the raw model output attached to err, if any.
func RawOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Raw
	}
	return ""
}

// Configuration returns a configuration error.
func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failed completion call.
func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Msg: "completion failed", Err: err}
}

// Parse wraps a JSON decoding failure of model output.
func Parse(op, raw string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Msg: "model output is not valid JSON", Raw: raw, Err: err}
}

// Validation reports structurally invalid data.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps a storage failure.
func IO(op string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Msg: "document storage failed", Err: err}
}
