package ctrlffi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies every failure the marshalling core reports.
type Kind int

const (
	NotFound Kind = iota + 1
	InvalidArgument
	InvalidReturnType
	UnsupportedOperation
	OutOfRange
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case InvalidReturnType:
		return "invalid_return_type"
	case UnsupportedOperation:
		return "unsupported_operation"
	case OutOfRange:
		return "out_of_range"
	}
	return "unknown"
}

// sentinels for errors.Is
var (
	ErrNotFound             = &Error{Kind: NotFound}
	ErrInvalidArgument      = &Error{Kind: InvalidArgument}
	ErrInvalidReturnType    = &Error{Kind: InvalidReturnType}
	ErrUnsupportedOperation = &Error{Kind: UnsupportedOperation}
	ErrOutOfRange           = &Error{Kind: OutOfRange}
)

// Error is returned by every operation of the package.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the Kind carried by err, or 0 when err is not from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Severity mirrors the priorities of the host error handler.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeveritySevere
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeveritySevere:
		return "severe"
	case SeverityFatal:
		return "fatal"
	}
	return "unknown"
}

// Reporter receives diagnostics. Implementations must not panic; the
// operation that reports has already decided its result.
type Reporter interface {
	Report(sev Severity, kind Kind, location, message string)
}

// LogReporter writes diagnostics to a slog.Logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Report - logs at a level matching sev
func (r LogReporter) Report(sev Severity, kind Kind, location, message string) {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	switch sev {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeveritySevere, SeverityFatal:
		level = slog.LevelError
	}
	l.Log(context.Background(), level, message, "kind", kind.String(), "location", location, "severity", sev.String())
}

// report forwards err to r, picking the severity from the kind.
func report(r Reporter, location string, err error) {
	if r == nil || err == nil {
		return
	}
	kind := KindOf(err)
	sev := SeveritySevere
	if kind == InvalidArgument || kind == OutOfRange {
		sev = SeverityWarning
	}
	r.Report(sev, kind, location, err.Error())
}
