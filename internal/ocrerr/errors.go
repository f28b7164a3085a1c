// Package ocrerr defines the error taxonomy shared by every stage of the
// recognition cycle.
package ocrerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies an error by the stage and kind of failure.
type Code string

const (
	// ConfigInvalid: missing or out-of-range configuration values.
	ConfigInvalid Code = "CONFIG_INVALID"
	// UnsupportedLanguage: a language was requested that is not configured.
	UnsupportedLanguage Code = "UNSUPPORTED_LANGUAGE"
	// RecognitionFailed: the engine failed to load or to process a frame.
	RecognitionFailed Code = "RECOGNITION_FAILED"
	// FrameAcquisitionFailed: the camera or file could not yield a frame.
	FrameAcquisitionFailed Code = "FRAME_ACQUISITION_FAILED"
	// ExportFailed: a record or image could not be persisted.
	ExportFailed Code = "EXPORT_FAILED"
)

// Sentinels usable with errors.Is.
var (
	ErrConfigInvalid          = &Error{Code: ConfigInvalid}
	ErrUnsupportedLanguage    = &Error{Code: UnsupportedLanguage}
	ErrRecognitionFailed      = &Error{Code: RecognitionFailed}
	ErrFrameAcquisitionFailed = &Error{Code: FrameAcquisitionFailed}
	ErrExportFailed           = &Error{Code: ExportFailed}
)

// Error is a coded error carrying the operation that failed and enough
// context to log it without the caller re-deriving anything.
type Error struct {
	Code     Code
	Op       string
	Language string
	Path     string
	Details  map[string]any
	Err      error
}

// New creates a coded error for op wrapping err.
func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// Errorf creates a coded error with a formatted cause.
func Errorf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithLanguage sets the language and returns the receiver.
func (e *Error) WithLanguage(lang string) *Error {
	e.Language = lang
	return e
}

// WithPath sets the file path and returns the receiver.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithDetail attaches a key/value pair and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Language != "" {
		b.WriteString(" [lang=")
		b.WriteString(e.Language)
		b.WriteString("]")
	}
	if e.Path != "" {
		b.WriteString(" [path=")
		b.WriteString(e.Path)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so the package sentinels work
// with errors.Is regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Fatal reports whether the error ends the capture loop.
func (e *Error) Fatal() bool {
	return e.Code == ConfigInvalid || e.Code == FrameAcquisitionFailed
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsFatal reports whether err (or anything it wraps) is a fatal coded error.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return false
}

// LogAttrs flattens the error into slog-friendly key/value pairs.
func LogAttrs(err error) []any {
	var e *Error
	if !errors.As(err, &e) {
		return []any{"error", err}
	}
	attrs := []any{"code", string(e.Code), "op", e.Op}
	if e.Language != "" {
		attrs = append(attrs, "language", e.Language)
	}
	if e.Path != "" {
		attrs = append(attrs, "path", e.Path)
	}
	for k, v := range e.Details {
		attrs = append(attrs, k, v)
	}
	if e.Err != nil {
		attrs = append(attrs, "cause", e.Err.Error())
	}
	return attrs
}
