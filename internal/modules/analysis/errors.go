package analysis

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindFetch        Kind = "fetch"
	KindExtract      Kind = "extract"
	KindAnalysis     Kind = "analysis"
	KindPersistence  Kind = "persistence"
	KindInvalidInput Kind = "invalid input"
	KindNotFound     Kind = "not found"
)

// Sentinels for errors.Is: errors.Is(err, ErrFetch) matches any fetch failure.
var (
	ErrAuth         = &Error{Kind: KindAuth}
	ErrFetch        = &Error{Kind: KindFetch}
	ErrExtract      = &Error{Kind: KindExtract}
	ErrAnalysis     = &Error{Kind: KindAnalysis}
	ErrPersistence  = &Error{Kind: KindPersistence}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
	ErrNotFound     = &Error{Kind: KindNotFound}
)

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Op == "" && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status code it is rendered with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return http.StatusUnauthorized
	case KindFetch:
		return http.StatusBadGateway
	case KindExtract:
		return http.StatusUnprocessableEntity
	case KindAnalysis:
		return http.StatusBadGateway
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message shown to the caller. Storage errors are not exposed.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindPersistence:
		var e *Error
		if errors.As(err, &e) && strings.HasPrefix(e.Op, "save") {
			return "failed to save analysis results"
		}
		return "storage is unavailable"
	case "":
		return "internal server error"
	default:
		return err.Error()
	}
}
