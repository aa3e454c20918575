// Package apperr defines the tagged error kinds shared across the sidecar.
//
// Errors built with this package carry one of the four kinds below.
// The outbox, dbsession and keyspace-ensure code return plain wrapped
// errors without a kind; ToDetail renders any such value as KindOther.
// Callers that need to distinguish kinds use errors.As; callers that
// only want a message use Error().
package apperr

import (
	"fmt"
)

// Kind tags the broad category of an Error, matching the four kinds a
// caller might need to render differently.
type Kind string

const (
	KindConfig Kind = "config"
	KindDb     Kind = "db"
	KindWeb    Kind = "web"
	KindOther  Kind = "other"
)

// Error is an opaque, tagged error carrying a human-readable message and
// an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Kind == KindOther {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Config reports a configuration error.
func Config(format string, args ...interface{}) *Error { return newf(KindConfig, format, args...) }

// Db reports a database error.
func Db(format string, args ...interface{}) *Error { return newf(KindDb, format, args...) }

// Web reports a web/request-handling error.
func Web(format string, args ...interface{}) *Error { return newf(KindWeb, format, args...) }

// Other reports an error that doesn't fit the other kinds.
func Other(format string, args ...interface{}) *Error { return newf(KindOther, format, args...) }

// Wrap attaches cause to a new Error of the given kind.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Detail is the {what, why, how} explanation rendered to API clients.
type Detail struct {
	What string
	Why  string
	How  string
}

// ToDetail renders an error into the three-field explanation used by
// user-visible responses. Non-*Error values are treated as KindOther.
func ToDetail(err error) Detail {
	var kind = KindOther
	var msg = err.Error()
	if e, ok := err.(*Error); ok {
		kind = e.Kind
		msg = e.Message
	}
	switch kind {
	case KindConfig:
		return Detail{
			What: fmt.Sprintf("Configuration error: %s", msg),
			Why:  "The application configuration seems incomplete or contains an invalid value.",
			How:  "Review your app settings or environment variables and correct any typos or missing values. If unsure, restore the default config and try again.",
		}
	case KindDb:
		return Detail{
			What: fmt.Sprintf("Database error: %s", msg),
			Why:  "The app could not talk to the database or the database refused the request.",
			How:  "Please ensure the database is running and reachable. Check the host, port, username/password, and network connectivity. Then try again.",
		}
	case KindWeb:
		return Detail{
			What: fmt.Sprintf("Request error: %s", msg),
			Why:  "Your request could not be completed due to a server-side issue.",
			How:  "Please retry in a moment. If it keeps happening, contact support and include the time of the error and what you tried to do.",
		}
	default:
		return Detail{
			What: fmt.Sprintf("Unexpected error: %s", msg),
			Why:  "An unexpected problem occurred.",
			How:  "Please try again. If the issue persists, contact support with a short description of the action you took and this error message.",
		}
	}
}
