// Package errors defines the error kinds shared by the API, the stream intake
// and the config loader.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error so transports can map it to a status code.
type Kind uint8

const (
	Other Kind = iota
	Invalid
	NotFound
	Internal
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case NotFound:
		return "not found"
	case Internal:
		return "internal"
	}
	return "other"
}

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error.
func E(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or Other.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ValidationErrors collects per-field problems.
type ValidationErrors struct {
	fields map[string][]string
}

// ValidationErrs returns an empty collector.
func ValidationErrs() *ValidationErrors {
	return &ValidationErrors{fields: make(map[string][]string)}
}

// Add records a problem for field.
func (v *ValidationErrors) Add(field, msg string) {
	v.fields[field] = append(v.fields[field], msg)
}

// Fields returns the failing field names, sorted.
func (v *ValidationErrors) Fields() []string {
	names := make([]string, 0, len(v.fields))
	for f := range v.fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// Err returns nil when nothing was added.
func (v *ValidationErrors) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.fields))
	for _, f := range v.Fields() {
		parts = append(parts, fmt.Sprintf("%s %s", f, strings.Join(v.fields[f], ", ")))
	}
	return strings.Join(parts, "; ")
}

// ValidationFailedErr wraps a field collector as an Invalid error.
func ValidationFailedErr(err error) error {
	return E(Invalid, "validation failed", err)
}

// InvalidBodyErr reports an undecodable payload.
func InvalidBodyErr(err error) error {
	return E(Invalid, "invalid request body", err)
}
