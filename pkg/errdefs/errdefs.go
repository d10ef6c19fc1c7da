// Package errdefs defines the error taxonomy shared by the cortexmap
// packages. Callers are expected to classify failures with the Is*
// helpers rather than matching error strings.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports a parameter whose value is invalid for the
// requested operation.
type ConfigError struct {
	// Field names the offending parameter.
	Field string
	// Reason describes the constraint that was violated.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Config builds a ConfigError with a formatted reason.
func Config(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a name that does not exist in a registry or
// catalog. Known carries the valid choices so the message is actionable.
type NotFoundError struct {
	// Kind is the category of the missing entity, such as "mesh" or "atlas".
	Kind string
	// Name is the identifier that was requested.
	Name string
	// Known lists the identifiers that do exist, sorted.
	Known []string
}

func (e *NotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s %q not found, known: %s", e.Kind, e.Name, strings.Join(e.Known, ", "))
}

// ShapeError reports array dimensions that do not agree with what the
// operation requires.
type ShapeError struct {
	// Subject names the array or buffer being checked.
	Subject string
	// Want and Got describe the expected and actual dimensions.
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: want %s, got %s", e.Subject, e.Want, e.Got)
}

// Shape builds a ShapeError from formatted want/got descriptions.
func Shape(subject string, want, got interface{}) error {
	return &ShapeError{Subject: subject, Want: fmt.Sprint(want), Got: fmt.Sprint(got)}
}

// DependencyError reports a required external input that is missing, such
// as an atlas data file or a label table. The absence is surfaced
// explicitly instead of degrading into partial behavior.
type DependencyError struct {
	// Dependency names the missing input.
	Dependency string
	// Reason explains why it is considered missing.
	Reason string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("missing dependency %s: %s", e.Dependency, e.Reason)
}

// IsConfig reports whether err is or wraps a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsShape reports whether err is or wraps a ShapeError.
func IsShape(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// IsDependency reports whether err is or wraps a DependencyError.
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
