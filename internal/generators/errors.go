package generators

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindUnknownMethod      ErrorKind = "unknown_method"
	KindGeneratorFailure   ErrorKind = "generator_failure"
	KindConfigError        ErrorKind = "config_error"
	KindDependencyNotReady ErrorKind = "dependency_not_ready"
	KindEmptySource        ErrorKind = "empty_source"
	KindUniqueExhausted    ErrorKind = "unique_exhausted"
	KindInvalidPattern     ErrorKind = "invalid_pattern"
	KindTemplateError      ErrorKind = "template_error"
	KindFormattingError    ErrorKind = "formatting_error"
	KindProviderError      ErrorKind = "provider_error"
)

// ErrorPrefix marks a materialized failure inside a generated row.
const ErrorPrefix = "Error: "

// GenerationError is a value-level failure. It never aborts a job; the row
// builder turns it into a string value with Materialize.
type GenerationError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, cause error, format string, args ...interface{}) *GenerationError {
	return &GenerationError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func IsKind(err error, kind ErrorKind) bool {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// Materialize renders err as the descriptive value stored in a row.
func Materialize(err error) string {
	if err == nil {
		return ""
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		if ge.Cause != nil {
			return fmt.Sprintf("%s%s (%v)", ErrorPrefix, ge.Message, ge.Cause)
		}
		return ErrorPrefix + ge.Message
	}
	return ErrorPrefix + err.Error()
}

// LooksLikeError reports whether v is a materialized failure value.
func LooksLikeError(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, ErrorPrefix)
}

// UniquenessFailed is the sentinel stored when a unique field runs out of
// attempts.
func UniquenessFailed(field string) string {
	return ErrorPrefix + "uniqueness failed for " + field
}
