// Package errors defines the structured error type used across the cache,
// narrowing the kinds of failure a caller needs to branch on to exactly the
// six named by the cache's error-handling design: NotFound, Permission,
// Corruption, Storage, Configuration, and Processing.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a CacheError. Kind values are not HTTP-mapped or
// severity-ranked; they exist purely so callers can branch with errors.Is
// against the sentinel wrappers below.
type Kind int

const (
	// KindNotFound means the file does not exist.
	KindNotFound Kind = iota
	// KindPermission means path validation failed (traversal attempt or a
	// path outside the configured allowed prefixes).
	KindPermission
	// KindCorruption means an integrity check classified a stored entry as
	// corrupted. Corruption never surfaces to callers — the orchestrator
	// resolves it internally as a cache miss — but the kind exists so
	// internal code can still report it through errors.Is.
	KindCorruption
	// KindStorage means the persistent backend failed a required
	// operation.
	KindStorage
	// KindConfiguration means a construction-time configuration value is
	// invalid.
	KindConfiguration
	// KindProcessing means the caller-supplied extractor failed.
	KindProcessing
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindCorruption:
		return "corruption"
	case KindStorage:
		return "storage"
	case KindConfiguration:
		return "configuration"
	case KindProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// CacheError is the structured error type returned by the cache. Component
// and Operation name where the failure originated; Cause, when present, is
// unwrapped by errors.Unwrap/errors.Is/errors.As.
type CacheError struct {
	Kind      Kind
	Message   string
	Component string
	Operation string
	Path      string
	Cause     error
}

func (e *CacheError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Component != "" || e.Operation != "" {
		msg = fmt.Sprintf("[%s.%s] %s", e.Component, e.Operation, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, &CacheError{Kind: X}) style matching against a
// bare sentinel carrying only a Kind.
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newKind(kind Kind, component, operation, path, message string, cause error) *CacheError {
	return &CacheError{
		Kind:      kind,
		Message:   message,
		Component: component,
		Operation: operation,
		Path:      path,
		Cause:     cause,
	}
}

// NotFound reports that the file named by path does not exist.
func NotFound(component, operation, path string) *CacheError {
	return newKind(KindNotFound, component, operation, path, "file not found", nil)
}

// Permission reports a path-validation failure.
func Permission(component, operation, path, message string) *CacheError {
	return newKind(KindPermission, component, operation, path, message, nil)
}

// Corruption reports that a stored entry failed integrity verification.
// Internal callers use this to drive cache-miss fallback; it is never
// returned across the public API.
func Corruption(component, operation, path, message string, cause error) *CacheError {
	return newKind(KindCorruption, component, operation, path, message, cause)
}

// Storage reports that a persistent-backend operation failed.
func Storage(component, operation, message string, cause error) *CacheError {
	return newKind(KindStorage, component, operation, "", message, cause)
}

// Configuration reports an invalid configuration value at construction
// time.
func Configuration(component, message string) *CacheError {
	return newKind(KindConfiguration, component, "validate", "", message, nil)
}

// Processing wraps an extractor-originated failure, preserving the
// original cause for inspection via errors.Unwrap.
func Processing(component, operation, path string, cause error) *CacheError {
	return newKind(KindProcessing, component, operation, path, "extraction failed", cause)
}

// Is reports whether err is a *CacheError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CacheError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == kind
}
