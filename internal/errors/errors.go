// Package errors provides the structured error type used across the memory
// core. Every error that crosses a component boundary is a *MemoryError
// carrying one of the abstract kinds the retrieval engine distinguishes:
// not-found, validation, storage, embedding, reranker, timeout, internal.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy decisions (retry,
// degrade, surface immediately) without callers needing to inspect
// message text.
type Kind string

const (
	KindNotFound   Kind = "not-found"
	KindValidation Kind = "validation"
	KindStorage    Kind = "storage"
	KindEmbedding  Kind = "embedding"
	KindReranker   Kind = "reranker"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal"
)

// MemoryError is the structured error type for the memory core.
type MemoryError struct {
	Kind    Kind
	Message string
	Cause   error

	// Details carries extra key/value context (entity id, field name, ...).
	Details map[string]string
}

func (e *MemoryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *MemoryError) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is to match by kind.
func (e *MemoryError) Is(target error) bool {
	var t *MemoryError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *MemoryError) WithDetail(key, value string) *MemoryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a MemoryError of the given kind.
func New(kind Kind, message string) *MemoryError {
	return &MemoryError{Kind: kind, Message: message}
}

// Wrap creates a MemoryError of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *MemoryError {
	if cause == nil {
		return New(kind, message)
	}
	return &MemoryError{Kind: kind, Message: message, Cause: cause}
}

// NotFound creates a not-found error, e.g. an unknown entity id.
func NotFound(message string) *MemoryError {
	return New(KindNotFound, message)
}

// Validation creates a validation error (self-loop, strength range, dimension mismatch).
func Validation(message string) *MemoryError {
	return New(KindValidation, message)
}

// Storage wraps a database-call failure.
func Storage(message string, cause error) *MemoryError {
	return Wrap(KindStorage, message, cause)
}

// Embedding wraps an embedding inference failure.
func Embedding(message string, cause error) *MemoryError {
	return Wrap(KindEmbedding, message, cause)
}

// Reranker wraps a cross-encoder failure.
func Reranker(message string, cause error) *MemoryError {
	return Wrap(KindReranker, message, cause)
}

// Timeout wraps a deadline-exceeded failure.
func Timeout(message string, cause error) *MemoryError {
	return Wrap(KindTimeout, message, cause)
}

// Internal wraps an unexpected internal failure.
func Internal(message string, cause error) *MemoryError {
	return Wrap(KindInternal, message, cause)
}

// GetKind extracts the Kind from err, returning KindInternal if err is not
// a *MemoryError.
func GetKind(err error) Kind {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}

// Is reports whether err is a MemoryError of the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
