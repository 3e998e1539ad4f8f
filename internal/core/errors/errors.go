// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Typed errors (*Error): Use when callers need the details, via errors.As
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Load errors.
var (
	// ErrNotFound indicates a source document could not be found.
	ErrNotFound = errors.New("not found")

	// ErrSchema indicates the source table lacks the expected columns or cannot be decoded.
	ErrSchema = errors.New("schema error")
)

// Assistant errors.
var (
	// ErrAssistantTransport indicates the language-model call failed.
	ErrAssistantTransport = errors.New("assistant transport error")

	// ErrNoProviders indicates no language-model provider is registered.
	ErrNoProviders = errors.New("no llm providers available")

	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFormat indicates a document format that cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// NotFoundError reports the path of a missing document.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document %q not found", e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// SchemaError reports missing special columns together with the columns
// actually present, or a document that could not be decoded as a table.
type SchemaError struct {
	Path    string
	Missing []string
	Found   []string
	Reason  string
}

func (e *SchemaError) Error() string {
	var sb strings.Builder

	sb.WriteString("schema error")

	if e.Path != "" {
		fmt.Fprintf(&sb, " in %q", e.Path)
	}

	if e.Reason != "" {
		fmt.Fprintf(&sb, ": %s", e.Reason)
	}

	if len(e.Missing) > 0 {
		fmt.Fprintf(&sb, ": missing columns [%s], found [%s]",
			strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
	}

	return sb.String()
}

func (e *SchemaError) Unwrap() error { return ErrSchema }
