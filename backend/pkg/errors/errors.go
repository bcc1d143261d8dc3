package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeVector represents vector index errors
	ErrorTypeVector ErrorType = "vector"
	// ErrorTypeEmbedding represents embedding provider errors
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeEnrichment represents LLM enrichment errors
	ErrorTypeEnrichment ErrorType = "enrichment"
	// ErrorTypePrecondition represents caller contract violations
	ErrorTypePrecondition ErrorType = "precondition"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind reports the error category. Promoted to every typed error below.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Graph Errors

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrGraphNodeNotFound is returned when a node reference resolves to nothing
type ErrGraphNodeNotFound struct {
	*BaseError
	NodeID string
}

func NewGraphNodeNotFound(nodeID string) *ErrGraphNodeNotFound {
	return &ErrGraphNodeNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("node not found: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// ErrInvalidIdentifier is returned when a label, relationship type or
// property key cannot be safely placed into a query
type ErrInvalidIdentifier struct {
	*BaseError
	Role  string
	Value string
}

func NewInvalidIdentifier(role, value string) *ErrInvalidIdentifier {
	return &ErrInvalidIdentifier{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("invalid %s: %q", role, value), nil),
		Role:      role,
		Value:     value,
	}
}

// Vector Index Errors

// ErrIndexNotFound is returned by a vector backend when the named index does not exist
type ErrIndexNotFound struct {
	*BaseError
	Index string
}

func NewIndexNotFound(index string) *ErrIndexNotFound {
	return &ErrIndexNotFound{
		BaseError: NewBaseError(ErrorTypeVector, fmt.Sprintf("index name does not exist: %s", index), nil),
		Index:     index,
	}
}

// ErrIndexUnavailable is returned when an index could not be attached or bootstrapped
type ErrIndexUnavailable struct {
	*BaseError
	Index string
}

func NewIndexUnavailable(index string, err error) *ErrIndexUnavailable {
	return &ErrIndexUnavailable{
		BaseError: NewBaseError(ErrorTypeVector, fmt.Sprintf("vector index unavailable: %s", index), err),
		Index:     index,
	}
}

// Embedding Errors

// ErrEmbeddingFailed is returned when the embedding provider fails
type ErrEmbeddingFailed struct {
	*BaseError
	Model     string
	Retryable bool
}

func NewEmbeddingFailed(model string, retryable bool, err error) *ErrEmbeddingFailed {
	return &ErrEmbeddingFailed{
		BaseError: NewBaseError(ErrorTypeEmbedding, fmt.Sprintf("embedding request failed: %s", model), err),
		Model:     model,
		Retryable: retryable,
	}
}

// Enrichment Errors

// ErrEnrichmentFailed is returned when the enrichment model call fails
type ErrEnrichmentFailed struct {
	*BaseError
	Model    string
	Attempts int
}

func NewEnrichmentFailed(model string, attempts int, err error) *ErrEnrichmentFailed {
	return &ErrEnrichmentFailed{
		BaseError: NewBaseError(ErrorTypeEnrichment, fmt.Sprintf("enrichment failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// ErrEnrichmentValidation is returned when an enrichment result lacks required fields
type ErrEnrichmentValidation struct {
	*BaseError
	Schema  string
	Missing []string
}

func NewEnrichmentValidation(schema string, missing []string) *ErrEnrichmentValidation {
	return &ErrEnrichmentValidation{
		BaseError: NewBaseError(ErrorTypeEnrichment,
			fmt.Sprintf("%s: missing required fields %s", schema, strings.Join(missing, ", ")), nil),
		Schema:  schema,
		Missing: missing,
	}
}

// Precondition Errors

// ErrPreconditionViolated is returned when a caller breaks an operation's contract
type ErrPreconditionViolated struct {
	*BaseError
	Operation string
	Reason    string
}

func NewPreconditionViolated(operation, reason string) *ErrPreconditionViolated {
	return &ErrPreconditionViolated{
		BaseError: NewBaseError(ErrorTypePrecondition, fmt.Sprintf("%s: %s", operation, reason), nil),
		Operation: operation,
		Reason:    reason,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type kinded interface {
	Kind() ErrorType
}

// IsErrorType checks if an error, or anything it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		var k kinded
		if !stderrors.As(err, &k) {
			return false
		}
		if k.Kind() == errType {
			return true
		}
		// Continue below the matched layer.
		err = stderrors.Unwrap(k.(error))
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) || IsErrorType(err, ErrorTypePrecondition) {
		return false
	}
	var embedErr *ErrEmbeddingFailed
	if stderrors.As(err, &embedErr) {
		return embedErr.Retryable
	}
	var connErr *ErrGraphConnectionFailed
	if stderrors.As(err, &connErr) {
		return true
	}
	return IsErrorType(err, ErrorTypeVector)
}
