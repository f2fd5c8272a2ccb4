package errors

import (
	"fmt"
)

// McbError is the structured error type for the mcbgo server.
// It provides rich context for error handling, logging, and MCP tool results.
type McbError struct {
	// Code is the unique error code (e.g., "ERR_204_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the caller.
	Suggestion string
}

// Error implements the error interface.
func (e *McbError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *McbError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with McbError.
func (e *McbError) Is(target error) bool {
	if t, ok := target.(*McbError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *McbError) WithDetail(key, value string) *McbError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the caller.
// Returns the error for method chaining.
func (e *McbError) WithSuggestion(suggestion string) *McbError {
	e.Suggestion = suggestion
	return e
}

// New creates a new McbError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *McbError {
	return &McbError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an McbError from an existing error.
// The error's message becomes the McbError message.
func Wrap(code string, err error) *McbError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *McbError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ConfigMissingError creates an error for an unset required configuration value.
func ConfigMissingError(key string) *McbError {
	return New(ErrCodeConfigMissing, fmt.Sprintf("required configuration %q is not set", key), nil)
}

// DatabaseError creates a relational-storage error.
func DatabaseError(message string, cause error) *McbError {
	return New(ErrCodeDatabase, message, cause)
}

// VectorDBError creates a vector-store error.
func VectorDBError(message string, cause error) *McbError {
	return New(ErrCodeVectorDB, message, cause)
}

// EmbeddingError creates an embedding-provider error.
// Embedding provider errors are typically retryable.
func EmbeddingError(message string, cause error) *McbError {
	return New(ErrCodeEmbeddingProvider, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *McbError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// VcsError creates a VCS-resolution error.
func VcsError(message string, cause error) *McbError {
	return New(ErrCodeVcs, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *McbError {
	return New(ErrCodeInvalidArgument, message, cause)
}

// InvalidArgumentError creates a validation error naming the offending field.
func InvalidArgumentError(field, reason string) *McbError {
	return New(ErrCodeInvalidArgument, fmt.Sprintf("invalid argument %q: %s", field, reason), nil).
		WithDetail("field", field)
}

// DimensionMismatchError creates an error for a vector whose length does not match
// the collection's declared dimensionality.
func DimensionMismatchError(expected, got int) *McbError {
	return New(ErrCodeDimensionMismatch, fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", fmt.Sprintf("%d", expected)).
		WithDetail("got", fmt.Sprintf("%d", got))
}

// CollectionNotFoundError creates an error for a reference to an unknown vector collection.
func CollectionNotFoundError(name string) *McbError {
	return New(ErrCodeCollectionNotFound, fmt.Sprintf("collection %q not found", name), nil).
		WithDetail("collection", name)
}

// NotFoundError creates a generic not-found error for the given entity kind.
func NotFoundError(entity, id string) *McbError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s %q not found", entity, id), nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *McbError {
	return New(ErrCodeInternal, message, cause)
}

// ObservationNotFoundError creates an error for a missing observation.
func ObservationNotFoundError(id string) *McbError {
	return New(ErrCodeObservationNotFound, fmt.Sprintf("observation %q not found", id), nil)
}

// DuplicateObservationError creates an error for a content-hash collision within a project.
func DuplicateObservationError(contentHash string) *McbError {
	return New(ErrCodeDuplicateObservation, fmt.Sprintf("observation with content hash %q already exists", contentHash), nil).
		WithDetail("content_hash", contentHash)
}

// InvalidTransitionError creates an error for a rejected session FSM trigger.
func InvalidTransitionError(state, trigger string) *McbError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("trigger %q is not valid from state %q", trigger, state), nil).
		WithDetail("state", state).
		WithDetail("trigger", trigger)
}

// VersionConflictError creates an error for an optimistic-concurrency failure.
func VersionConflictError(sessionID string, expected, actual int) *McbError {
	return New(ErrCodeVersionConflict, fmt.Sprintf("session %q version conflict: expected %d, found %d", sessionID, expected, actual), nil)
}

// TerminalStateError creates an error for a trigger applied to a terminal state.
func TerminalStateError(state string) *McbError {
	return New(ErrCodeTerminalState, fmt.Sprintf("session is in terminal state %q and accepts no further triggers", state), nil)
}

// ModeMatrixViolationError creates an error for a tool call disallowed in the current execution flow.
func ModeMatrixViolationError(tool, flow string) *McbError {
	return New(ErrCodeModeMatrixViolation, fmt.Sprintf("tool %q is not permitted under execution flow %q", tool, flow), nil).
		WithDetail("tool", tool).
		WithDetail("execution_flow", flow)
}

// MissingProvenanceError creates an error listing every missing required provenance field.
func MissingProvenanceError(fields []string) *McbError {
	e := New(ErrCodeMissingProvenance, fmt.Sprintf("missing required provenance fields: %v", fields), nil)
	for _, f := range fields {
		e.Details = addMissing(e.Details, f)
	}
	return e
}

func addMissing(details map[string]string, field string) map[string]string {
	if details == nil {
		details = make(map[string]string)
	}
	details["missing_"+field] = "true"
	return details
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an McbError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*McbError); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*McbError); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an McbError.
// Returns empty string if not an McbError.
func GetCode(err error) string {
	if ae, ok := err.(*McbError); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an McbError.
// Returns empty string if not an McbError.
func GetCategory(err error) Category {
	if ae, ok := err.(*McbError); ok {
		return ae.Category
	}
	return ""
}
