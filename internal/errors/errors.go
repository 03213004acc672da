package errors

import (
	"errors"
	"fmt"
)

// DocError is the structured error type for docindex.
// It carries enough context for logging, CLI output and MCP error mapping.
type DocError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DocError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DocError) Unwrap() error {
	return e.Cause
}

// Is matches another DocError by code so errors.Is works against
// the sentinel values below.
func (e *DocError) Is(target error) bool {
	if t, ok := target.(*DocError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *DocError) WithDetail(key, value string) *DocError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DocError) WithSuggestion(suggestion string) *DocError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DocError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DocError {
	return &DocError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DocError from an existing error.
func Wrap(code string, err error) *DocError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is checks. Only the code is compared.
var (
	ErrScan            = &DocError{Code: ErrCodeScanFailed}
	ErrPolicyViolation = &DocError{Code: ErrCodePolicyViolation}
	ErrCacheCorruption = &DocError{Code: ErrCodeCacheCorrupt}
	ErrEmbedding       = &DocError{Code: ErrCodeEmbeddingFailed}
	ErrEmbedTimeout    = &DocError{Code: ErrCodeEmbedTimeout}
	ErrModelLoad       = &DocError{Code: ErrCodeModelLoadFailed}
	ErrCorruptIndex    = &DocError{Code: ErrCodeCorruptIndex}
	ErrUnsupported     = &DocError{Code: ErrCodeUnsupportedFormat}
)

// ScanError reports a stat or permission failure for a single path.
func ScanError(path string, cause error) *DocError {
	return New(ErrCodeScanFailed, "cannot stat file", cause).WithDetail("path", path)
}

// PolicyViolationError reports a path the policy oracle denied.
func PolicyViolationError(path, reason string) *DocError {
	return New(ErrCodePolicyViolation, "access denied by policy", nil).
		WithDetail("path", path).
		WithDetail("reason", reason)
}

// CacheCorruptionError reports an unreadable cache or state file.
func CacheCorruptionError(path string, cause error) *DocError {
	return New(ErrCodeCacheCorrupt, "cache file is corrupt, starting empty", cause).
		WithDetail("path", path)
}

// EmbeddingError reports a failed encode call.
func EmbeddingError(message string, cause error) *DocError {
	return New(ErrCodeEmbeddingFailed, message, cause).
		WithSuggestion("Check that the embedding backend is running, or set embeddings.provider to 'hash' for offline use")
}

// ModelLoadError reports a model that could not be initialised.
func ModelLoadError(model string, cause error) *DocError {
	return New(ErrCodeModelLoadFailed, "failed to load embedding model", cause).
		WithDetail("model", model)
}

// CorruptIndexError reports an inconsistent persisted index.
func CorruptIndexError(message string, cause error) *DocError {
	return New(ErrCodeCorruptIndex, message, cause).
		WithSuggestion("Run 'docindex index --force' to rebuild the index")
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *DocError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DocError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var de *DocError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var de *DocError
	if errors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a DocError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var de *DocError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// GetCategory extracts the category from a DocError.
func GetCategory(err error) Category {
	var de *DocError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}
