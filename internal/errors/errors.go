package errors

import (
	stderrors "errors"
	"fmt"
)

// IndexError is the structured error type for postindex.
// It crosses the worker boundary as a code plus message and is rebuilt on
// the client side with FromWire.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_301_FETCH_FAILED").
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
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is matches another *IndexError by code, so errors.Is(err, errors.New(code, "", nil))
// works regardless of message.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// FromWire rebuilds an error received from the other side of the worker
// boundary. Unknown or empty codes become ErrCodeQueryFailed, which is what
// an error response without taxonomy means to a caller.
func FromWire(code, message string) *IndexError {
	if !IsKnownCode(code) {
		code = ErrCodeQueryFailed
	}
	return New(code, message, nil)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// NotInitialized reports a query against a capability that never received
// its URL-bearing init call.
func NotInitialized(capability string) *IndexError {
	return New(ErrCodeNotInitialized, fmt.Sprintf("%s index not initialized", capability), nil).
		WithDetail("capability", capability).
		WithSuggestion("call the init operation with an index URL first")
}

// FetchFailed reports an HTTP or transport failure while fetching an index blob.
func FetchFailed(message string, cause error) *IndexError {
	return New(ErrCodeFetchFailed, message, cause)
}

// IndexCorrupt reports an index blob the engine could not be constructed from.
func IndexCorrupt(message string, cause error) *IndexError {
	return New(ErrCodeIndexCorrupt, message, cause)
}

// EngineMissingExport reports an engine module lacking a required entrypoint.
func EngineMissingExport(module, export string) *IndexError {
	return New(ErrCodeEngineMissingExport, fmt.Sprintf("%s is missing export %s", module, export), nil).
		WithDetail("module", module).
		WithDetail("export", export)
}

// BuildFailed reports an index build that could not read its sources or
// write its output.
func BuildFailed(message string, cause error) *IndexError {
	return New(ErrCodeBuildFailed, message, cause)
}

// QueryFailed reports an engine that rejected or failed a query.
func QueryFailed(message string, cause error) *IndexError {
	return New(ErrCodeQueryFailed, message, cause)
}

// InvalidRequest reports a malformed or unknown request envelope.
func InvalidRequest(message string) *IndexError {
	return New(ErrCodeInvalidRequest, message, nil)
}

// WorkerFatal reports a worker-global failure broadcast to every pending request.
func WorkerFatal(message string, cause error) *IndexError {
	return New(ErrCodeWorkerFatal, message, cause)
}

// Terminated reports a request that was outstanding when the worker was terminated.
func Terminated() *IndexError {
	return New(ErrCodeTerminated, "worker terminated", nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *IndexError in err's chain.
func As(err error) (*IndexError, bool) {
	var ie *IndexError
	if stderrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ie, ok := As(err); ok {
		return ie.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an IndexError.
// Returns empty string if not an IndexError.
func GetCode(err error) string {
	if ie, ok := As(err); ok {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category from an IndexError.
// Returns empty string if not an IndexError.
func GetCategory(err error) Category {
	if ie, ok := As(err); ok {
		return ie.Category
	}
	return ""
}
