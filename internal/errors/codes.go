// Package errors provides structured error handling for postindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index blobs, disk)
//   - 3XX: Network errors
//   - 4XX: Validation errors
//   - 5XX: Engine and worker errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates index blob and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates malformed requests.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates engine, worker and unexpected errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates a contract violation; the component is not trusted afterwards.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the component can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates a transient failure worth retrying.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid = "ERR_101_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeIndexCorrupt = "ERR_201_INDEX_CORRUPT"
	ErrCodeBuildFailed  = "ERR_202_BUILD_FAILED"

	// Network errors (300-399)
	ErrCodeFetchFailed = "ERR_301_FETCH_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidRequest = "ERR_401_INVALID_REQUEST"

	// Engine and worker errors (500-599)
	ErrCodeNotInitialized      = "ERR_501_NOT_INITIALIZED"
	ErrCodeEngineMissingExport = "ERR_502_ENGINE_MISSING_EXPORT"
	ErrCodeQueryFailed         = "ERR_503_QUERY_FAILED"
	ErrCodeWorkerFatal         = "ERR_504_WORKER_FATAL"
	ErrCodeTerminated          = "ERR_505_TERMINATED"
	ErrCodeInternal            = "ERR_599_INTERNAL"
)

// knownCodes lists every code that can be rebuilt from its wire form.
var knownCodes = map[string]struct{}{
	ErrCodeConfigInvalid:       {},
	ErrCodeIndexCorrupt:        {},
	ErrCodeBuildFailed:         {},
	ErrCodeFetchFailed:         {},
	ErrCodeInvalidRequest:      {},
	ErrCodeNotInitialized:      {},
	ErrCodeEngineMissingExport: {},
	ErrCodeQueryFailed:         {},
	ErrCodeWorkerFatal:         {},
	ErrCodeTerminated:          {},
	ErrCodeInternal:            {},
}

// IsKnownCode reports whether code is one of the codes defined above.
func IsKnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "301" from "ERR_301_FETCH_FAILED"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEngineMissingExport, ErrCodeWorkerFatal:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	return code == ErrCodeFetchFailed
}
