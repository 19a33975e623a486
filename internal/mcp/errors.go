// Package mcp exposes the article indexes to AI clients over the Model
// Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

// MCP error codes.
const (
	// ErrCodeIndexUnavailable indicates an index could not be fetched or loaded.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeWorkerUnavailable indicates the engine worker failed or was terminated.
	ErrCodeWorkerUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if ie, ok := pierrors.As(err); ok {
		return mapIndexError(ie)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapIndexError(ie *pierrors.IndexError) *MCPError {
	message := ie.Message
	if ie.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ie.Message, ie.Suggestion)
	}

	switch ie.Code {
	case pierrors.ErrCodeInvalidRequest, pierrors.ErrCodeQueryFailed:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case pierrors.ErrCodeFetchFailed, pierrors.ErrCodeIndexCorrupt,
		pierrors.ErrCodeNotInitialized, pierrors.ErrCodeEngineMissingExport:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case pierrors.ErrCodeWorkerFatal, pierrors.ErrCodeTerminated:
		return &MCPError{Code: ErrCodeWorkerUnavailable, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
