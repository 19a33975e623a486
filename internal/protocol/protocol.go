// Package protocol defines the newline-delimited JSON frames exchanged
// between the façade client and the index engine host.
package protocol

import (
	"encoding/json"
	"fmt"

	pierrors "github.com/Aman-CERP/postindex/internal/errors"
)

// MessageType names a request or response frame.
type MessageType string

// Request types.
const (
	TypeInitSearch MessageType = "initSearch"
	TypeInitFilter MessageType = "initFilter"
	TypeSearch     MessageType = "search"
	TypeSuggest    MessageType = "suggest"
	TypeFilter     MessageType = "filter"
	TypeGetTags    MessageType = "getTags"
)

// Response types.
const (
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"

	// TypeFatal is the worker-global error event. It is not tied to a
	// request and always carries id 0.
	TypeFatal MessageType = "fatal"
)

// FatalID is the id carried by fatal frames. Request ids start at 1.
const FatalID uint64 = 0

// Request is a client to host frame.
type Request struct {
	ID      uint64          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is a host to client frame.
type Response struct {
	ID      uint64          `json:"id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error object of error and fatal frames.
type Error struct {
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// InitPayload is the payload of initSearch and initFilter.
type InitPayload struct {
	IndexURL string `json:"indexUrl"`
}

// InitResult is the result of a successful init.
type InitResult struct {
	Ready bool `json:"ready"`
}

// SearchPayload is the payload of search and suggest.
type SearchPayload struct {
	Request SearchRequest `json:"request"`
}

// FilterPayload is the payload of filter.
type FilterPayload struct {
	Request FilterRequest `json:"request"`
}

// NewRequest builds a request frame, encoding payload when it is non-nil.
func NewRequest(id uint64, typ MessageType, payload any) (Request, error) {
	req := Request{ID: id, Type: typ}
	if payload == nil {
		return req, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Request{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	req.Payload = data
	return req, nil
}

// DecodePayload decodes the request payload into v.
// A missing payload is reported as an invalid request.
func (r Request) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return pierrors.InvalidRequest(fmt.Sprintf("%s request has no payload", r.Type))
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return pierrors.New(pierrors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid %s payload: %v", r.Type, err), err)
	}
	return nil
}

// NewResult builds a result frame for id.
func NewResult(id uint64, payload any) (Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode result: %w", err)
	}
	return Response{ID: id, Type: TypeResult, Payload: data}, nil
}

// NewRawResult builds a result frame from an already encoded JSON payload.
func NewRawResult(id uint64, payload json.RawMessage) Response {
	return Response{ID: id, Type: TypeResult, Payload: payload}
}

// NewErrorResponse builds an error frame for id, carrying the error code
// when err is a structured error.
func NewErrorResponse(id uint64, err error) Response {
	return Response{ID: id, Type: TypeError, Error: wireError(err)}
}

// NewFatal builds the worker-global fatal frame.
func NewFatal(err error) Response {
	return Response{ID: FatalID, Type: TypeFatal, Error: wireError(err)}
}

func wireError(err error) *Error {
	if ie, ok := pierrors.As(err); ok {
		return &Error{Message: ie.Message, Code: ie.Code, Suggestion: ie.Suggestion}
	}
	return &Error{Message: err.Error()}
}

// Err returns the error carried by an error or fatal frame, nil otherwise.
func (r Response) Err() error {
	switch r.Type {
	case TypeError, TypeFatal:
	default:
		return nil
	}
	if r.Error == nil {
		return pierrors.FromWire("", fmt.Sprintf("%s frame without error object", r.Type))
	}
	ie := pierrors.FromWire(r.Error.Code, r.Error.Message)
	if r.Error.Suggestion != "" {
		ie = ie.WithSuggestion(r.Error.Suggestion)
	}
	return ie
}

// DecodeResult decodes a result payload into v.
func (r Response) DecodeResult(v any) error {
	if len(r.Payload) == 0 {
		return pierrors.QueryFailed("result frame has no payload", nil)
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return pierrors.QueryFailed(fmt.Sprintf("decode result: %v", err), err)
	}
	return nil
}
