package api

import (
	"errors"
	"fmt"

	"github.com/murmurhq/murmur/internal/models"
)

// Standard JSON-RPC error codes
const (
	ErrParseError     = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternalError  = -32603
)

// Application error codes, one per models error kind
const (
	ErrServer           = -32000
	ErrPermission       = -32003
	ErrNotFound         = -32004
	ErrStoreUnavailable = -32010
	ErrMedia            = -32011
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// invalidParams reports a params payload that did not decode
func invalidParams(err error) *Error {
	return NewError(ErrInvalidParams, "invalid params: "+err.Error())
}

// errorCode maps err onto a JSON-RPC code and a short message
func errorCode(err error) (int, string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message
	}
	switch models.KindOf(err) {
	case models.ErrValidation:
		return ErrInvalidParams, "Invalid params"
	case models.ErrNotFound:
		return ErrNotFound, "Not found"
	case models.ErrPermission:
		return ErrPermission, "Permission denied"
	case models.ErrStoreUnavailable:
		return ErrStoreUnavailable, "Store unavailable"
	case models.ErrMediaIO:
		return ErrMedia, "Media error"
	default:
		return ErrServer, "Server error"
	}
}
