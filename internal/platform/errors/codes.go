// Package errors provides structured error handling for streakd services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeUserIDRequired Code = "USER_ID_REQUIRED"
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// Event errors
	CodeEventSeqGap        Code = "EVENT_SEQ_GAP"
	CodeEventUnknownType   Code = "EVENT_UNKNOWN_TYPE"
	CodeEventPayloadBroken Code = "EVENT_PAYLOAD_BROKEN"

	// Projection errors
	CodeProjectionStale    Code = "PROJECTION_STALE"
	CodeProjectionConflict Code = "PROJECTION_CONFLICT"

	// Storage errors
	CodeNotFound    Code = "NOT_FOUND"
	CodeStoreFailed Code = "STORE_FAILED"
)

// HTTPStatus maps domain error codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUserIDRequired, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeProjectionStale, CodeProjectionConflict:
		return http.StatusConflict
	case CodeEventSeqGap, CodeEventUnknownType, CodeEventPayloadBroken:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
