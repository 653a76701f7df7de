// Package errors provides structured error handling for the audit services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Entry errors
	CodeEntryEmptyEventType  Code = "ENTRY_EMPTY_EVENT_TYPE"
	CodeEntryEmptyEntityType Code = "ENTRY_EMPTY_ENTITY_TYPE"
	CodeEntryEmptyEntityID   Code = "ENTRY_EMPTY_ENTITY_ID"
	CodeEntryEmptyAction     Code = "ENTRY_EMPTY_ACTION"
	CodeEntryInvalidValues   Code = "ENTRY_INVALID_VALUES"
	CodeEntryPreassignedMeta Code = "ENTRY_PREASSIGNED_METADATA"

	// Validation errors
	CodeValidateInvalidRange Code = "VALIDATE_INVALID_RANGE"

	// Signing errors
	CodeSigningUnavailable Code = "SIGNING_UNAVAILABLE"
	CodeSigningProvider    Code = "SIGNING_PROVIDER_FAILURE"

	// Retention errors
	CodeRetentionSweepRunning Code = "RETENTION_SWEEP_RUNNING"
	CodeRetentionInvalidBatch Code = "RETENTION_INVALID_BATCH_SIZE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeStorage  Code = "STORAGE_FAILURE"

	// Auth errors
	CodeAdminGrantInvalid Code = "ADMIN_GRANT_INVALID"
	CodeAdminGrantExpired Code = "ADMIN_GRANT_EXPIRED"
)

// HTTPStatus maps domain codes to HTTP status codes for the admin surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeEntryEmptyEventType,
		CodeEntryEmptyEntityType,
		CodeEntryEmptyEntityID,
		CodeEntryEmptyAction,
		CodeEntryInvalidValues,
		CodeEntryPreassignedMeta,
		CodeValidateInvalidRange,
		CodeRetentionInvalidBatch:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAdminGrantInvalid, CodeAdminGrantExpired:
		return http.StatusUnauthorized
	case CodeRetentionSweepRunning:
		return http.StatusConflict
	case CodeSigningUnavailable, CodeSigningProvider:
		return http.StatusServiceUnavailable
	case CodeStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
