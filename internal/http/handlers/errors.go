// Package handlers defines the machine-readable error codes returned in the
// error envelope. Codes are lowercase snake_case; clients branch on them.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "busy",
//	  "message": "a message is already being sent"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeUnsupportedMedia = "unsupported_media_type"
	ErrCodeInternal         = "internal_error"

	// Conversation:
	ErrCodeBusy         = "busy"
	ErrCodeCreateFailed = "create_failed"
	ErrCodeSendFailed   = "send_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeUpdateFailed = "update_failed"

	// Identity service:
	ErrCodeAuthFailed      = "auth_failed"
	ErrCodeAuthUnavailable = "auth_unavailable"

	// Media and premium:
	ErrCodeUploadFailed = "upload_failed"
	ErrCodeUnknownPlan  = "unknown_plan"
)
