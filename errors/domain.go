package errors

import (
	"fmt"
	"net/http"
)

// DecodeFailed creates a new AppError for a media decode failure.
// Decode failures are fatal for the job that triggered them; any segments
// produced before the failure are discarded by the caller.
func DecodeFailed(input string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeDecodeFailed, Message: fmt.Sprintf("Failed to decode media input %q.", input),
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false,
		Details: map[string]any{"input": input}, Cause: cause,
	}
}

// TranscriptionFailed creates a new AppError for a transcription backend failure.
// The per-request call is not retried; retrying is left to the orchestration layer.
func TranscriptionFailed(status int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTranscriptionFailed, Message: "The transcription backend rejected the request.",
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"backend_status": status}, Cause: cause,
	}
}

// ProtocolViolation creates a new AppError for a transcription response that
// does not match the expected wire format.
func ProtocolViolation(reason string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeProtocolViolation, Message: fmt.Sprintf("Malformed transcription response: %s.", reason),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"reason": reason}, Cause: cause,
	}
}
