package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrTokenStore         ErrCode = "TOKEN_STORE_ERROR"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Sessions ──────────────────────────────────────────────────────
	ErrNoSession           ErrCode = "NO_SESSION"
	ErrSessionNotActive    ErrCode = "SESSION_NOT_ACTIVE"
	ErrResultNotReady      ErrCode = "RESULT_NOT_READY"
	ErrFaceNotRegistered   ErrCode = "FACE_NOT_REGISTERED"
	ErrExamLoadFailed      ErrCode = "EXAM_LOAD_FAILED"
	ErrFaceRegistration    ErrCode = "FACE_REGISTRATION_FAILED"
	ErrNotEnoughFaceImages ErrCode = "NOT_ENOUGH_FACE_IMAGES"

	// ─── Frames ────────────────────────────────────────────────────────
	ErrFrameRejected   ErrCode = "FRAME_REJECTED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"
	ErrExternalCamera  ErrCode = "EXTERNAL_CAMERA"

	// ─── Upstream ──────────────────────────────────────────────────────
	ErrUpstream        ErrCode = "EXAM_API_ERROR"
	ErrJournalDisabled ErrCode = "JOURNAL_DISABLED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect email or password."
	case ErrTokenRequired:
		return "Sign in before starting an exam."
	case ErrTokenExpired:
		return "Your sign-in has expired. Please sign in again."
	case ErrTokenStore:
		return "The stored credential could not be read."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "That answer does not belong to this exam."

	// ─── Sessions ──────────────────────────────────────────────────────
	case ErrNoSession:
		return "Exam session not found."
	case ErrSessionNotActive:
		return "This exam session is no longer active."
	case ErrResultNotReady:
		return "The exam has not been submitted yet."
	case ErrFaceNotRegistered:
		return "Face registration is required before taking this exam."
	case ErrExamLoadFailed:
		return "The exam could not be loaded."
	case ErrFaceRegistration:
		return "Face registration failed."
	case ErrNotEnoughFaceImages:
		return "Provide at least three face images."

	// ─── Frames ────────────────────────────────────────────────────────
	case ErrFrameRejected:
		return "The camera frame could not be read."
	case ErrUnsupportedFile:
		return "Unsupported image type."
	case ErrFileTooLarge:
		return "The image exceeds the size limit."
	case ErrExternalCamera:
		return "This station captures from an external camera."

	// ─── Upstream ──────────────────────────────────────────────────────
	case ErrUpstream:
		return "The exam service did not respond as expected."
	case ErrJournalDisabled:
		return "Attempt history is not enabled on this station."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrInternal:
		return "An internal error occurred."
	default:
		return "An unexpected error occurred."
	}
}
