package chat

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorNotFound         ErrorCode = "NOT_FOUND"
	ErrorExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	ErrorUpstream         ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// Error is the single error a caller sees for a failed turn. Err keeps the
// underlying cause for logs and errors.Is.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("chat: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var reasonMessages = map[string]string{
	"empty_content":    "content is required",
	"missing_owner":    "owner_id is required when no conversation_id is given",
	"empty_attachment": "attached file is empty",
}

// Message is the human readable text returned to API clients.
func (e *Error) Message() string {
	switch e.Code {
	case ErrorInvalidInput:
		if msg, ok := reasonMessages[e.Reason]; ok {
			return msg
		}
		return "invalid request"
	case ErrorNotFound:
		return "conversation not found"
	case ErrorExtractionFailed:
		return "could not read the attached document"
	case ErrorUpstream:
		return "the AI service is unavailable, please try again"
	default:
		return "internal server error"
	}
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
