package errors

import "fmt"

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Is reports whether err carries the given error code anywhere in its chain.
func Is(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Error codes
const (
	ErrCodeAgentConfig      = "AGENT_CONFIG_INVALID"
	ErrCodeModelExhausted   = "MODEL_EXHAUSTED"
	ErrCodeModelTimeout     = "MODEL_TIMEOUT"
	ErrCodeToolExecution    = "TOOL_EXECUTION_FAILED"
	ErrCodeToolUnknown      = "TOOL_UNKNOWN"
	ErrCodeMaxToolCalls     = "MAX_TOOL_CALLS_EXCEEDED"
	ErrCodeRetrievalFailed  = "RETRIEVAL_FAILED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
)
