package errs

import "errors"

// 业务错误码，透传给 SSE error 事件的 data.code
const (
	CodeArkNotConfigured = "ARK_NOT_CONFIGURED"
	CodeTimeout          = "VIBE_TIMEOUT"
	CodeAborted          = "VIBE_ABORTED"
	CodeStreamFailed     = "VIBE_STREAM_FAILED"
	CodeToolArgsInvalid  = "TOOL_ARGS_INVALID"
	CodeToolNotFound     = "TOOL_NOT_FOUND"
	CodeToolNotAllowed   = "TOOL_NOT_ALLOWED"
	CodeSkillNotFound    = "SKILL_NOT_FOUND"
	CodeInvalidReference = "INVALID_REFERENCE"
	CodeAssetNotFound    = "ASSET_NOT_FOUND"
)

type ServiceError struct {
	Code    string
	Message string
	cause   error
}

func New(code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

func Wrap(code, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, cause: cause}
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *ServiceError) Unwrap() error { return e.cause }

// CodeOf 提取错误链上的业务错误码，非业务错误归为 VIBE_STREAM_FAILED
func CodeOf(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeStreamFailed
}

func IsCode(err error, code string) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == code
}
