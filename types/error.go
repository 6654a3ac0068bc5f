package types

import (
	"errors"
	"fmt"
)

// ErrorCode 是 API 层统一的错误码
type ErrorCode string

// 请求错误码
const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrInvalidActivity ErrorCode = "INVALID_ACTIVITY"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrNotImplemented  ErrorCode = "NOT_IMPLEMENTED"
)

// Skill 错误码
const (
	ErrSkillNotFound      ErrorCode = "SKILL_NOT_FOUND"
	ErrSkillUnavailable   ErrorCode = "SKILL_UNAVAILABLE"
	ErrSkillError         ErrorCode = "SKILL_ERROR"
	ErrProtocolMisuse     ErrorCode = "PROTOCOL_MISUSE"
	ErrTokenExchangeLimit ErrorCode = "TOKEN_EXCHANGE_LIMIT"
)

// 服务端错误码
const (
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error 是带错误码与元数据的结构化错误
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	SkillID    string    `json:"skill_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层原因
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 创建结构化错误
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause 设置底层原因
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus 设置 HTTP 状态码
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable 标记是否可重试
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithSkill 设置相关的 Skill ID
func (e *Error) WithSkill(skillID string) *Error {
	e.SkillID = skillID
	return e
}

// AsError 从错误链中提取 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
