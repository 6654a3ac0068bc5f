package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/internal/ctxkeys"
	"github.com/BaSui01/skillflow/skill/protocol"
	"github.com/BaSui01/skillflow/skill/transport"
	"github.com/BaSui01/skillflow/turn"
	"github.com/BaSui01/skillflow/types"
)

// maxActivityBody 入站活动请求体上限
const maxActivityBody = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	SkillID    string `json:"skill_id,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"` // 不序列化到 JSON
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 编码失败时响应头已写出，只能放弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	writeError(w, "", err, logger)
}

// WriteRequestError 与 WriteError 相同，附带请求上下文中的请求 ID
func WriteRequestError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	requestID, _ := ctxkeys.RequestID(r.Context())
	writeError(w, requestID, err, logger)
}

func writeError(w http.ResponseWriter, requestID string, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = mapErrorCodeToHTTPStatus(err.Code)
	}

	if logger != nil {
		logger.Error("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.String("skill_id", err.SkillID),
			zap.String("request_id", requestID),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:       string(err.Code),
			Message:    err.Message,
			SkillID:    err.SkillID,
			Retryable:  err.Retryable,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	// 4xx 客户端错误
	case types.ErrInvalidRequest, types.ErrInvalidActivity:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrNotFound, types.ErrSkillNotFound:
		return http.StatusNotFound
	case types.ErrRateLimited:
		return http.StatusTooManyRequests

	// 5xx 服务端错误
	case types.ErrNotImplemented:
		return http.StatusNotImplemented
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrSkillUnavailable, types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrSkillError:
		return http.StatusBadGateway
	case types.ErrProtocolMisuse, types.ErrTokenExchangeLimit, types.ErrInternalError:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom 把领域错误转换为 API 错误
func ErrorFrom(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}

	var httpErr *transport.HTTPError
	switch {
	case activity.IsDecodeError(err):
		return types.NewError(types.ErrInvalidActivity, "invalid activity").WithCause(err)
	case errors.As(err, &httpErr):
		if httpErr.StatusCode == http.StatusServiceUnavailable {
			return types.NewError(types.ErrSkillUnavailable, "skill unavailable").
				WithCause(err).WithSkill(httpErr.SkillID).WithRetryable(true)
		}
		return types.NewError(types.ErrSkillError, "skill returned an error").
			WithCause(err).WithSkill(httpErr.SkillID)
	case errors.Is(err, transport.ErrTokenExchangeLimit):
		return types.NewError(types.ErrTokenExchangeLimit, "too many token exchanges").WithCause(err)
	case errors.Is(err, transport.ErrNoTokenHandler),
		errors.Is(err, protocol.ErrNoTokenRequestHandler),
		errors.Is(err, protocol.ErrNoHandoffHandler):
		return types.NewError(types.ErrProtocolMisuse, "unexpected protocol activity").WithCause(err)
	case errors.Is(err, turn.ErrNotImplemented):
		return types.NewError(types.ErrNotImplemented, "operation not supported").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "request timed out").WithCause(err).WithRetryable(true)
	case errors.Is(err, transport.ErrForwardFailed):
		return types.NewError(types.ErrSkillUnavailable, "skill unreachable").WithCause(err).WithRetryable(true)
	default:
		return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeActivity 读取并解码请求体中的活动，失败时写出 400 并返回错误
func DecodeActivity(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*activity.Activity, error) {
	body, err := ReadBody(w, r, logger)
	if err != nil {
		return nil, err
	}
	a, err := activity.Decode(body)
	if err != nil {
		WriteRequestError(w, r, ErrorFrom(err), logger)
		return nil, err
	}
	return a, nil
}

// ReadBody 读取受限大小的请求体，失败时写出 400 并返回错误
func ReadBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger) ([]byte, error) {
	if r.Body == nil {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteRequestError(w, r, err, logger)
		return nil, err
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActivityBody))
	if err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "unreadable request body").
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteRequestError(w, r, apiErr, logger)
		return nil, apiErr
	}
	return body, nil
}

// ValidateContentType 验证 Content-Type
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		err := types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json")
		WriteRequestError(w, r, err, logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Size       int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Size += int64(n)
	return n, err
}

// Unwrap 暴露底层 ResponseWriter（websocket 升级需要 http.Hijacker）
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack 透传到底层连接
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
	}
	return hj.Hijack()
}
