package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/internal/ctxkeys"
	"github.com/BaSui01/skillflow/skill/protocol"
	"github.com/BaSui01/skillflow/skill/transport"
	"github.com/BaSui01/skillflow/turn"
	"github.com/BaSui01/skillflow/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{
			name:       "simple object",
			data:       map[string]string{"message": "hello"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "array",
			data:       []int{1, 2, 3},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "invalid activity",
			err:            types.NewError(types.ErrInvalidActivity, "missing type"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   string(types.ErrInvalidActivity),
		},
		{
			name:           "skill not found",
			err:            types.NewError(types.ErrSkillNotFound, "no such skill"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   string(types.ErrSkillNotFound),
		},
		{
			name:           "rate limit",
			err:            types.NewError(types.ErrRateLimited, "too many requests"),
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   string(types.ErrRateLimited),
		},
		{
			name:           "explicit status wins",
			err:            types.NewError(types.ErrInternalError, "teapot").WithHTTPStatus(http.StatusTeapot),
			expectedStatus: http.StatusTeapot,
			expectedCode:   string(types.ErrInternalError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteRequestError_CarriesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))

	WriteRequestError(w, r, types.NewError(types.ErrInvalidRequest, "bad"), zap.NewNop())

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestErrorFrom(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      types.ErrorCode
		skillID   string
		retryable bool
	}{
		{name: "decode", err: fmt.Errorf("wrap: %w", activity.ErrMissingType), code: types.ErrInvalidActivity},
		{name: "skill 503", err: &transport.HTTPError{SkillID: "w", StatusCode: 503}, code: types.ErrSkillUnavailable, skillID: "w", retryable: true},
		{name: "skill 500", err: &transport.HTTPError{SkillID: "w", StatusCode: 500}, code: types.ErrSkillError, skillID: "w"},
		{name: "exchange limit", err: transport.ErrTokenExchangeLimit, code: types.ErrTokenExchangeLimit},
		{name: "no token handler", err: transport.ErrNoTokenHandler, code: types.ErrProtocolMisuse},
		{name: "no handoff handler", err: protocol.ErrNoHandoffHandler, code: types.ErrProtocolMisuse},
		{name: "not implemented", err: turn.ErrNotImplemented, code: types.ErrNotImplemented},
		{name: "deadline", err: context.DeadlineExceeded, code: types.ErrTimeout, retryable: true},
		{name: "forward failed", err: fmt.Errorf("%w: dial", transport.ErrForwardFailed), code: types.ErrSkillUnavailable, retryable: true},
		{name: "already structured", err: types.NewError(types.ErrForbidden, "no"), code: types.ErrForbidden},
		{name: "other", err: errors.New("boom"), code: types.ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorFrom(tt.err)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.skillID, got.SkillID)
			assert.Equal(t, tt.retryable, got.Retryable)
		})
	}
}

func TestDecodeActivity(t *testing.T) {
	logger := zap.NewNop()

	t.Run("valid", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"message","text":"hi"}`))
		a, err := DecodeActivity(w, r, logger)
		require.NoError(t, err)
		assert.Equal(t, "hi", a.Text)
	})

	for name, body := range map[string]string{
		"missing type": `{"text":"hi"}`,
		"malformed":    `{"type":`,
		"oversized":    `{"type":"message","text":"` + strings.Repeat("x", 2<<20) + `"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			_, err := DecodeActivity(w, r, logger)
			assert.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{name: "valid application/json", contentType: "application/json", want: true},
		{name: "valid with charset", contentType: "application/json; charset=utf-8", want: true},
		{name: "valid with uppercase charset", contentType: "application/json; charset=UTF-8", want: true},
		{name: "valid with extra whitespace", contentType: "application/json;  charset=utf-8", want: true},
		{name: "invalid text/plain", contentType: "text/plain", want: false},
		{name: "empty", contentType: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, logger))
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	// 初始状态
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	// 写入状态码
	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	// 再次写入应该被忽略
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	n, err := rw.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(4), rw.Size)
	assert.Same(t, w, rw.Unwrap())
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrNotImplemented, http.StatusNotImplemented},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrSkillError, http.StatusBadGateway},
		{types.ErrSkillUnavailable, http.StatusServiceUnavailable},
		{types.ErrProtocolMisuse, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError}, // 默认
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
