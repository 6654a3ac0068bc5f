package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrForwardFailed Skill 返回非 2xx 状态或请求无法送达
	ErrForwardFailed = errors.New("transport: forward to skill failed")
	// ErrNoTokenHandler Skill 请求令牌但调用方没有提供处理器
	ErrNoTokenHandler = errors.New("transport: token request received without a handler")
	// ErrTokenExchangeLimit 单轮内的令牌交换次数超过上限
	ErrTokenExchangeLimit = errors.New("transport: token exchange limit exceeded")
	// ErrResponseTooLarge Skill 回复体超过 MaxResponseBytes
	ErrResponseTooLarge = errors.New("transport: skill response too large")
)

// HTTPError 携带 Skill 的非 2xx 响应
type HTTPError struct {
	SkillID    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("skill %s returned status %d: %s", e.SkillID, e.StatusCode, e.Body)
}

// Unwrap 使 errors.Is(err, ErrForwardFailed) 成立
func (e *HTTPError) Unwrap() error { return ErrForwardFailed }
