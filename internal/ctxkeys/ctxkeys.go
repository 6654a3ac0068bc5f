package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey      contextKey = "request_id"
	conversationIDKey contextKey = "conversation_id"
	callerAppIDKey    contextKey = "caller_app_id"
)

func value(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return value(ctx, requestIDKey)
}

// WithConversationID 设置会话 ID
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationID 获取会话 ID
func ConversationID(ctx context.Context) (string, bool) {
	return value(ctx, conversationIDKey)
}

// WithCallerAppID 设置已认证的调用方应用 ID
func WithCallerAppID(ctx context.Context, appID string) context.Context {
	return context.WithValue(ctx, callerAppIDKey, appID)
}

// CallerAppID 获取已认证的调用方应用 ID
func CallerAppID(ctx context.Context) (string, bool) {
	return value(ctx, callerAppIDKey)
}
