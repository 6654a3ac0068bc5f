package turn

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Recover 将处理器中的 panic 转为错误，避免整个进程崩溃
func Recover(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, tc *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in turn handler",
						zap.Any("panic", r),
						zap.String("conversation_id", tc.Activity().ConversationID()),
					)
					err = fmt.Errorf("turn handler panic: %v", r)
				}
			}()
			return next.OnTurn(ctx, tc)
		})
	}
}

// Logging 记录每个轮次的活动类型与耗时
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, tc *Context) error {
			start := time.Now()
			err := next.OnTurn(ctx, tc)
			a := tc.Activity()
			fields := []zap.Field{
				zap.String("type", string(a.Type)),
				zap.String("name", a.Name),
				zap.String("channel_id", a.ChannelID),
				zap.String("conversation_id", a.ConversationID()),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("turn failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.Debug("turn completed", fields...)
			return nil
		})
	}
}
