package turn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/skillflow/activity"
)

// ErrNotImplemented 表示发送通道不支持该操作（区别于运行时失败）
var ErrNotImplemented = errors.New("turn: operation not implemented")

// Sender 是“发送/接收活动”的能力接口。
// 适配器通过组合实现它，而不是继承某个通用通道适配器。
type Sender interface {
	// SendActivities 按顺序发送一批活动
	SendActivities(ctx context.Context, batch []*activity.Activity) error
	// UpdateActivity 替换已发送的活动
	UpdateActivity(ctx context.Context, a *activity.Activity) error
	// DeleteActivity 按 ID 删除已发送的活动
	DeleteActivity(ctx context.Context, ref activity.ConversationReference, activityID string) error
}

// Context 是一次轮次的上下文：入站活动加上发送能力
type Context struct {
	activity *activity.Activity
	sender   Sender

	mu        sync.Mutex
	responded bool
	values    map[string]any
}

// NewContext 创建轮次上下文
func NewContext(a *activity.Activity, sender Sender) *Context {
	return &Context{activity: a, sender: sender, values: make(map[string]any)}
}

// Activity 返回本轮的入站活动
func (c *Context) Activity() *activity.Activity { return c.activity }

// Reference 返回入站活动的会话引用
func (c *Context) Reference() activity.ConversationReference {
	return c.activity.Reference()
}

// Responded 报告本轮是否已发送过消息
func (c *Context) Responded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responded
}

// Set 保存轮次内共享的值
func (c *Context) Set(key string, v any) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// Get 读取轮次内共享的值
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}

// SendText 回复一条文本消息
func (c *Context) SendText(ctx context.Context, text string) error {
	return c.SendActivities(ctx, []*activity.Activity{c.activity.CreateReply(text)})
}

// SendActivity 发送单个活动
func (c *Context) SendActivity(ctx context.Context, a *activity.Activity) error {
	return c.SendActivities(ctx, []*activity.Activity{a})
}

// SendActivities 以一个批次发送活动。缺少会话寻址的活动按入站活动补齐。
func (c *Context) SendActivities(ctx context.Context, batch []*activity.Activity) error {
	if len(batch) == 0 {
		return nil
	}
	ref := c.Reference()
	out := make([]*activity.Activity, 0, len(batch))
	for _, a := range batch {
		if a == nil {
			continue
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("send activity: %w", err)
		}
		if a.Conversation == nil {
			a = a.Clone().ApplyReference(ref, false)
		}
		out = append(out, a)
	}
	if err := c.sender.SendActivities(ctx, out); err != nil {
		return err
	}

	c.mu.Lock()
	for _, a := range out {
		if a.Type == activity.TypeMessage {
			c.responded = true
			break
		}
	}
	c.mu.Unlock()
	return nil
}

// UpdateActivity 更新已发送的活动
func (c *Context) UpdateActivity(ctx context.Context, a *activity.Activity) error {
	return c.sender.UpdateActivity(ctx, a)
}

// DeleteActivity 删除已发送的活动
func (c *Context) DeleteActivity(ctx context.Context, activityID string) error {
	return c.sender.DeleteActivity(ctx, c.Reference(), activityID)
}

// =============================================================================
// Handler 管道
// =============================================================================

// Handler 处理一个轮次
type Handler interface {
	OnTurn(ctx context.Context, tc *Context) error
}

// HandlerFunc 函数适配器
type HandlerFunc func(ctx context.Context, tc *Context) error

// OnTurn 实现 Handler
func (f HandlerFunc) OnTurn(ctx context.Context, tc *Context) error { return f(ctx, tc) }

// Middleware 包装 Handler
type Middleware func(Handler) Handler

// Chain 组合中间件，第一个中间件在最外层
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
