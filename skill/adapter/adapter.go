package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/internal/telemetry"
	"github.com/BaSui01/skillflow/turn"
)

// InvokeResponse 是一次调用的同步返回值：状态码加上按产生顺序排列的回复活动
type InvokeResponse struct {
	Status int                  `json:"status"`
	Body   []*activity.Activity `json:"body,omitempty"`
}

// Adapter 在 Skill 进程一侧把一次调用变成本地轮次。
// 轮次内发送的活动进入本次调用独占的出站队列，调用结束时作为一个批次返回。
type Adapter struct {
	handler turn.Handler
	metrics *metrics.Collector
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option 配置 Adapter
type Option func(*Adapter)

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Adapter) { a.metrics = c }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// New 创建适配器。handler 是 Skill 自身的轮次管道。
func New(handler turn.Handler, opts ...Option) *Adapter {
	a := &Adapter{
		handler: handler,
		logger:  zap.NewNop(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "skill_adapter"))
	return a
}

// Handle 解码请求体并处理。反序列化失败返回 400 响应与错误，业务逻辑不会运行。
func (a *Adapter) Handle(ctx context.Context, body []byte) (*InvokeResponse, error) {
	in, err := activity.Decode(body)
	if err != nil {
		a.metrics.RecordInvocation("", http.StatusBadRequest, 0)
		return &InvokeResponse{Status: http.StatusBadRequest}, err
	}
	return a.ProcessActivity(ctx, in)
}

// ProcessActivity 运行一个轮次并返回排队的活动。handler 出错时返回错误，由调用方映射为 500。
func (a *Adapter) ProcessActivity(ctx context.Context, in *activity.Activity) (resp *InvokeResponse, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "skill.invoke",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			telemetry.AttrActivityType.String(string(in.Type)),
			telemetry.AttrActivityName.String(in.Name),
			telemetry.AttrChannelID.String(in.ChannelID),
			telemetry.AttrConversationID.String(in.ConversationID()),
		),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	q := newOutboundQueue(in.ChannelID, a)
	tc := turn.NewContext(in, q)

	if err := a.handler.OnTurn(ctx, tc); err != nil {
		a.metrics.RecordInvocation(in.ChannelID, http.StatusInternalServerError, time.Since(start))
		return nil, fmt.Errorf("skill turn: %w", err)
	}

	replies := q.drain()
	a.metrics.RecordInvocation(in.ChannelID, http.StatusOK, time.Since(start))
	a.logger.Debug("invocation completed",
		zap.String("type", string(in.Type)),
		zap.String("conversation_id", in.ConversationID()),
		zap.Int("replies", len(replies)),
		zap.Duration("duration", time.Since(start)),
	)
	return &InvokeResponse{Status: http.StatusOK, Body: replies}, nil
}

// =============================================================================
// 出站队列
// =============================================================================

// outboundQueue 实现 turn.Sender，只属于一次调用
type outboundQueue struct {
	channelID string
	adapter   *Adapter

	mu    sync.Mutex
	items []*activity.Activity
}

func newOutboundQueue(channelID string, a *Adapter) *outboundQueue {
	return &outboundQueue{channelID: channelID, adapter: a}
}

// SendActivities 实现 turn.Sender。
// delay 暂停处理而不入队；trace 只在 emulator 渠道入队；typing 只在 test 渠道入队。
func (q *outboundQueue) SendActivities(ctx context.Context, batch []*activity.Activity) error {
	for _, a := range batch {
		queued := true
		switch a.Type {
		case activity.TypeDelay:
			queued = false
			d := time.Duration(a.DelayValue()) * time.Millisecond
			if err := q.adapter.sleep(ctx, d); err != nil {
				return err
			}
		case activity.TypeTrace:
			queued = q.channelID == activity.ChannelEmulator
		case activity.TypeTyping:
			queued = q.channelID == activity.ChannelTest
		}

		q.adapter.metrics.RecordActivityQueued(string(a.Type), queued)
		if !queued {
			continue
		}
		a.EnsureID()
		q.mu.Lock()
		q.items = append(q.items, a)
		q.mu.Unlock()
	}
	return nil
}

// UpdateActivity 不支持
func (q *outboundQueue) UpdateActivity(context.Context, *activity.Activity) error {
	return turn.ErrNotImplemented
}

// DeleteActivity 不支持
func (q *outboundQueue) DeleteActivity(context.Context, activity.ConversationReference, string) error {
	return turn.ErrNotImplemented
}

// drain 按产生顺序返回队列内容并清空队列
func (q *outboundQueue) drain() []*activity.Activity {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
