package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/ctxkeys"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/internal/retry"
	"github.com/BaSui01/skillflow/internal/telemetry"
	"github.com/BaSui01/skillflow/internal/tlsutil"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/turn"
)

// maxErrorBody 限制写入 HTTPError 与诊断 trace 的响应体长度
const maxErrorBody = 4 << 10

// ForwardErrorValueType 是转发失败诊断 trace 的 valueType
const ForwardErrorValueType = "https://skillflow.dev/schemas/forward-error"

// TokenRequestHandler 处理 Skill 在对话中途发出的 tokens/request。
// 返回 tokens/response 活动；返回 nil 表示没有可用令牌，本次子交换中止但不算失败。
type TokenRequestHandler func(ctx context.Context, tc *turn.Context, request *activity.Activity) (*activity.Activity, error)

// Signer 为发往 Skill 的请求签名
type Signer interface {
	Sign(ctx context.Context, req *http.Request, audience string) error
}

// Transport 负责父 Bot 与一个 Skill 之间的活动转发
type Transport interface {
	// Forward 转发活动并投递 Skill 的回复，返回是否收到 endOfConversation
	Forward(ctx context.Context, tc *turn.Context, a *activity.Activity, onToken TokenRequestHandler) (bool, error)
	// CancelRemoteDialogs 通知 Skill 取消其全部对话
	CancelRemoteDialogs(ctx context.Context, tc *turn.Context) error
	// Disconnect 释放连接资源，可重复调用
	Disconnect()
}

// Options 配置 HTTPTransport
type Options struct {
	// Client 为 nil 时按 Timeout 创建加固的客户端
	Client  *http.Client
	Timeout time.Duration
	// Signer 为 nil 时不签名
	Signer Signer
	// MaxRetries 仅对未到达 Skill 逻辑的失败生效（拨号失败、503）
	MaxRetries int
	RetryDelay time.Duration
	// MaxTokenExchanges 单次 Forward 内允许的 tokens/response 转发次数
	MaxTokenExchanges int
	// MaxResponseBytes 单次回复体上限，超出时转发失败
	MaxResponseBytes int64

	Metrics *metrics.Collector
	// Instruments 为 nil 时基于全局 Meter 创建
	Instruments *telemetry.SkillInstruments
	Logger      *zap.Logger
}

// OptionsFromConfig 由传输配置构造 Options
func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		MaxTokenExchanges: cfg.MaxTokenExchanges,
		MaxResponseBytes:  cfg.MaxResponseBytes,
	}
}

// HTTPTransport 通过 HTTP POST 把活动转发到 Manifest 的 endpoint
type HTTPTransport struct {
	manifest     skill.Manifest
	client       *http.Client
	signer       Signer
	retryer      retry.Retryer
	maxExchanges int
	maxBody      int64
	metrics      *metrics.Collector
	instruments  *telemetry.SkillInstruments
	logger       *zap.Logger
}

// New 创建绑定到单个 Skill 的传输
func New(manifest skill.Manifest, opts Options) *HTTPTransport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "skill_transport"), zap.String("skill_id", manifest.ID))

	client := opts.Client
	if client == nil {
		copts := tlsutil.DefaultClientOptions()
		if opts.Timeout > 0 {
			copts.Timeout = opts.Timeout
		}
		client = tlsutil.SecureHTTPClient(copts)
	}

	maxExchanges := opts.MaxTokenExchanges
	if maxExchanges <= 0 {
		maxExchanges = config.DefaultTransportConfig().MaxTokenExchanges
	}

	maxBody := opts.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = config.DefaultTransportConfig().MaxResponseBytes
	}

	instruments := opts.Instruments
	if instruments == nil {
		var err error
		if instruments, err = telemetry.NewSkillInstruments(telemetry.Meter()); err != nil {
			logger.Warn("otel instruments unavailable", zap.Error(err))
		}
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = opts.MaxRetries
	if opts.RetryDelay > 0 {
		policy.InitialDelay = opts.RetryDelay
	}
	policy.Jitter = false

	return &HTTPTransport{
		manifest:     manifest,
		client:       client,
		signer:       opts.Signer,
		retryer:      retry.NewBackoffRetryer(policy, logger),
		maxExchanges: maxExchanges,
		maxBody:      maxBody,
		metrics:      opts.Metrics,
		instruments:  instruments,
		logger:       logger,
	}
}

// Manifest 返回传输绑定的 Skill
func (t *HTTPTransport) Manifest() skill.Manifest { return t.manifest }

// Forward 实现 Transport。
//
// 每一轮 HTTP 往返的回复按原顺序分类：endOfConversation 只做标记，
// tokens/request 交给 onToken 得到下一轮要转发的 tokens/response，
// 其余活动（包括 trace）作为一个批次投递到会话。
// 子交换在同一轮次内以有界循环完成，超过上限返回 ErrTokenExchangeLimit。
func (t *HTTPTransport) Forward(ctx context.Context, tc *turn.Context, a *activity.Activity, onToken TokenRequestHandler) (ended bool, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "skill.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			telemetry.AttrSkillID.String(t.manifest.ID),
			telemetry.AttrActivityType.String(string(a.Type)),
			telemetry.AttrActivityName.String(a.Name),
			telemetry.AttrConversationID.String(a.ConversationID()),
		),
	)
	defer func() {
		span.SetAttributes(telemetry.AttrEndOfConv.Bool(ended))
		telemetry.EndSpan(span, err)
	}()

	pending := []*activity.Activity{a}
	exchanges := 0

	for len(pending) > 0 {
		outbound := pending[0]
		pending = pending[1:]

		replies, err := t.post(ctx, tc, outbound)
		if err != nil {
			return ended, err
		}

		deliver := make([]*activity.Activity, 0, len(replies))
		var tokenRequests []*activity.Activity
		for _, r := range replies {
			switch {
			case r.IsEndOfConversation():
				ended = true
			case r.IsTokenRequest():
				tokenRequests = append(tokenRequests, r)
			default:
				deliver = append(deliver, r)
			}
		}

		if len(tokenRequests) > 0 && onToken == nil {
			t.recordTokenExchange(ctx, "error")
			return ended, fmt.Errorf("skill %s: %w", t.manifest.ID, ErrNoTokenHandler)
		}

		if err := t.deliver(ctx, tc, deliver); err != nil {
			return ended, err
		}

		for _, req := range tokenRequests {
			resp, err := onToken(ctx, tc, req)
			if err != nil {
				t.recordTokenExchange(ctx, "error")
				return ended, fmt.Errorf("skill %s token request: %w", t.manifest.ID, err)
			}
			if resp == nil {
				t.recordTokenExchange(ctx, "no_token")
				t.logger.Debug("no token available, sub-exchange aborted")
				continue
			}
			if exchanges >= t.maxExchanges {
				t.recordTokenExchange(ctx, "error")
				return ended, fmt.Errorf("skill %s: %w (%d)", t.manifest.ID, ErrTokenExchangeLimit, t.maxExchanges)
			}
			exchanges++
			t.recordTokenExchange(ctx, "token")
			pending = append(pending, resp)
		}
	}

	return ended, nil
}

// CancelRemoteDialogs 以回复形态的 cancelAllSkillDialogs 事件走同一路径转发，结果丢弃
func (t *HTTPTransport) CancelRemoteDialogs(ctx context.Context, tc *turn.Context) error {
	ev := tc.Activity().CreateReply("")
	ev.Type = activity.TypeEvent
	ev.Name = activity.EventCancelAllSkillDialogs
	ev.EnsureID()

	_, err := t.Forward(ctx, tc, ev, nil)
	t.metrics.RecordRemoteCancel(t.manifest.ID, err)
	return err
}

// Disconnect 关闭空闲连接
func (t *HTTPTransport) Disconnect() {
	t.client.CloseIdleConnections()
}

func (t *HTTPTransport) deliver(ctx context.Context, tc *turn.Context, batch []*activity.Activity) error {
	if len(batch) == 0 {
		return nil
	}
	if err := tc.SendActivities(ctx, batch); err != nil {
		return fmt.Errorf("deliver skill %s replies: %w", t.manifest.ID, err)
	}
	for _, a := range batch {
		t.metrics.RecordReplyDelivered(t.manifest.ID, string(a.Type))
	}
	return nil
}

// post 执行一次往返（含有界重试）并解码回复批次
func (t *HTTPTransport) post(ctx context.Context, tc *turn.Context, a *activity.Activity) ([]*activity.Activity, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode activity: %w", err)
	}

	body, err := retry.DoValue(ctx, t.retryer, func(ctx context.Context) ([]byte, error) {
		body, err := t.roundTrip(ctx, payload)
		if err != nil && unreached(err) {
			return nil, retry.WrapRetryable(err)
		}
		return body, err
	})
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			t.traceFailure(ctx, tc, httpErr)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: skill %s: %w", ErrForwardFailed, t.manifest.ID, err)
	}

	replies, err := activity.DecodeBatch(body)
	if err != nil {
		return nil, fmt.Errorf("skill %s reply: %w", t.manifest.ID, err)
	}
	return replies, nil
}

func (t *HTTPTransport) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.manifest.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id, ok := ctxkeys.RequestID(ctx); ok {
		req.Header.Set("X-Request-ID", id)
	}
	telemetry.InjectHeaders(ctx, req.Header)

	if t.signer != nil {
		if err := t.signer.Sign(ctx, req, t.manifest.AppID); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.recordForward(ctx, 0, time.Since(start))
		t.logger.Warn("skill request failed", append(logFields(ctx), zap.Error(err))...)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	t.recordForward(ctx, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > t.maxBody {
		t.logger.Error("skill response too large", append(logFields(ctx), zap.Int64("limit", t.maxBody))...)
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrResponseTooLarge, t.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		t.logger.Error("skill returned error status", append(logFields(ctx),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", time.Since(start)),
		)...)
		return nil, &HTTPError{SkillID: t.manifest.ID, StatusCode: resp.StatusCode, Body: string(body)}
	}

	t.logger.Debug("skill request completed", append(logFields(ctx),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)...)
	return body, nil
}

// traceFailure 向会话发送诊断 trace；发送失败只记录日志
func (t *HTTPTransport) traceFailure(ctx context.Context, tc *turn.Context, httpErr *HTTPError) {
	value := map[string]any{
		"skillId":    t.manifest.ID,
		"statusCode": httpErr.StatusCode,
		"body":       httpErr.Body,
	}
	tr := tc.Activity().CreateTrace("SkillForwardFailed", value, ForwardErrorValueType, "Skill HTTP failure")
	if err := tc.SendActivity(ctx, tr); err != nil {
		t.logger.Warn("failed to send forward failure trace", zap.Error(err))
	}
}

// unreached 判断请求是否确定没有到达 Skill 逻辑，只有这类失败才重试
func unreached(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusServiceUnavailable
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func (t *HTTPTransport) recordForward(ctx context.Context, status int, d time.Duration) {
	t.metrics.RecordForward(t.manifest.ID, status, d)
	t.instruments.RecordForward(ctx, t.manifest.ID, status, d)
}

func (t *HTTPTransport) recordTokenExchange(ctx context.Context, outcome string) {
	t.metrics.RecordTokenExchange(t.manifest.ID, outcome)
	t.instruments.RecordTokenExchange(ctx, t.manifest.ID, outcome)
}

// logFields 取出 context 中的请求与会话标识，父 Bot 与 Skill 两侧的日志据此关联
func logFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := ctxkeys.ConversationID(ctx); ok {
		fields = append(fields, zap.String("conversation_id", id))
	}
	return fields
}
