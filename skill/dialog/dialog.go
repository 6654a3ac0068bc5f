package dialog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/transport"
	"github.com/BaSui01/skillflow/turn"
)

// ErrNotActive Continue 被调用时会话中没有进行中的对话
var ErrNotActive = errors.New("dialog: skill dialog is not active")

// 诊断 trace 名称
const (
	TraceTokenRequest = "SkillTokenRequest"
	TraceNoToken      = "SkillNoToken"
)

// SkillDialog 管理一次 Skill 调用的状态机：
// NotStarted → Active → (AwaitingAuth) → Ended。
// 对话本身不持有会话状态，实例由 StateStore 按会话 ID 保存。
type SkillDialog struct {
	manifest  skill.Manifest
	transport transport.Transport
	store     StateStore
	auth      Authenticator
	metrics   *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time
}

// Option 配置 SkillDialog
type Option func(*SkillDialog)

// WithAuthenticator 设置认证子对话；未设置时 Skill 的令牌请求视为协议误用
func WithAuthenticator(a Authenticator) Option {
	return func(d *SkillDialog) { d.auth = a }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(d *SkillDialog) { d.metrics = c }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(d *SkillDialog) {
		if l != nil {
			d.logger = l
		}
	}
}

// New 创建 Skill 对话
func New(manifest skill.Manifest, tr transport.Transport, store StateStore, opts ...Option) *SkillDialog {
	d := &SkillDialog{
		manifest:  manifest,
		transport: tr,
		store:     store,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "skill_dialog"), zap.String("skill_id", manifest.ID))
	return d
}

// SkillID 返回对话绑定的 Skill
func (d *SkillDialog) SkillID() string { return d.manifest.ID }

// Begin 发送携带槽位的 skillBegin 事件。Skill 立即结束时实例直接进入 Ended，
// 否则保持 Active，等待下一轮入站活动。
func (d *SkillDialog) Begin(ctx context.Context, tc *turn.Context, slots skill.SlotContext) (*Instance, error) {
	now := d.now()
	inst := &Instance{SkillID: d.manifest.ID, State: StateNotStarted, StartedAt: now, UpdatedAt: now}
	d.transition(inst, StateActive)

	ev, err := beginEvent(tc.Activity(), slots, now)
	if err != nil {
		return d.fail(ctx, tc, inst, err)
	}

	ended, err := d.transport.Forward(ctx, tc, ev, d.tokenHandler(inst))
	if err != nil {
		return d.fail(ctx, tc, inst, err)
	}
	return d.afterForward(ctx, tc, inst, ended)
}

// Continue 用下一轮入站活动推进对话。认证子对话刚拿到令牌时转发 tokens/response，
// 否则原样转发入站活动。
func (d *SkillDialog) Continue(ctx context.Context, tc *turn.Context) (*Instance, error) {
	convID := tc.Activity().ConversationID()
	inst, err := d.store.Load(ctx, convID)
	if errors.Is(err, ErrNoInstance) {
		return nil, ErrNotActive
	}
	if err != nil {
		return nil, err
	}
	if !inst.InControl() || inst.SkillID != d.manifest.ID {
		return nil, ErrNotActive
	}

	outbound := tc.Activity()
	if inst.State == StateAwaitingAuth {
		outbound, err = d.continueAuth(ctx, tc, inst)
		if err != nil {
			return d.fail(ctx, tc, inst, err)
		}
		if outbound == nil {
			inst.UpdatedAt = d.now()
			if err := d.store.Save(ctx, convID, inst); err != nil {
				return nil, err
			}
			return inst, nil
		}
	}

	ended, err := d.transport.Forward(ctx, tc, outbound, d.tokenHandler(inst))
	d.transport.Disconnect()
	if err != nil {
		return d.fail(ctx, tc, inst, err)
	}
	inst.Turns++
	return d.afterForward(ctx, tc, inst, ended)
}

// End 结束对话。取消原因会先向 Skill 发送一次尽力而为的取消信号，
// 该信号失败只记录日志，不向上传播。
func (d *SkillDialog) End(ctx context.Context, tc *turn.Context, reason Reason) error {
	convID := tc.Activity().ConversationID()
	inst, err := d.store.Load(ctx, convID)
	if err != nil && !errors.Is(err, ErrNoInstance) {
		d.logger.Warn("failed to load dialog state on end", zap.Error(err))
	}
	if inst == nil {
		inst = &Instance{SkillID: d.manifest.ID, State: StateNotStarted}
	}

	if reason == ReasonCancelled {
		if err := d.transport.CancelRemoteDialogs(ctx, tc); err != nil {
			d.logger.Warn("cancel remote dialogs failed", zap.Error(err))
		}
	}

	d.transition(inst, StateEnded)
	d.logger.Info("skill dialog ended", zap.String("reason", string(reason)), zap.Int("turns", inst.Turns))
	return d.store.Delete(ctx, convID)
}

// tokenHandler 返回交给传输层的令牌请求处理器；未配置认证时返回 nil
func (d *SkillDialog) tokenHandler(inst *Instance) transport.TokenRequestHandler {
	if d.auth == nil {
		return nil
	}
	return func(ctx context.Context, tc *turn.Context, req *activity.Activity) (*activity.Activity, error) {
		trace := tc.Activity().CreateTrace(TraceTokenRequest, nil, "", "Received a token request from a skill")
		if err := tc.SendActivity(ctx, trace); err != nil {
			d.logger.Warn("failed to send token request trace", zap.Error(err))
		}

		tokenReq, err := req.TokenRequestValue()
		if err != nil {
			return nil, err
		}
		res, err := d.auth.Begin(ctx, tc, tokenReq)
		if err != nil {
			return nil, err
		}
		if res.Status == AuthWaiting {
			inst.PendingTokenRequest = req.Clone()
			d.transition(inst, StateAwaitingAuth)
			return nil, nil
		}
		if res.Token == nil {
			return nil, nil
		}
		return tokenResponse(req, tokenReq, res.Token)
	}
}

// continueAuth 推进等待中的认证子对话。返回 nil 活动表示本轮不转发。
func (d *SkillDialog) continueAuth(ctx context.Context, tc *turn.Context, inst *Instance) (*activity.Activity, error) {
	if d.auth == nil {
		return nil, errors.New("dialog: awaiting auth without an authenticator")
	}
	res, err := d.auth.Continue(ctx, tc)
	if err != nil {
		return nil, err
	}
	if res.Status == AuthWaiting {
		return nil, nil
	}

	req := inst.PendingTokenRequest
	inst.PendingTokenRequest = nil
	d.transition(inst, StateActive)

	if res.Token == nil || req == nil {
		trace := tc.Activity().CreateTrace(TraceNoToken, nil, "", "Authentication finished without a token")
		if err := tc.SendActivity(ctx, trace); err != nil {
			d.logger.Warn("failed to send no-token trace", zap.Error(err))
		}
		return nil, nil
	}

	tokenReq, err := req.TokenRequestValue()
	if err != nil {
		return nil, err
	}
	return tokenResponse(req, tokenReq, res.Token)
}

func (d *SkillDialog) afterForward(ctx context.Context, tc *turn.Context, inst *Instance, ended bool) (*Instance, error) {
	convID := tc.Activity().ConversationID()
	inst.UpdatedAt = d.now()
	if ended {
		d.transition(inst, StateEnded)
		return inst, d.store.Delete(ctx, convID)
	}
	return inst, d.store.Save(ctx, convID, inst)
}

// fail 先把对话结束再返回错误，会话不会停留在半转发状态
func (d *SkillDialog) fail(ctx context.Context, tc *turn.Context, inst *Instance, cause error) (*Instance, error) {
	d.transition(inst, StateEnded)
	d.logger.Error("skill dialog failed", zap.Error(cause))
	if err := d.store.Delete(ctx, tc.Activity().ConversationID()); err != nil {
		d.logger.Warn("failed to clear dialog state", zap.Error(err))
	}
	return inst, fmt.Errorf("skill %s: %w", d.manifest.ID, cause)
}

func (d *SkillDialog) transition(inst *Instance, to State) {
	from := inst.State
	if from == to {
		return
	}
	inst.State = to
	d.metrics.RecordDialogTransition(d.manifest.ID, string(from), string(to))
	d.logger.Info("skill dialog transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// beginEvent 构造 skillBegin 事件：沿用触发活动的渠道与参与者，value 为槽位
func beginEvent(trigger *activity.Activity, slots skill.SlotContext, now time.Time) (*activity.Activity, error) {
	ev := activity.NewEvent(activity.EventSkillBegin)
	ev.ChannelID = trigger.ChannelID
	ev.ServiceURL = trigger.ServiceURL
	ev.Locale = trigger.Locale
	ev.ChannelData = trigger.ChannelData
	if trigger.From != nil {
		from := *trigger.From
		ev.From = &from
	}
	if trigger.Recipient != nil {
		to := *trigger.Recipient
		ev.Recipient = &to
	}
	if trigger.Conversation != nil {
		conv := *trigger.Conversation
		ev.Conversation = &conv
	}
	ts := now.UTC()
	ev.Timestamp = &ts
	ev.EnsureID()

	if slots == nil {
		slots = skill.NewSlotContext()
	}
	if err := ev.SetValue(map[string]any(slots)); err != nil {
		return nil, fmt.Errorf("encode slots: %w", err)
	}
	return ev, nil
}

// tokenResponse 把令牌包装为回复请求活动的 tokens/response 事件
func tokenResponse(req *activity.Activity, tokenReq *activity.TokenRequest, tok *activity.TokenResponse) (*activity.Activity, error) {
	value := *tok
	if value.ConnectionName == "" {
		value.ConnectionName = tokenReq.ConnectionName
	}
	resp := req.CreateReply("")
	resp.Type = activity.TypeEvent
	resp.Name = activity.EventTokenResponse
	resp.EnsureID()
	if err := resp.SetValue(value); err != nil {
		return nil, fmt.Errorf("encode token response: %w", err)
	}
	return resp, nil
}
