package echobot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/turn"
)

// Config 配置回显 Skill
type Config struct {
	// ConnectionName 登录时 tokens/request 携带的连接名
	ConnectionName string
	// ReplyDelay 回显前发送的 delay 活动时长，0 表示不停顿
	ReplyDelay time.Duration
}

// ConfigFrom 由 Skill 发布配置构造 Config
func ConfigFrom(cfg config.SkillHostConfig) Config {
	return Config{ConnectionName: cfg.ConnectionName, ReplyDelay: cfg.ReplyDelay}
}

// Bot 是一个演示用 Skill：回显消息，"login" 请求令牌，"bye"/"stop" 交还控制权
type Bot struct {
	cfg    Config
	logger *zap.Logger
}

// New 创建回显 Skill
func New(cfg Config, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{cfg: cfg, logger: logger.With(zap.String("component", "echobot"))}
}

// OnTurn 实现 turn.Handler
func (b *Bot) OnTurn(ctx context.Context, tc *turn.Context) error {
	in := tc.Activity()
	switch in.Type {
	case activity.TypeMessage:
		return b.onMessage(ctx, tc)
	case activity.TypeEvent:
		return b.onEvent(ctx, tc)
	case activity.TypeEndOfConversation:
		b.logger.Debug("caller ended the conversation", zap.String("conversation_id", in.ConversationID()))
		return nil
	default:
		return nil
	}
}

func (b *Bot) onMessage(ctx context.Context, tc *turn.Context) error {
	in := tc.Activity()
	text := strings.TrimSpace(in.Text)

	switch strings.ToLower(text) {
	case "login":
		req := in.CreateReply("")
		req.Type = activity.TypeEvent
		req.Name = activity.EventTokenRequest
		if err := req.SetValue(activity.TokenRequest{ConnectionName: b.cfg.ConnectionName}); err != nil {
			return err
		}
		return tc.SendActivities(ctx, []*activity.Activity{
			in.CreateReply("Signing you in..."),
			req,
		})
	case "bye", "stop":
		eoc := in.CreateReply("")
		eoc.Type = activity.TypeEndOfConversation
		eoc.Code = activity.EndCodeCompletedSuccessfully
		return tc.SendActivities(ctx, []*activity.Activity{in.CreateReply("Goodbye!"), eoc})
	}

	batch := []*activity.Activity{
		{Type: activity.TypeTyping},
	}
	if b.cfg.ReplyDelay > 0 {
		delay := &activity.Activity{Type: activity.TypeDelay}
		if err := delay.SetValue(b.cfg.ReplyDelay.Milliseconds()); err != nil {
			return err
		}
		batch = append(batch, delay)
	}
	batch = append(batch,
		in.CreateTrace("EchoTrace", map[string]any{"text": text, "length": len(text)}, "", "echo"),
		in.CreateReply(fmt.Sprintf("Echo: %s", text)),
	)
	return tc.SendActivities(ctx, batch)
}

func (b *Bot) onEvent(ctx context.Context, tc *turn.Context) error {
	in := tc.Activity()
	switch in.Name {
	case activity.EventSkillBegin:
		slots, err := in.SlotValues()
		if err != nil {
			return err
		}
		return tc.SendActivity(ctx, in.CreateReply(greeting(slots)))

	case activity.EventTokenResponse:
		tok, err := in.TokenResponseValue()
		if err != nil {
			return err
		}
		if tok.Token == "" {
			return tc.SendText(ctx, "Sign-in did not complete.")
		}
		b.logger.Info("token received",
			zap.String("conversation_id", in.ConversationID()),
			zap.String("connection", tok.ConnectionName),
		)
		return tc.SendText(ctx, "You're signed in.")

	case activity.EventCancelAllSkillDialogs:
		eoc := in.CreateReply("")
		eoc.Type = activity.TypeEndOfConversation
		eoc.Code = activity.EndCodeUserCancelled
		return tc.SendActivity(ctx, eoc)
	}
	return nil
}

// greeting 按键名排序列出槽位，保证输出稳定
func greeting(slots map[string]any) string {
	if len(slots) == 0 {
		return "Echo skill ready. Say anything, \"login\" or \"bye\"."
	}
	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, slots[k])
	}
	return "Echo skill ready with " + strings.Join(parts, ", ") + "."
}
