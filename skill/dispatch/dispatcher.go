package dispatch

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/ctxkeys"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/dialog"
	"github.com/BaSui01/skillflow/turn"
)

// lockStripes 会话锁分片数
const lockStripes = 64

// Options 配置 Dispatcher
type Options struct {
	// FallbackText 无法路由时的默认回复
	FallbackText string
	// CancelledText 取消进行中的 Skill 后的确认回复，为空时不回复
	CancelledText string
	// CancelIntents 视为取消的意图
	CancelIntents []string
}

// OptionsFromConfig 由父 Bot 配置构造 Options
func OptionsFromConfig(cfg config.ParentConfig) Options {
	return Options{
		FallbackText:  cfg.FallbackText,
		CancelledText: "Okay, I've cancelled that.",
		CancelIntents: cfg.CancelIntents,
	}
}

// Dispatcher 是父 Bot 的轮次处理器：有进行中的 Skill 对话时继续它，
// 否则识别意图并通过 Skill Router 开始新的对话，都不匹配时回复默认文本。
// 同一会话的轮次按顺序处理。
type Dispatcher struct {
	registry   *skill.Registry
	recognizer skill.Recognizer
	store      dialog.StateStore
	dialogs    map[string]*dialog.SkillDialog
	cancel     map[string]struct{}
	opts       Options
	logger     *zap.Logger

	locks [lockStripes]sync.Mutex
}

// New 创建 Dispatcher。dialogs 按 Skill ID 索引；recognizer 可以为 nil。
func New(registry *skill.Registry, recognizer skill.Recognizer, store dialog.StateStore, dialogs []*dialog.SkillDialog, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry:   registry,
		recognizer: recognizer,
		store:      store,
		dialogs:    make(map[string]*dialog.SkillDialog, len(dialogs)),
		cancel:     make(map[string]struct{}, len(opts.CancelIntents)),
		opts:       opts,
		logger:     logger.With(zap.String("component", "dispatcher")),
	}
	for _, dlg := range dialogs {
		d.dialogs[dlg.SkillID()] = dlg
	}
	for _, intent := range opts.CancelIntents {
		d.cancel[strings.ToLower(intent)] = struct{}{}
	}
	return d
}

// OnTurn 实现 turn.Handler
func (d *Dispatcher) OnTurn(ctx context.Context, tc *turn.Context) error {
	convID := tc.Activity().ConversationID()
	mu := d.lockFor(convID)
	mu.Lock()
	defer mu.Unlock()

	ctx = ctxkeys.WithConversationID(ctx, convID)

	rec, err := d.recognize(ctx, tc)
	if err != nil {
		return err
	}

	inst, err := d.store.Load(ctx, convID)
	if err != nil && !errors.Is(err, dialog.ErrNoInstance) {
		return err
	}

	if inst.InControl() {
		dlg, ok := d.dialogs[inst.SkillID]
		if !ok {
			d.logger.Warn("active dialog for unknown skill, clearing", zap.String("skill_id", inst.SkillID))
			if err := d.store.Delete(ctx, convID); err != nil {
				return err
			}
			return tc.SendText(ctx, d.opts.FallbackText)
		}

		if d.isCancel(rec.Intent) {
			if err := dlg.End(ctx, tc, dialog.ReasonCancelled); err != nil {
				return err
			}
			if d.opts.CancelledText != "" {
				return tc.SendText(ctx, d.opts.CancelledText)
			}
			return nil
		}

		_, err := dlg.Continue(ctx, tc)
		return d.handleSkillError(ctx, tc, dlg.SkillID(), err)
	}

	if rec.None() || d.isCancel(rec.Intent) {
		return tc.SendText(ctx, d.opts.FallbackText)
	}

	manifest, ok := d.registry.Resolve(rec.Intent)
	if !ok {
		d.logger.Debug("no skill for intent", zap.String("intent", rec.Intent))
		return tc.SendText(ctx, d.opts.FallbackText)
	}
	dlg, ok := d.dialogs[manifest.ID]
	if !ok {
		d.logger.Warn("skill resolved without a dialog", zap.String("skill_id", manifest.ID))
		return tc.SendText(ctx, d.opts.FallbackText)
	}

	slots := skill.BuildSlotContext(manifest.Action(rec.Intent), rec.Entities)
	d.logger.Info("beginning skill",
		zap.String("skill_id", manifest.ID),
		zap.String("intent", rec.Intent),
		zap.Int("slots", len(slots)),
	)
	_, err = dlg.Begin(ctx, tc, slots)
	return d.handleSkillError(ctx, tc, manifest.ID, err)
}

// handleSkillError 记录失败并回复默认文本。对话已在返回错误前进入 ended。
func (d *Dispatcher) handleSkillError(ctx context.Context, tc *turn.Context, skillID string, err error) error {
	if err == nil {
		return nil
	}
	d.logger.Error("skill turn failed", zap.String("skill_id", skillID), zap.Error(err))
	return tc.SendText(ctx, d.opts.FallbackText)
}

func (d *Dispatcher) recognize(ctx context.Context, tc *turn.Context) (skill.Recognition, error) {
	if d.recognizer == nil {
		return skill.Recognition{}, nil
	}
	return d.recognizer.Recognize(ctx, tc.Activity())
}

func (d *Dispatcher) isCancel(intent string) bool {
	if intent == "" {
		return false
	}
	_, ok := d.cancel[strings.ToLower(intent)]
	return ok
}

func (d *Dispatcher) lockFor(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return &d.locks[h.Sum32()%lockStripes]
}
