package handlers

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/turn"
	"github.com/BaSui01/skillflow/types"
)

// =============================================================================
// 💬 父 Bot 消息 Handler
// =============================================================================

// MessagesResponse 是一轮对话产生的回复
type MessagesResponse struct {
	ConversationID string               `json:"conversation_id"`
	Activities     []*activity.Activity `json:"activities"`
}

// MessagesHandler 把渠道投递的活动交给父 Bot 处理，同步返回本轮回复
type MessagesHandler struct {
	bot    turn.Handler
	logger *zap.Logger
}

// NewMessagesHandler 创建消息处理器
func NewMessagesHandler(bot turn.Handler, logger *zap.Logger) *MessagesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagesHandler{bot: bot, logger: logger.With(zap.String("handler", "messages"))}
}

// HandleMessages 处理 POST /api/messages
func (h *MessagesHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	in, err := DecodeActivity(w, r, h.logger)
	if err != nil {
		return
	}
	if in.ConversationID() == "" {
		WriteRequestError(w, r, types.NewError(types.ErrInvalidActivity, "conversation.id is required"), h.logger)
		return
	}

	replies := &replyCollector{}
	if err := h.bot.OnTurn(r.Context(), turn.NewContext(in, replies)); err != nil {
		WriteRequestError(w, r, ErrorFrom(err), h.logger)
		return
	}

	WriteSuccess(w, MessagesResponse{
		ConversationID: in.ConversationID(),
		Activities:     replies.activities(),
	})
}

// replyCollector 收集一轮内发送的活动
type replyCollector struct {
	mu    sync.Mutex
	items []*activity.Activity
}

func (c *replyCollector) SendActivities(_ context.Context, batch []*activity.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range batch {
		a.EnsureID()
		c.items = append(c.items, a)
	}
	return nil
}

// UpdateActivity 替换本轮已收集的同 ID 活动
func (c *replyCollector) UpdateActivity(_ context.Context, a *activity.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if existing.ID == a.ID {
			c.items[i] = a
			return nil
		}
	}
	return turn.ErrNotImplemented
}

// DeleteActivity 删除本轮已收集的同 ID 活动
func (c *replyCollector) DeleteActivity(_ context.Context, _ activity.ConversationReference, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if existing.ID == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return nil
		}
	}
	return turn.ErrNotImplemented
}

func (c *replyCollector) activities() []*activity.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		return []*activity.Activity{}
	}
	return c.items
}
