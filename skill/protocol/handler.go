package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/turn"
)

var (
	// ErrNoTokenRequestHandler 收到 tokens/request 事件但没有注册回调
	ErrNoTokenRequestHandler = errors.New("protocol: no token request handler registered")
	// ErrNoHandoffHandler 收到 endOfConversation 但没有注册回调
	ErrNoHandoffHandler = errors.New("protocol: no handoff handler registered")
)

// ActivityRoute 是按 ID 操作单个活动的路径模板
const ActivityRoute = "/activities/{activityId}"

// ResourceResponse 是创建或更新活动后的返回值
type ResourceResponse struct {
	ID string `json:"id"`
}

// ActivityCallback 处理被特殊路由的入站活动，返回值作为响应 body
type ActivityCallback func(ctx context.Context, a *activity.Activity) (any, error)

// ActivityHandler 把细粒度协议调用落到会话上
type ActivityHandler struct {
	conversation   turn.Sender
	onTokenRequest ActivityCallback
	onHandoff      ActivityCallback
	logger         *zap.Logger
}

// HandlerOption 配置 ActivityHandler
type HandlerOption func(*ActivityHandler)

// OnTokenRequest 注册 tokens/request 事件的回调
func OnTokenRequest(fn ActivityCallback) HandlerOption {
	return func(h *ActivityHandler) { h.onTokenRequest = fn }
}

// OnHandoff 注册 endOfConversation 的回调
func OnHandoff(fn ActivityCallback) HandlerOption {
	return func(h *ActivityHandler) { h.onHandoff = fn }
}

// WithHandlerLogger 设置日志
func WithHandlerLogger(l *zap.Logger) HandlerOption {
	return func(h *ActivityHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewActivityHandler 创建处理器。conversation 是本地会话的发送能力。
func NewActivityHandler(conversation turn.Sender, opts ...HandlerOption) *ActivityHandler {
	h := &ActivityHandler{conversation: conversation, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(zap.String("component", "activity_handler"))
	return h
}

// Register 在路由表上注册 POST/PUT/DELETE /activities/{activityId}
func (h *ActivityHandler) Register(r *Router) {
	r.Handle(http.MethodPost, ActivityRoute, h.post)
	r.Handle(http.MethodPut, ActivityRoute, h.put)
	r.Handle(http.MethodDelete, ActivityRoute, h.delete)
}

// post 投递新活动。tokens/request 交给令牌回调，endOfConversation 交给交接回调，二者都不进入会话。
func (h *ActivityHandler) post(ctx context.Context, req *Request) (any, error) {
	a, err := activity.Decode(req.Body)
	if err != nil {
		return nil, err
	}
	if a.ReplyToID == "" {
		a.ReplyToID = req.Param("activityId")
	}

	switch {
	case a.IsTokenRequest():
		if h.onTokenRequest == nil {
			return nil, ErrNoTokenRequestHandler
		}
		h.logger.Debug("routing token request", zap.String("conversation_id", a.ConversationID()))
		return h.onTokenRequest(ctx, a)
	case a.IsEndOfConversation():
		if h.onHandoff == nil {
			return nil, ErrNoHandoffHandler
		}
		h.logger.Debug("routing handoff", zap.String("conversation_id", a.ConversationID()))
		return h.onHandoff(ctx, a)
	}

	id := a.EnsureID()
	if err := h.conversation.SendActivities(ctx, []*activity.Activity{a}); err != nil {
		return nil, fmt.Errorf("deliver activity: %w", err)
	}
	return ResourceResponse{ID: id}, nil
}

// put 用请求体替换已有活动，路径中的 ID 优先
func (h *ActivityHandler) put(ctx context.Context, req *Request) (any, error) {
	a, err := activity.Decode(req.Body)
	if err != nil {
		return nil, err
	}
	a.ID = req.Param("activityId")
	if err := h.conversation.UpdateActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("update activity: %w", err)
	}
	return ResourceResponse{ID: a.ID}, nil
}

// delete 按路径中的 ID 删除活动，请求体可选地携带会话引用
func (h *ActivityHandler) delete(ctx context.Context, req *Request) (any, error) {
	var ref activity.ConversationReference
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &ref); err != nil {
			return nil, fmt.Errorf("decode conversation reference: %w", err)
		}
	}
	if err := h.conversation.DeleteActivity(ctx, ref, req.Param("activityId")); err != nil {
		return nil, fmt.Errorf("delete activity: %w", err)
	}
	return nil, nil
}
