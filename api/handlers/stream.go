package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/internal/ctxkeys"
	"github.com/BaSui01/skillflow/turn"
	"github.com/BaSui01/skillflow/types"
)

// =============================================================================
// 🔌 父 Bot websocket 渠道
// =============================================================================

// 流事件类型
const (
	StreamEventActivities = "activities"
	StreamEventError      = "error"
	StreamEventTurnEnd    = "turn_end"
)

// StreamEvent 是服务端推送的一帧。同一批次的回复在同一帧中送达。
type StreamEvent struct {
	Type       string               `json:"type"`
	ReplyToID  string               `json:"reply_to_id,omitempty"`
	Activities []*activity.Activity `json:"activities,omitempty"`
	Error      *ErrorInfo           `json:"error,omitempty"`
}

// StreamHandler 在 websocket 连接上承载对话：每帧一个入站活动，回复批次实时推送
type StreamHandler struct {
	bot            turn.Handler
	originPatterns []string
	logger         *zap.Logger
}

// NewStreamHandler 创建 websocket 渠道
func NewStreamHandler(bot turn.Handler, originPatterns []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		bot:            bot,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "stream")),
	}
}

// HandleStream 处理 /api/stream
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxActivityBody)
	defer conn.CloseNow()

	out := &streamSender{conn: conn}
	ctx := r.Context()
	requestID, _ := ctxkeys.RequestID(ctx)
	h.logger.Debug("stream opened", zap.String("request_id", requestID))

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				_ = conn.Close(websocket.StatusNormalClosure, "")
			default:
				h.logger.Debug("stream read ended", zap.Error(err))
			}
			return
		}

		in, err := activity.Decode(raw)
		if err != nil {
			if werr := out.writeError(ctx, "", ErrorFrom(err)); werr != nil {
				return
			}
			continue
		}
		if in.ConversationID() == "" {
			if werr := out.writeError(ctx, in.ID, types.NewError(types.ErrInvalidActivity, "conversation.id is required")); werr != nil {
				return
			}
			continue
		}

		if err := h.bot.OnTurn(ctx, turn.NewContext(in, out)); err != nil {
			h.logger.Warn("stream turn failed", zap.String("conversation_id", in.ConversationID()), zap.Error(err))
			if werr := out.writeError(ctx, in.ID, ErrorFrom(err)); werr != nil {
				return
			}
			continue
		}
		if err := out.write(ctx, StreamEvent{Type: StreamEventTurnEnd, ReplyToID: in.ID}); err != nil {
			h.logger.Debug("stream write failed", zap.Error(err))
			return
		}
	}
}

// streamSender 实现 turn.Sender，每个批次写成一帧
type streamSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *streamSender) SendActivities(ctx context.Context, batch []*activity.Activity) error {
	replyTo := ""
	for _, a := range batch {
		a.EnsureID()
		if replyTo == "" {
			replyTo = a.ReplyToID
		}
	}
	return s.write(ctx, StreamEvent{Type: StreamEventActivities, ReplyToID: replyTo, Activities: batch})
}

// UpdateActivity websocket 渠道不支持
func (s *streamSender) UpdateActivity(context.Context, *activity.Activity) error {
	return turn.ErrNotImplemented
}

// DeleteActivity websocket 渠道不支持
func (s *streamSender) DeleteActivity(context.Context, activity.ConversationReference, string) error {
	return turn.ErrNotImplemented
}

func (s *streamSender) writeError(ctx context.Context, replyTo string, err *types.Error) error {
	return s.write(ctx, StreamEvent{
		Type:      StreamEventError,
		ReplyToID: replyTo,
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			SkillID:   err.SkillID,
			Retryable: err.Retryable,
		},
	})
}

func (s *streamSender) write(ctx context.Context, ev StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wsjson.Write(ctx, s.conn, ev)
}
