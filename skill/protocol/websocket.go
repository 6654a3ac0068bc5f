package protocol

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Frame 是 websocket 上的一次协议调用
type Frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// FrameResponse 是对 Frame 的应答，ID 与请求一致
type FrameResponse struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	Body   any    `json:"body,omitempty"`
}

// StreamHandler 在一条 websocket 连接上按帧顺序分发协议调用
type StreamHandler struct {
	router         *Router
	originPatterns []string
	logger         *zap.Logger
}

// NewStreamHandler 创建 websocket 处理器。originPatterns 为允许的跨域来源。
func NewStreamHandler(router *Router, originPatterns []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		router:         router,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("component", "skill_protocol_ws")),
	}
}

// ServeHTTP 升级连接并循环处理帧，直到对端关闭
func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxBodySize)
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		var frame Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if status := websocket.CloseStatus(err); status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.logger.Debug("websocket read ended", zap.Error(err))
			return
		}
		if frame.ID == "" {
			frame.ID = uuid.NewString()
		}

		resp := s.router.Dispatch(ctx, frame.Method, frame.Path, frame.Body)
		out := FrameResponse{ID: frame.ID, Status: resp.Status, Body: resp.Body}
		if err := wsjson.Write(ctx, conn, out); err != nil {
			s.logger.Warn("websocket write failed", zap.String("frame_id", frame.ID), zap.Error(err))
			return
		}
	}
}
