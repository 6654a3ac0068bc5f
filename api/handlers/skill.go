package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/internal/ctxkeys"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/adapter"
	"github.com/BaSui01/skillflow/types"
)

// =============================================================================
// 🧩 Skill 端 Handler
// =============================================================================

// SkillHandler 暴露本进程作为 Skill 的调用端点与 Manifest
type SkillHandler struct {
	adapter  *adapter.Adapter
	manifest skill.Manifest
	logger   *zap.Logger
}

// NewSkillHandler 创建 Skill 处理器
func NewSkillHandler(a *adapter.Adapter, manifest skill.Manifest, logger *zap.Logger) *SkillHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SkillHandler{adapter: a, manifest: manifest, logger: logger.With(zap.String("handler", "skill"))}
}

// HandleInvoke 处理 POST /api/skill/messages。
// 成功时响应体是回复活动的 JSON 数组；反序列化失败为 400；轮次出错为 500。
func (h *SkillHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	body, err := ReadBody(w, r, h.logger)
	if err != nil {
		return
	}

	resp, err := h.adapter.Handle(r.Context(), body)
	if err != nil {
		apiErr := ErrorFrom(err)
		if resp != nil && resp.Status == http.StatusBadRequest {
			apiErr.WithHTTPStatus(http.StatusBadRequest)
		} else {
			apiErr.WithHTTPStatus(http.StatusInternalServerError)
		}
		WriteRequestError(w, r, apiErr.WithSkill(h.manifest.ID), h.logger)
		return
	}

	data, err := activity.EncodeBatch(resp.Body)
	if err != nil {
		WriteRequestError(w, r, types.NewError(types.ErrInternalError, "encode replies").WithCause(err), h.logger)
		return
	}

	caller, _ := ctxkeys.CallerAppID(r.Context())
	h.logger.Debug("skill invoked",
		zap.String("caller", caller),
		zap.Int("status", resp.Status),
		zap.Int("replies", len(resp.Body)),
	)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(data)
}

// HandleManifest 处理 GET /api/skill/manifest
func (h *SkillHandler) HandleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, h.manifest)
}
