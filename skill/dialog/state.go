package dialog

import (
	"time"

	"github.com/BaSui01/skillflow/activity"
)

// State 一次 Skill 调用的生命周期状态
type State string

const (
	StateNotStarted   State = "notStarted"
	StateActive       State = "active"
	StateAwaitingAuth State = "awaitingAuth"
	StateEnded        State = "ended"
)

// Reason 对话结束的原因
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonCancelled Reason = "cancelled"
	ReasonFailed    Reason = "failed"
)

// Instance 会话中进行中的 Skill 对话记录。
// 在轮次之间持久化，下一条入站活动据此恢复对话。
type Instance struct {
	SkillID   string    `json:"skill_id"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     int       `json:"turns"`

	// PendingTokenRequest 认证子对话等待用户时暂存的 tokens/request
	PendingTokenRequest *activity.Activity `json:"pending_token_request,omitempty"`
}

// InControl 判断 Skill 当前是否掌握会话
func (i *Instance) InControl() bool {
	return i != nil && (i.State == StateActive || i.State == StateAwaitingAuth)
}
