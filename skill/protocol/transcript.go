package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/skillflow/activity"
)

// ErrActivityNotFound 会话中没有该 ID 的活动
var ErrActivityNotFound = errors.New("protocol: activity not found")

// TranscriptRoute 是读取会话记录的路径模板
const TranscriptRoute = "/conversations/{conversationId}/activities"

// Transcript 是按会话保存活动的内存会话记录，实现 turn.Sender
type Transcript struct {
	mu            sync.RWMutex
	conversations map[string][]*activity.Activity
	limit         int
}

// NewTranscript 创建会话记录。limit 为每个会话保留的最大活动数，0 表示不限。
func NewTranscript(limit int) *Transcript {
	return &Transcript{conversations: make(map[string][]*activity.Activity), limit: limit}
}

// SendActivities 实现 turn.Sender，按顺序追加到各自的会话
func (t *Transcript) SendActivities(_ context.Context, batch []*activity.Activity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range batch {
		a.EnsureID()
		convID := a.ConversationID()
		log := append(t.conversations[convID], a.Clone())
		if t.limit > 0 && len(log) > t.limit {
			log = log[len(log)-t.limit:]
		}
		t.conversations[convID] = log
	}
	return nil
}

// UpdateActivity 实现 turn.Sender，替换同 ID 的活动
func (t *Transcript) UpdateActivity(_ context.Context, a *activity.Activity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	convID, idx, ok := t.find(a.ConversationID(), a.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActivityNotFound, a.ID)
	}
	t.conversations[convID][idx] = a.Clone()
	return nil
}

// DeleteActivity 实现 turn.Sender。引用中没有会话时在所有会话中查找。
func (t *Transcript) DeleteActivity(_ context.Context, ref activity.ConversationReference, activityID string) error {
	var hint string
	if ref.Conversation != nil {
		hint = ref.Conversation.ID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	convID, idx, ok := t.find(hint, activityID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrActivityNotFound, activityID)
	}
	log := t.conversations[convID]
	t.conversations[convID] = append(log[:idx:idx], log[idx+1:]...)
	return nil
}

// Activities 返回会话中活动的副本
func (t *Transcript) Activities(conversationID string) []*activity.Activity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	log := t.conversations[conversationID]
	out := make([]*activity.Activity, len(log))
	for i, a := range log {
		out[i] = a.Clone()
	}
	return out
}

// Forget 丢弃整个会话
func (t *Transcript) Forget(conversationID string) {
	t.mu.Lock()
	delete(t.conversations, conversationID)
	t.mu.Unlock()
}

// Register 注册 GET /conversations/{conversationId}/activities
func (t *Transcript) Register(r *Router) {
	r.Handle(http.MethodGet, TranscriptRoute, func(_ context.Context, req *Request) (any, error) {
		return t.Activities(req.Param("conversationId")), nil
	})
}

// find 需持有锁。conversationID 为空时搜索全部会话。
func (t *Transcript) find(conversationID, activityID string) (string, int, bool) {
	if activityID == "" {
		return "", 0, false
	}
	if conversationID != "" {
		for i, a := range t.conversations[conversationID] {
			if a.ID == activityID {
				return conversationID, i, true
			}
		}
		return "", 0, false
	}
	for convID, log := range t.conversations {
		for i, a := range log {
			if a.ID == activityID {
				return convID, i, true
			}
		}
	}
	return "", 0, false
}
