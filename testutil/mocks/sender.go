// RecordingSender 是 turn.Sender 的测试记录实现。
//
// 记录每个批次，支持错误注入。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/skillflow/activity"
)

// RecordingSender 记录父 Bot 或 Skill 送出的活动
type RecordingSender struct {
	mu      sync.Mutex
	batches [][]*activity.Activity
	updates []*activity.Activity
	deletes []string
	err     error
}

// NewRecordingSender 创建记录器
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{}
}

// WithError 让后续所有操作返回 err
func (s *RecordingSender) WithError(err error) *RecordingSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// SendActivities 实现 turn.Sender
func (s *RecordingSender) SendActivities(_ context.Context, batch []*activity.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]*activity.Activity(nil), batch...))
	return nil
}

// UpdateActivity 实现 turn.Sender
func (s *RecordingSender) UpdateActivity(_ context.Context, a *activity.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, a)
	return nil
}

// DeleteActivity 实现 turn.Sender
func (s *RecordingSender) DeleteActivity(_ context.Context, _ activity.ConversationReference, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deletes = append(s.deletes, id)
	return nil
}

// Batches 返回按到达顺序记录的批次
func (s *RecordingSender) Batches() [][]*activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]*activity.Activity(nil), s.batches...)
}

// Sent 返回展平后的全部活动
func (s *RecordingSender) Sent() []*activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*activity.Activity
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

// Texts 返回 message 活动的文本
func (s *RecordingSender) Texts() []string {
	var out []string
	for _, a := range s.Sent() {
		if a.Type == activity.TypeMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

// Traces 统计指定名称的 trace 数量
func (s *RecordingSender) Traces(name string) int {
	n := 0
	for _, a := range s.Sent() {
		if a.Type == activity.TypeTrace && a.Name == name {
			n++
		}
	}
	return n
}

// Updates 返回 UpdateActivity 收到的活动
func (s *RecordingSender) Updates() []*activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*activity.Activity(nil), s.updates...)
}

// Deletes 返回 DeleteActivity 收到的 ID
func (s *RecordingSender) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}
