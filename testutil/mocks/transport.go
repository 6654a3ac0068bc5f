// MockTransport 是 transport.Transport 的测试模拟实现。
//
// Respond 决定每次转发的结果，可在其中调用令牌回调模拟子交换。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/skill/transport"
	"github.com/BaSui01/skillflow/turn"
)

// RespondFunc 模拟 Skill 对一次转发的处理，返回是否交还控制
type RespondFunc func(tc *turn.Context, a *activity.Activity, onToken transport.TokenRequestHandler) (bool, error)

// MockTransport 记录转发、取消与断开
type MockTransport struct {
	// Respond 为 nil 时每次转发成功且不结束
	Respond RespondFunc
	// CancelErr 是 CancelRemoteDialogs 的返回值
	CancelErr error

	mu          sync.Mutex
	forwarded   []*activity.Activity
	handlers    []transport.TokenRequestHandler
	cancels     int
	disconnects int
}

var _ transport.Transport = (*MockTransport)(nil)

// NewMockTransport 创建 MockTransport
func NewMockTransport(respond RespondFunc) *MockTransport {
	return &MockTransport{Respond: respond}
}

// Forward 实现 transport.Transport
func (m *MockTransport) Forward(_ context.Context, tc *turn.Context, a *activity.Activity, onToken transport.TokenRequestHandler) (bool, error) {
	m.mu.Lock()
	m.forwarded = append(m.forwarded, a)
	m.handlers = append(m.handlers, onToken)
	respond := m.Respond
	m.mu.Unlock()

	if respond == nil {
		return false, nil
	}
	return respond(tc, a, onToken)
}

// CancelRemoteDialogs 实现 transport.Transport
func (m *MockTransport) CancelRemoteDialogs(context.Context, *turn.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return m.CancelErr
}

// Disconnect 实现 transport.Transport
func (m *MockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
}

// Forwarded 返回转发过的活动
func (m *MockTransport) Forwarded() []*activity.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*activity.Activity(nil), m.forwarded...)
}

// Cancels 返回远端取消次数
func (m *MockTransport) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// Disconnects 返回断开次数
func (m *MockTransport) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// EndAfter 在第 n 次转发时交还控制
func EndAfter(n int) RespondFunc {
	var mu sync.Mutex
	calls := 0
	return func(*turn.Context, *activity.Activity, transport.TokenRequestHandler) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls == n, nil
	}
}

// FailOn 在第 n 次转发时返回 err
func FailOn(n int, err error) RespondFunc {
	var mu sync.Mutex
	calls := 0
	return func(*turn.Context, *activity.Activity, transport.TokenRequestHandler) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == n {
			return false, err
		}
		return false, nil
	}
}

// StaticTokenSource 对任意受众返回同一个令牌
type StaticTokenSource string

// Token 实现 dialog.TokenSource
func (s StaticTokenSource) Token(context.Context, string) (string, error) {
	return string(s), nil
}
