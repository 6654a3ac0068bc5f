// SkillServer 是远端 Skill 的 HTTP 测试模拟实现。
//
// 按 ReplyFunc 返回回复批次，记录收到的活动与 Authorization 头，支持状态码注入。
package mocks

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BaSui01/skillflow/activity"
)

// ReplyFunc 根据入站活动生成回复批次
type ReplyFunc func(in *activity.Activity) []*activity.Activity

// SkillServer 是运行在 httptest 上的假 Skill
type SkillServer struct {
	*httptest.Server

	mu       sync.Mutex
	reply    ReplyFunc
	status   int
	received []*activity.Activity
	auth     []string
}

// NewSkillServer 启动假 Skill，测试结束时关闭
func NewSkillServer(t *testing.T, reply ReplyFunc) *SkillServer {
	t.Helper()
	s := &SkillServer{reply: reply}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *SkillServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	in, err := activity.Decode(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.received = append(s.received, in)
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	status, reply := s.status, s.reply
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	var replies []*activity.Activity
	if reply != nil {
		replies = reply(in)
	}
	data, err := activity.EncodeBatch(replies)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// FailWith 让后续请求返回 status，0 表示恢复正常
func (s *SkillServer) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Received 返回收到的活动
func (s *SkillServer) Received() []*activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*activity.Activity(nil), s.received...)
}

// Last 返回最后收到的活动
func (s *SkillServer) Last() *activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.received) == 0 {
		return nil
	}
	return s.received[len(s.received)-1]
}

// Count 返回收到的请求数
func (s *SkillServer) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// Authorizations 返回每个请求的 Authorization 头
func (s *SkillServer) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}
