// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertTexts(t, []string{"hi"}, sender.Sent())
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/skillflow/activity"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// Texts 返回批次中 message 活动的文本
func Texts(batch []*activity.Activity) []string {
	var out []string
	for _, a := range batch {
		if a.Type == activity.TypeMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

// Types 返回批次中每个活动的类型
func Types(batch []*activity.Activity) []activity.Type {
	out := make([]activity.Type, 0, len(batch))
	for _, a := range batch {
		out = append(out, a.Type)
	}
	return out
}

// AssertTexts 断言批次中 message 活动的文本依次相等
func AssertTexts(t *testing.T, expected []string, batch []*activity.Activity) {
	t.Helper()

	actual := Texts(batch)
	if len(expected) != len(actual) {
		t.Errorf("message count mismatch: expected %q, got %q", expected, actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("message[%d] text mismatch: expected %q, got %q", i, expected[i], actual[i])
		}
	}
}
