/*
Package testutil 提供 SkillFlow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 活动断言: Texts / Types / AssertTexts

# 子包

  - testutil/mocks: RecordingSender、MockTransport、SkillServer、StaticTokenSource
  - testutil/fixtures: 用户消息、令牌请求、天气 Skill Manifest 等样例
*/
package testutil
