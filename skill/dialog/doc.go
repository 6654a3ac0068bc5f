// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 dialog 实现父 Bot 一侧的 Skill 对话状态机。

# 状态

	notStarted -> active -> (awaitingAuth) -> ended

  - Begin：发送携带 SlotContext 的 skillBegin 事件。Skill 立即结束时直接
    进入 ended，否则保持 active，等待下一轮入站活动。
  - Continue：转发下一轮入站活动；认证子对话刚拿到令牌时改为转发
    回复原请求的 tokens/response 事件。每次转发后调用 Disconnect。
  - End：取消原因会先发送一次尽力而为的 cancelAllSkillDialogs 信号，
    失败只记录日志。

转发失败时对话先进入 ended 并清除状态，再把错误返回给调用方。

# 认证

Skill 在对话中途发出 tokens/request 时，对话发送诊断 trace 并启动
Authenticator。IssuingAuthenticator 用父 Bot 的凭据直接签发令牌；
PromptAuthenticator 提示用户输入验证码，对话在 awaitingAuth 状态等待。

# 状态存储

Instance 按会话 ID 保存在 StateStore 中。MemoryStore 用于单实例部署，
RedisStore 通过 internal/cache 在多个父 Bot 实例之间共享。
*/
package dialog
