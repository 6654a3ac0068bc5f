// Package dispatch 把父 Bot 的每个入站轮次路由到 Skill 对话。
//
// 有进行中的 Skill 对话时，取消意图结束对话并通知 Skill，其余活动交给
// 对话的 Continue；没有进行中的对话时，识别意图、经 Skill Router 选出
// Manifest，按动作声明的槽位构造 SlotContext 并开始对话。无法路由或
// Skill 失败时回复配置的默认文本。
package dispatch
