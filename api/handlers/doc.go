// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 handlers 提供 SkillFlow HTTP API 的请求处理器实现。

# 核心类型

  - MessagesHandler — 父 Bot 的 /api/messages，同步返回一轮内的回复
  - StreamHandler   — 父 Bot 的 /api/stream websocket 渠道，每个回复批次一帧
  - SkillHandler    — Skill 端的 /api/skill/messages 调用端点与 /api/skill/manifest
  - HealthHandler   — 服务健康检查（/health, /healthz, /ready）
  - Response        — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter  — 包装 http.ResponseWriter 以捕获状态码与大小

# 错误映射

ErrorFrom 把领域错误转为 types.Error：反序列化失败为 INVALID_ACTIVITY (400)，
Skill 返回 503 为 SKILL_UNAVAILABLE，其他非 2xx 为 SKILL_ERROR (502)，
协议误用为 PROTOCOL_MISUSE，不支持的操作为 NOT_IMPLEMENTED。

Skill 调用端点成功时直接返回活动 JSON 数组，不使用统一响应包装。
*/
package handlers
