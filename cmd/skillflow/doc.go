// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 SkillFlow 服务端程序入口。

# 概述

cmd/skillflow 同时承载两个角色：父 Bot（接收用户消息、识别意图并把轮次
转发给 Skill）与 Skill 宿主（内置回显 Skill，通过调用端点与协议路由对外服务）。
两个角色可以分进程运行，也可以在同一进程中运行以便本地调试。

# 核心类型

  - Server      — 按 Role 组装父 Bot、Skill 宿主与 Metrics 三个 HTTP 服务
  - Role        — RoleParent | RoleSkill，可组合
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 路由

父 Bot（server.http_port）：

  - POST /api/messages   同步返回一轮内的全部回复
  - GET  /api/stream     websocket，每个回复批次一帧

Skill 宿主（server.skill_port）：

  - POST   /api/skill/messages                               调用端点
  - GET    /api/skill/manifest                               Manifest，无需认证
  - POST   /api/skill/v1/activities/{activityId}             协议路由
  - PUT    /api/skill/v1/activities/{activityId}
  - DELETE /api/skill/v1/activities/{activityId}
  - GET    /api/skill/v1/conversations/{conversationId}/activities
  - GET    /api/skill/stream                                 协议路由的 websocket 入口

两者都提供 /health、/healthz、/ready、/readyz、/version；/metrics 在独立端口。

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → MetricsMiddleware →
OTelTracing → CORS → RateLimiter，Skill 宿主启用认证时最后追加 JWT 校验。

# 关闭

SIGINT/SIGTERM 取消根 context，errgroup 中的各 server.Manager 依次优雅关闭，
随后释放 Redis 连接并刷新遥测数据。
*/
package main
