// Package api 描述 SkillFlow 的 HTTP 接口约定，处理器实现位于 api/handlers。
//
// # 父 Bot
//
// 父 Bot 监听 server.http_port（默认 3978）：
//
//	POST /api/messages   请求体为一个活动，响应为 {"success":true,"data":{"conversation_id":..., "activities":[...]}}
//	GET  /api/stream     websocket，每帧一个入站活动；服务端按批次推送 activities、error、turn_end 帧
//
// # Skill 宿主
//
// Skill 宿主监听 server.skill_port（默认 3980）：
//
//	POST /api/skill/messages   请求体为一个活动，响应为回复活动的 JSON 数组
//	GET  /api/skill/manifest   Manifest
//	     /api/skill/v1/...     Skill 到父 Bot 方向的协议路由，状态码只有 200、404、500
//	GET  /api/skill/stream     协议路由的 websocket 入口，帧为 {id, method, path, body}
//
// # 认证
//
// 启用 auth 时，父 Bot 对每个出站请求附加 HS256 Bearer 令牌，audience 为目标
// Skill 的 app_id；Skill 宿主校验 issuer、audience 与 allowed_callers。
// 健康检查与 Manifest 不需要认证。
//
// # 错误
//
// 错误响应统一为 {"success":false,"error":{"code":..., "message":..., "skill_id":..., "retryable":...}}。
package api
