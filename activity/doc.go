// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package activity 定义父 Bot 与 Skill 之间交换的消息信封。

# 概述

Activity 是协议中唯一的线路单元：用户消息、事件、trace、会话结束信号、
typing、delay 与 handoff 都以同一结构传输，由 Type 字段区分。
进入或离开协议边界的每个活动都必须携带 type，否则视为致命的反序列化错误。

# 核心类型

  - Activity：消息信封，时间字段在解码时从 ISO-8601 字符串修复为 time.Time
  - Value：value 负载的标签联合（槽位 | 令牌请求 | 令牌响应 | 原始 JSON）
  - ConversationReference：会话寻址元组，用于回复同一线程
  - TokenRequest / TokenResponse：会话中途令牌交换的负载

# 主要能力

  - Decode / DecodeBatch：入站解码与时间戳修复，拒绝非对象与缺少 type 的请求体
  - CreateReply / CreateTrace：生成回复形态的活动
  - DecodeValue：在消费点按 name/type 显式解码 value
*/
package activity
