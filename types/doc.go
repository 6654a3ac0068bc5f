// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package types 提供 SkillFlow 对外错误的统一表示。

# 概述

types 是最底层的公共包，不依赖任何内部包。HTTP 与 websocket 渠道把领域错误
转换为 Error 后再写出，调用方据此得到稳定的错误码与 HTTP 状态。

# 核心类型

  - ErrorCode — 错误码（INVALID_ACTIVITY、SKILL_UNAVAILABLE、SKILL_ERROR 等）
  - Error     — 结构化错误，含 HTTP 状态码、Retryable 标记与出错的 Skill ID

# 主要能力

  - 构造：NewError 与 WithCause / WithHTTPStatus / WithRetryable / WithSkill 链式设置
  - 判定：AsError 从错误链中取出 *Error
*/
package types
