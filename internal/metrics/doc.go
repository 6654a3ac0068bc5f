// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
Skill 转发、Skill 端调用与会话状态存储。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制。所有指标按 namespace 隔离。nil *Collector 可以安全
调用任何 Record 方法，未启用指标的组件无需判空。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx
  - 转发指标：往返次数与耗时、投递的回复活动、令牌交换结果、
    会话状态转换、远端取消信号
  - Skill 端指标：调用次数与耗时、出站活动入队/过滤、细粒度协议分发
  - 状态存储指标：会话状态查找命中与未命中
*/
package metrics
