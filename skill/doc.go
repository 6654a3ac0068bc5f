// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package skill 提供 Skill 描述、槽位上下文与 Skill 路由。

# 概述

父 Bot 通过 Manifest 了解每个 Skill 的调用端点与可调用动作。
识别出意图后，Resolve 先按动作 ID 精确匹配，再回退到 Manifest ID，
命中的 Manifest 交给 skill/dialog 开始一次 Skill 会话。

# 核心类型

  - Manifest / Action / Slot：Skill 描述，加载后不可变
  - SlotContext：开始时传给 Skill 的预填参数
  - Registry：已加载 Manifest 的只读集合
  - Recognizer：意图识别协作者；PatternRecognizer 为内置的正则实现

# 子包

  - transport：一次 HTTP 往返的转发与令牌交换
  - dialog：Skill 会话状态机
  - dispatch：父 Bot 的轮次编排
  - adapter：接收方的调用适配器
  - protocol：接收方的细粒度协议路由
*/
package skill
