// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 adapter 是 Skill 进程一侧的调用适配器。

# 概述

Adapter 把一次入站调用解码为 Activity，构造本地轮次并交给 Skill 自身的
turn.Handler 管道。轮次内发送的活动不会立即推送，而是进入本次调用独占的
出站队列，调用结束时按产生顺序（FIFO）作为 InvokeResponse 的 body 返回。

Adapter 通过组合 turn.Sender 能力实现，不依赖任何通用通道适配器。

# 发送过滤

  - delay：按 value 中的毫秒数暂停处理，不入队
  - trace：只在 emulator 渠道入队
  - typing：只在 test 渠道入队
  - 其余类型全部入队

UpdateActivity 与 DeleteActivity 返回 turn.ErrNotImplemented。
*/
package adapter
