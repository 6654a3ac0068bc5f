// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，供 Skill 会话状态的
跨进程持久化使用。

# 概述

本包封装 go-redis 客户端。Manager 负责连接生命周期管理，
包括初始化、后台健康检查与优雅关闭。所有键统一加上 KeyPrefix，
多个部署可以共享同一个 Redis 实例。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Exists/Expire 等基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，可由 config.RedisConfig 通过 FromRedisConfig 构造。

# 错误语义

  - ErrCacheMiss：键不存在，使用 IsCacheMiss 判断。
  - ErrClosed：Manager 已关闭。
*/
package cache
