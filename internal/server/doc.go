// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 概述

父 Bot、Skill 与 Metrics 各自监听独立端口，每个端口由一个 Manager
管理。cmd/skillflow 通过 errgroup 并行运行多个 Manager.Run，
任一服务异常退出或收到关闭信号时统一优雅停机。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道
  - Config：监听地址、读写超时、空闲超时、最大请求头与关闭超时

# 主要能力

  - Start：后台 goroutine 中运行服务
  - Run：阻塞直到 context 结束或服务异常，然后 Shutdown
  - Shutdown：在配置的超时内排空请求，幂等
  - Addr：返回实际监听地址（支持 :0 随机端口）
*/
package server
