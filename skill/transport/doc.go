// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 transport 实现父 Bot 到 Skill 的活动转发。

# 概述

HTTPTransport 绑定一个 Manifest，每次 Forward 把活动序列化后 POST 到
Manifest 的 endpoint，解析 Skill 返回的有序活动数组并分类处理：

  - endOfConversation 只标记会话结束，不中断本批次其余活动的处理
  - tokens/request 交给调用方的 TokenRequestHandler，得到的 tokens/response
    在同一轮次内继续转发，次数受 MaxTokenExchanges 限制
  - 其余活动（包括 trace）按原顺序作为一个批次投递到会话

# 失败语义

非 2xx 响应先向会话发送诊断 trace，再返回 *HTTPError。只有拨号失败和
503 会重试一次，其余失败直接返回。请求通过 Signer 携带 Bearer 凭据，
并传播 OpenTelemetry 追踪上下文。
*/
package transport
