// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 protocol 实现接收端的细粒度活动协议：按 (method, 路径模板) 分发调用。

# 路由

  - POST   /activities/{activityId}  投递新活动到会话
  - PUT    /activities/{activityId}  替换已有活动
  - DELETE /activities/{activityId}  按 ID 删除活动

POST 有两个特例：tokens/request 事件交给 OnTokenRequest 回调，
endOfConversation 交给 OnHandoff 回调，二者都不进入会话。
没有注册对应回调时返回 ErrNoTokenRequestHandler / ErrNoHandoffHandler。

# 分发结果

Router.Dispatch 返回 {status, body}：未匹配为 404，处理函数出错或 panic 为 500，
成功为 200 且 body 为处理函数的返回值。

同一张路由表可以通过 Router.ServeHTTP 以 HTTP 暴露，也可以通过 StreamHandler
在 websocket 上暴露，每个 {id, method, path, body} 帧得到一个 {id, status, body} 应答。

Transcript 是内存会话记录，可作为 ActivityHandler 的会话使用。
*/
package protocol
