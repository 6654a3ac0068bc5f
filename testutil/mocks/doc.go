/*
Package mocks 提供 SkillFlow 协作者的测试替身。

  - RecordingSender — turn.Sender，按批次记录回复
  - MockTransport   — transport.Transport，由 RespondFunc 脚本化每次转发
  - SkillServer     — httptest 上的假 Skill，按 ReplyFunc 返回回复批次
  - StaticTokenSource — 固定令牌来源
*/
package mocks
