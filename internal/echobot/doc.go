// 版权所有 2024 SkillFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// 包 echobot 提供 skillflow serve-skill 托管的演示 Skill。
package echobot
