// Package config 提供 SkillFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// Skill Manifest 列表随配置一次性加载，加载后不可变。
package config
