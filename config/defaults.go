// =============================================================================
// 📦 SkillFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Parent:    DefaultParentConfig(),
		SkillHost: DefaultSkillHostConfig(),
		Transport: DefaultTransportConfig(),
		Auth:      DefaultAuthConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        3978,
		SkillPort:       3980,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultParentConfig 返回默认父 Bot 配置
func DefaultParentConfig() ParentConfig {
	return ParentConfig{
		AppID:         "skillflow-parent",
		FallbackText:  "Sorry, I didn't understand that.",
		CancelIntents: []string{"cancel"},
		StateStore:    "memory",
		StateTTL:      24 * time.Hour,
	}
}

// DefaultSkillHostConfig 返回默认 Skill 发布信息
func DefaultSkillHostConfig() SkillHostConfig {
	return SkillHostConfig{
		ID:       "echo",
		Name:     "Echo Skill",
		Endpoint: "http://localhost:3980/api/skill/messages",
		AppID:    "skillflow-echo",
		Actions:  []string{"echo"},

		ConnectionName: "skillflow",
		ReplyDelay:     500 * time.Millisecond,
	}
}

// DefaultTransportConfig 返回默认转发配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Timeout:           30 * time.Second,
		MaxRetries:        1,
		RetryDelay:        200 * time.Millisecond,
		MaxTokenExchanges: 8,
		MaxResponseBytes:  4 << 20,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:  false,
		Issuer:   "skillflow",
		TokenTTL: time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "skillflow:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "skillflow",
		SampleRate:   0.1,
	}
}
