// =============================================================================
// 📦 SkillFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SKILLFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/skillflow/skill"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 SkillFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Parent 父 Bot 配置
	Parent ParentConfig `yaml:"parent" env:"PARENT"`

	// SkillHost 本进程作为 Skill 对外发布的信息
	SkillHost SkillHostConfig `yaml:"skill_host" env:"SKILL_HOST"`

	// Skills 可调用的 Skill 列表（只从 YAML 加载）
	Skills []skill.Manifest `yaml:"skills" env:"-"`

	// Transport 转发配置
	Transport TransportConfig `yaml:"transport" env:"TRANSPORT"`

	// Auth 请求签名与校验配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 父 Bot HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Skill HTTP 端口
	SkillPort int `yaml:"skill_port" env:"SKILL_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的限流速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// ParentConfig 父 Bot 配置
type ParentConfig struct {
	// 父 Bot 的应用 ID，用作出站令牌的 issuer/subject
	AppID string `yaml:"app_id" env:"APP_ID"`
	// 未识别意图时的回复
	FallbackText string `yaml:"fallback_text" env:"FALLBACK_TEXT"`
	// 触发取消的意图
	CancelIntents []string `yaml:"cancel_intents" env:"CANCEL_INTENTS"`
	// 正则意图识别规则（只从 YAML 加载）
	Patterns []skill.Pattern `yaml:"patterns" env:"-"`
	// 会话状态存储: memory, redis
	StateStore string `yaml:"state_store" env:"STATE_STORE"`
	// 会话状态保留时长
	StateTTL time.Duration `yaml:"state_ttl" env:"STATE_TTL"`
}

// SkillHostConfig 本进程作为 Skill 时发布的 Manifest
type SkillHostConfig struct {
	// Skill ID
	ID string `yaml:"id" env:"ID"`
	// 名称
	Name string `yaml:"name" env:"NAME"`
	// 对外可访问的调用端点
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// Skill 的应用 ID，入站令牌的 audience
	AppID string `yaml:"app_id" env:"APP_ID"`
	// 暴露的动作 ID
	Actions []string `yaml:"actions" env:"ACTIONS"`
	// 登录时请求令牌使用的连接名
	ConnectionName string `yaml:"connection_name" env:"CONNECTION_NAME"`
	// 回显前的停顿
	ReplyDelay time.Duration `yaml:"reply_delay" env:"REPLY_DELAY"`
}

// TransportConfig 转发配置
type TransportConfig struct {
	// 单次 HTTP 调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 请求未到达 Skill 时的最大重试次数，只允许 0 或 1
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 重试间隔
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	// 单个轮次内令牌交换的上限
	MaxTokenExchanges int `yaml:"max_token_exchanges" env:"MAX_TOKEN_EXCHANGES"`
	// Skill 回复体的最大字节数
	MaxResponseBytes int64 `yaml:"max_response_bytes" env:"MAX_RESPONSE_BYTES"`
}

// AuthConfig 请求签名与校验配置
type AuthConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HMAC 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// 令牌 issuer
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 入站校验的 audience（为空时使用 SkillHost.AppID）
	Audience string `yaml:"audience" env:"AUDIENCE"`
	// 出站令牌有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// 允许调用本 Skill 的父 Bot 应用 ID（为空表示不限制）
	AllowedCallers []string `yaml:"allowed_callers" env:"ALLOWED_CALLERS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SKILLFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error

	for name, port := range map[string]int{
		"http_port":    c.Server.HTTPPort,
		"skill_port":   c.Server.SkillPort,
		"metrics_port": c.Server.MetricsPort,
	} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("invalid %s: %d", name, port))
		}
	}

	seen := make(map[string]struct{}, len(c.Skills))
	for i := range c.Skills {
		m := &c.Skills[i]
		if err := m.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("skills[%d]: %w", i, err))
			continue
		}
		if _, dup := seen[m.ID]; dup {
			errs = append(errs, fmt.Errorf("skills[%d]: duplicate skill id %q", i, m.ID))
		}
		seen[m.ID] = struct{}{}
	}

	if c.SkillHost.Endpoint != "" {
		if u, err := url.Parse(c.SkillHost.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid skill_host endpoint %q", c.SkillHost.Endpoint))
		}
	}

	if c.Transport.MaxTokenExchanges <= 0 {
		errs = append(errs, errors.New("transport.max_token_exchanges must be positive"))
	}
	if c.Transport.MaxRetries < 0 || c.Transport.MaxRetries > 1 {
		errs = append(errs, fmt.Errorf("transport.max_retries must be 0 or 1, got %d", c.Transport.MaxRetries))
	}
	if c.Transport.MaxResponseBytes <= 0 {
		errs = append(errs, errors.New("transport.max_response_bytes must be positive"))
	}

	if c.Auth.Enabled && c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required when auth is enabled"))
	}

	switch c.Parent.StateStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown parent.state_store %q", c.Parent.StateStore))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}

// SkillManifest 返回本进程作为 Skill 发布的 Manifest
func (c *Config) SkillManifest() skill.Manifest {
	m := skill.Manifest{
		ID:       c.SkillHost.ID,
		Name:     c.SkillHost.Name,
		Endpoint: c.SkillHost.Endpoint,
		AppID:    c.SkillHost.AppID,
	}
	for _, id := range c.SkillHost.Actions {
		m.Actions = append(m.Actions, skill.Action{ID: id})
	}
	return m
}
