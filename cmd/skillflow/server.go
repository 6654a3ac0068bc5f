package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/api/handlers"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/auth"
	"github.com/BaSui01/skillflow/internal/cache"
	"github.com/BaSui01/skillflow/internal/echobot"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/internal/server"
	"github.com/BaSui01/skillflow/internal/telemetry"
	"github.com/BaSui01/skillflow/internal/tlsutil"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/skill/adapter"
	"github.com/BaSui01/skillflow/skill/dialog"
	"github.com/BaSui01/skillflow/skill/dispatch"
	"github.com/BaSui01/skillflow/skill/protocol"
	"github.com/BaSui01/skillflow/skill/transport"
	"github.com/BaSui01/skillflow/turn"
)

// Role 进程承担的角色，可以组合
type Role int

const (
	RoleParent Role = 1 << iota
	RoleSkill
)

// protocolPrefix 协议路由的挂载前缀
const protocolPrefix = "/api/skill/v1"

// transcriptLimit 每个会话保留的协议活动数
const transcriptLimit = 200

// healthPaths 不需要认证的路径
var healthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 按角色组装父 Bot 与 Skill 的 HTTP 服务，外加 Metrics 服务
type Server struct {
	cfg    *config.Config
	role   Role
	logger *zap.Logger

	collector *metrics.Collector
	health    *handlers.HealthHandler
	cache     *cache.Manager
	managers  []*server.Manager
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, role Role, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		role:   role,
		logger: logger,
	}
}

// Run 组装并运行所有服务，阻塞到 ctx 结束或任一服务异常退出
func (s *Server) Run(ctx context.Context) error {
	s.collector = metrics.NewCollector("skillflow", s.logger)
	s.health = handlers.NewHealthHandler(s.logger)
	defer s.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.role&RoleParent != 0 {
		h, err := s.parentHandler(runCtx)
		if err != nil {
			return fmt.Errorf("failed to init parent bot: %w", err)
		}
		s.addManager("parent", h, s.cfg.Server.HTTPPort)
	}
	if s.role&RoleSkill != 0 {
		h, err := s.skillHandler(runCtx)
		if err != nil {
			return fmt.Errorf("failed to init skill host: %w", err)
		}
		s.addManager("skill", h, s.cfg.Server.SkillPort)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.addManager("metrics", metricsMux, s.cfg.Server.MetricsPort)

	g, gctx := errgroup.WithContext(runCtx)
	for _, m := range s.managers {
		g.Go(func() error {
			return m.Run(gctx)
		})
	}

	s.logger.Info("All servers started",
		zap.Bool("parent", s.role&RoleParent != 0),
		zap.Bool("skill", s.role&RoleSkill != 0),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	err := g.Wait()
	s.logger.Info("Graceful shutdown completed")
	return err
}

func (s *Server) addManager(name string, h http.Handler, port int) {
	s.managers = append(s.managers, server.NewManager(name, h, server.FromServerConfig(s.cfg.Server, port), s.logger))
}

// close 释放共享资源
func (s *Server) close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Cache close error", zap.Error(err))
		}
	}
}

// middleware 返回两个 HTTP 服务共用的中间件链
func (s *Server) middleware(ctx context.Context, extra ...Middleware) []Middleware {
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	return append(chain, extra...)
}

func (s *Server) registerHealth(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.health.HandleHealth)
	mux.HandleFunc("/healthz", s.health.HandleHealthz)
	mux.HandleFunc("/ready", s.health.HandleReady)
	mux.HandleFunc("/readyz", s.health.HandleReady)
	mux.HandleFunc("/version", s.health.HandleVersion(Version, BuildTime, GitCommit))
}

// =============================================================================
// 🤖 父 Bot
// =============================================================================

// parentHandler 组装 Skill 路由、对话与调度器，返回父 Bot 的 HTTP 处理器
func (s *Server) parentHandler(ctx context.Context) (http.Handler, error) {
	store, err := s.stateStore()
	if err != nil {
		return nil, err
	}

	signer, source, err := s.parentCredentials()
	if err != nil {
		return nil, err
	}

	clientOpts := tlsutil.DefaultClientOptions()
	if s.cfg.Transport.Timeout > 0 {
		clientOpts.Timeout = s.cfg.Transport.Timeout
	}
	client := tlsutil.SecureHTTPClient(clientOpts)

	instruments, err := telemetry.NewSkillInstruments(telemetry.Meter())
	if err != nil {
		return nil, fmt.Errorf("create skill instruments: %w", err)
	}

	dialogs := make([]*dialog.SkillDialog, 0, len(s.cfg.Skills))
	for _, m := range s.cfg.Skills {
		opts := transport.OptionsFromConfig(s.cfg.Transport)
		opts.Client = client
		opts.Signer = signer
		opts.Metrics = s.collector
		opts.Instruments = instruments
		opts.Logger = s.logger

		dialogOpts := []dialog.Option{
			dialog.WithMetrics(s.collector),
			dialog.WithLogger(s.logger),
		}
		if source != nil {
			dialogOpts = append(dialogOpts, dialog.WithAuthenticator(&dialog.IssuingAuthenticator{
				Source: source,
				TTL:    s.cfg.Auth.TokenTTL,
			}))
		} else {
			dialogOpts = append(dialogOpts, dialog.WithAuthenticator(&dialog.PromptAuthenticator{}))
		}
		dialogs = append(dialogs, dialog.New(m, transport.New(m, opts), store, dialogOpts...))

		s.health.RegisterCheck(handlers.NewSkillHealthCheck(m.ID, m.Endpoint, client))
	}

	recognizer, err := skill.NewPatternRecognizer(s.cfg.Parent.Patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid intent patterns: %w", err)
	}

	dispatcher := dispatch.New(
		skill.NewRegistry(s.cfg.Skills),
		recognizer,
		store,
		dialogs,
		dispatch.OptionsFromConfig(s.cfg.Parent),
		s.logger,
	)
	bot := turn.Chain(dispatcher, turn.Recover(s.logger), turn.Logging(s.logger))

	mux := http.NewServeMux()
	s.registerHealth(mux)
	mux.HandleFunc("/api/messages", handlers.NewMessagesHandler(bot, s.logger).HandleMessages)
	mux.HandleFunc("/api/stream", handlers.NewStreamHandler(bot, s.cfg.Server.CORSAllowedOrigins, s.logger).HandleStream)

	s.logger.Info("Parent bot initialized",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Int("skills", len(s.cfg.Skills)),
		zap.String("state_store", s.cfg.Parent.StateStore),
	)
	return Chain(mux, s.middleware(ctx)...), nil
}

// stateStore 按配置选择会话状态存储
func (s *Server) stateStore() (dialog.StateStore, error) {
	switch s.cfg.Parent.StateStore {
	case "", "memory":
		return dialog.NewMemoryStore(s.cfg.Parent.StateTTL, s.collector), nil
	case "redis":
		manager, err := cache.NewManager(cache.FromRedisConfig(s.cfg.Redis, s.cfg.Parent.StateTTL), s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		s.cache = manager
		s.health.RegisterCheck(handlers.NewRedisHealthCheck(manager.Ping))
		return dialog.NewRedisStore(manager, s.cfg.Parent.StateTTL, s.collector), nil
	default:
		return nil, fmt.Errorf("unsupported state store: %q", s.cfg.Parent.StateStore)
	}
}

// parentCredentials 返回出站签名器与令牌来源。未启用认证时不签名，令牌由用户输入。
func (s *Server) parentCredentials() (transport.Signer, dialog.TokenSource, error) {
	if !s.cfg.Auth.Enabled {
		return auth.Anonymous{}, nil, nil
	}
	signer, err := auth.NewJWTSigner(s.cfg.Auth, s.cfg.Parent.AppID, s.logger)
	if err != nil {
		return nil, nil, err
	}
	return signer, signer, nil
}

// =============================================================================
// 🧩 Skill 宿主
// =============================================================================

// skillHandler 组装回显 Skill 的调用端点、Manifest、协议路由与 websocket 入口
func (s *Server) skillHandler(ctx context.Context) (http.Handler, error) {
	manifest := s.cfg.SkillManifest()
	bot := echobot.New(echobot.ConfigFrom(s.cfg.SkillHost), s.logger)
	invoke := adapter.New(
		turn.Chain(bot, turn.Recover(s.logger), turn.Logging(s.logger)),
		adapter.WithMetrics(s.collector),
		adapter.WithLogger(s.logger),
	)
	skillHandler := handlers.NewSkillHandler(invoke, manifest, s.logger)

	router, err := s.protocolRouter()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	s.registerHealth(mux)
	mux.HandleFunc("/api/skill/messages", skillHandler.HandleInvoke)
	mux.HandleFunc("/api/skill/manifest", skillHandler.HandleManifest)
	mux.Handle(protocolPrefix+"/", http.StripPrefix(protocolPrefix, router))
	mux.Handle("/api/skill/stream", protocol.NewStreamHandler(router, s.cfg.Server.CORSAllowedOrigins, s.logger))

	var extra []Middleware
	if s.cfg.Auth.Enabled {
		audience := s.cfg.Auth.Audience
		if audience == "" {
			audience = s.cfg.SkillHost.AppID
		}
		verifier, err := auth.NewVerifier(s.cfg.Auth, audience)
		if err != nil {
			return nil, err
		}
		skip := append([]string{"/api/skill/manifest"}, healthPaths...)
		extra = append(extra, auth.Middleware(verifier, skip, s.logger))
	}

	s.logger.Info("Skill host initialized",
		zap.String("skill_id", manifest.ID),
		zap.Int("port", s.cfg.Server.SkillPort),
		zap.Bool("auth", s.cfg.Auth.Enabled),
	)
	return Chain(mux, s.middleware(ctx, extra...)...), nil
}

// protocolRouter 组装 Skill 到父 Bot 方向的协议路由。
// 令牌请求由本进程签发，交还控制时清空该会话的记录。
func (s *Server) protocolRouter() (*protocol.Router, error) {
	var signer *auth.JWTSigner
	if s.cfg.Auth.Enabled {
		var err error
		signer, err = auth.NewJWTSigner(s.cfg.Auth, s.cfg.SkillHost.AppID, s.logger)
		if err != nil {
			return nil, err
		}
	}

	transcript := protocol.NewTranscript(transcriptLimit)
	router := protocol.NewRouter(protocol.WithMetrics(s.collector), protocol.WithLogger(s.logger))

	opts := []protocol.HandlerOption{
		protocol.WithHandlerLogger(s.logger),
		protocol.OnHandoff(func(_ context.Context, a *activity.Activity) (any, error) {
			transcript.Forget(a.ConversationID())
			return nil, nil
		}),
	}
	if signer != nil {
		opts = append(opts, protocol.OnTokenRequest(func(ctx context.Context, a *activity.Activity) (any, error) {
			return issueTokenResponse(ctx, signer, s.cfg.Auth.TokenTTL, a)
		}))
	}
	protocol.NewActivityHandler(transcript, opts...).Register(router)
	transcript.Register(router)
	return router, nil
}

// issueTokenResponse 为令牌请求签发令牌，作为同步响应体返回
func issueTokenResponse(ctx context.Context, source dialog.TokenSource, ttl time.Duration, req *activity.Activity) (*activity.TokenResponse, error) {
	tokenReq, err := req.TokenRequestValue()
	if err != nil {
		return nil, err
	}
	if tokenReq.ConnectionName == "" {
		return nil, errors.New("token request without connection name")
	}
	token, err := source.Token(ctx, tokenReq.ConnectionName)
	if err != nil {
		return nil, err
	}
	resp := &activity.TokenResponse{
		ChannelID:      req.ChannelID,
		ConnectionName: tokenReq.ConnectionName,
		Token:          token,
	}
	if ttl > 0 {
		resp.Expiration = time.Now().Add(ttl).UTC().Format(time.RFC3339)
	}
	return resp, nil
}
