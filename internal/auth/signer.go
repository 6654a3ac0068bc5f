package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/skillflow/config"
)

// ErrNoSecret 表示启用了签名但没有配置密钥
var ErrNoSecret = errors.New("auth: signing secret not configured")

// refreshSkew 令牌在到期前多久重新签发
const refreshSkew = time.Minute

// Claims 是父 Bot 与 Skill 之间令牌的声明
type Claims struct {
	AppID string `json:"appid"`
	jwt.RegisteredClaims
}

type cachedToken struct {
	raw       string
	expiresAt time.Time
}

// JWTSigner 为发往 Skill 的请求签发 HS256 Bearer 令牌，按 audience 缓存
type JWTSigner struct {
	secret []byte
	issuer string
	appID  string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	tokens map[string]cachedToken
	group  singleflight.Group
}

// NewJWTSigner 创建签名器。appID 是父 Bot 的应用 ID。
func NewJWTSigner(cfg config.AuthConfig, appID string, logger *zap.Logger) (*JWTSigner, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TokenTTL
	if ttl <= 2*refreshSkew {
		ttl = time.Hour
	}
	return &JWTSigner{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		appID:  appID,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "jwt_signer")),
		now:    time.Now,
		tokens: make(map[string]cachedToken),
	}, nil
}

// Token 返回指定 audience 的有效令牌，必要时重新签发
func (s *JWTSigner) Token(ctx context.Context, audience string) (string, error) {
	now := s.now()
	s.mu.RLock()
	tok, ok := s.tokens[audience]
	s.mu.RUnlock()
	if ok && now.Add(refreshSkew).Before(tok.expiresAt) {
		return tok.raw, nil
	}

	v, err, _ := s.group.Do(audience, func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.mint(audience)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *JWTSigner) mint(audience string) (string, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		AppID: s.appID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   s.appID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token for %s: %w", audience, err)
	}

	s.mu.Lock()
	s.tokens[audience] = cachedToken{raw: raw, expiresAt: exp}
	s.mu.Unlock()

	s.logger.Debug("token issued", zap.String("audience", audience), zap.Time("expires_at", exp))
	return raw, nil
}

// Sign 为请求设置 Authorization 头。audience 是目标 Skill 的应用 ID。
func (s *JWTSigner) Sign(ctx context.Context, req *http.Request, audience string) error {
	tok, err := s.Token(ctx, audience)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

// Anonymous 不签名，用于本地开发与未启用认证的部署
type Anonymous struct{}

// Sign 实现签名接口，不修改请求
func (Anonymous) Sign(context.Context, *http.Request, string) error { return nil }
