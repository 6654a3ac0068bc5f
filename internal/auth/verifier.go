package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/api/handlers"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/ctxkeys"
	"github.com/BaSui01/skillflow/types"
)

// ErrCallerNotAllowed 表示调用方不在允许列表中
var ErrCallerNotAllowed = errors.New("auth: caller not allowed")

// Verifier 校验父 Bot 签发的令牌
type Verifier struct {
	secret  []byte
	opts    []jwt.ParserOption
	allowed map[string]struct{}
}

// NewVerifier 创建校验器。audience 为空时不校验 aud。
func NewVerifier(cfg config.AuthConfig, audience string) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	v := &Verifier{secret: []byte(cfg.Secret), opts: opts}
	if len(cfg.AllowedCallers) > 0 {
		v.allowed = make(map[string]struct{}, len(cfg.AllowedCallers))
		for _, id := range cfg.AllowedCallers {
			v.allowed[id] = struct{}{}
		}
	}
	return v, nil
}

// Verify 解析并校验令牌，返回声明
func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if v.allowed != nil {
		if _, ok := v.allowed[claims.AppID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrCallerNotAllowed, claims.AppID)
		}
	}
	return claims, nil
}

// Middleware 校验入站请求的 Bearer 令牌，并把调用方应用 ID 写入 context
func Middleware(v *Verifier, skipPaths []string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	skipSet := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skipSet[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := skipSet[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				deny(w, r, types.ErrUnauthorized, "missing or malformed Authorization header")
				return
			}

			claims, err := v.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				logger.Debug("token validation failed", zap.Error(err))
				if errors.Is(err, ErrCallerNotAllowed) {
					deny(w, r, types.ErrForbidden, "caller not allowed")
					return
				}
				deny(w, r, types.ErrUnauthorized, "invalid or expired token")
				return
			}

			ctx := ctxkeys.WithCallerAppID(r.Context(), claims.AppID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deny 以统一错误信封拒绝请求
func deny(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	handlers.WriteRequestError(w, r, types.NewError(code, message), nil)
}
