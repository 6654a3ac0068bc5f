package dialog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/turn"
)

// AuthStatus 认证子对话的进度
type AuthStatus int

const (
	// AuthWaiting 子对话仍在等待用户输入
	AuthWaiting AuthStatus = iota
	// AuthComplete 子对话结束，Token 可能为空
	AuthComplete
)

// AuthResult 认证子对话的结果
type AuthResult struct {
	Status AuthStatus
	Token  *activity.TokenResponse
}

// Authenticator 是对话中途为 Skill 获取令牌的认证子对话
type Authenticator interface {
	// Begin 响应 Skill 的令牌请求启动子对话
	Begin(ctx context.Context, tc *turn.Context, req *activity.TokenRequest) (AuthResult, error)
	// Continue 用下一条入站活动推进等待中的子对话
	Continue(ctx context.Context, tc *turn.Context) (AuthResult, error)
}

// TokenSource 按受众签发令牌
type TokenSource interface {
	Token(ctx context.Context, audience string) (string, error)
}

// IssuingAuthenticator 直接由父 Bot 的凭据签发令牌，受众为连接名，不需要用户参与。
type IssuingAuthenticator struct {
	Source TokenSource
	TTL    time.Duration
}

// Begin 实现 Authenticator
func (a *IssuingAuthenticator) Begin(ctx context.Context, tc *turn.Context, req *activity.TokenRequest) (AuthResult, error) {
	token, err := a.Source.Token(ctx, req.ConnectionName)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token for %q: %w", req.ConnectionName, err)
	}
	resp := &activity.TokenResponse{
		ChannelID:      tc.Activity().ChannelID,
		ConnectionName: req.ConnectionName,
		Token:          token,
	}
	if a.TTL > 0 {
		resp.Expiration = time.Now().Add(a.TTL).UTC().Format(time.RFC3339)
	}
	return AuthResult{Status: AuthComplete, Token: resp}, nil
}

// Continue 实现 Authenticator。签发是同步的，不会停留在等待状态。
func (a *IssuingAuthenticator) Continue(context.Context, *turn.Context) (AuthResult, error) {
	return AuthResult{Status: AuthComplete}, nil
}

// PromptAuthenticator 提示用户输入验证码，把下一条消息文本作为令牌。
// 用户回复 CancelWord 时子对话结束且没有令牌。
type PromptAuthenticator struct {
	Prompt     string
	CancelWord string
}

// Begin 实现 Authenticator
func (a *PromptAuthenticator) Begin(ctx context.Context, tc *turn.Context, req *activity.TokenRequest) (AuthResult, error) {
	prompt := a.Prompt
	if prompt == "" {
		prompt = "Please sign in to %s and paste the code here."
	}
	if strings.Contains(prompt, "%s") {
		prompt = fmt.Sprintf(prompt, req.ConnectionName)
	}
	if err := tc.SendText(ctx, prompt); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Status: AuthWaiting}, nil
}

// Continue 实现 Authenticator
func (a *PromptAuthenticator) Continue(_ context.Context, tc *turn.Context) (AuthResult, error) {
	in := tc.Activity()
	if in.Type != activity.TypeMessage {
		return AuthResult{Status: AuthWaiting}, nil
	}
	code := strings.TrimSpace(in.Text)
	if code == "" {
		return AuthResult{Status: AuthWaiting}, nil
	}
	if a.CancelWord != "" && strings.EqualFold(code, a.CancelWord) {
		return AuthResult{Status: AuthComplete}, nil
	}
	return AuthResult{
		Status: AuthComplete,
		Token:  &activity.TokenResponse{ChannelID: in.ChannelID, Token: code},
	}, nil
}
