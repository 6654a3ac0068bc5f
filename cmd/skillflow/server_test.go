package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/api/handlers"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/auth"
	"github.com/BaSui01/skillflow/skill"
	"github.com/BaSui01/skillflow/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// newTestServer 返回未启动监听的 Server；指标收集器保持 nil
func newTestServer(t *testing.T, role Role, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.SkillHost.ReplyDelay = 0
	cfg.Server.RateLimitRPS = 0
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	s := NewServer(cfg, role, zaptest.NewLogger(t))
	s.health = handlers.NewHealthHandler(s.logger)
	return s
}

func withAuth(cfg *config.Config) {
	cfg.Auth.Enabled = true
	cfg.Auth.Secret = testSecret
}

func startSkill(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h, err := s.skillHandler(ctx)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any, header http.Header) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func userMessage(text, id string) *activity.Activity {
	a := activity.NewMessage(text)
	a.ID = id
	a.ChannelID = "webchat"
	a.Conversation = &activity.ConversationAccount{ID: "conv-1"}
	a.From = &activity.ChannelAccount{ID: "user-1"}
	return a
}

func TestSkillHost_InvokeFiltersByChannel(t *testing.T) {
	srv := startSkill(t, newTestServer(t, RoleSkill, nil))

	resp := post(t, srv.URL+"/api/skill/messages", userMessage("hello", "m1"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var batch []*activity.Activity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	require.Len(t, batch, 1, "typing and trace are dropped on webchat")
	assert.Equal(t, "Echo: hello", batch[0].Text)
	assert.Equal(t, "m1", batch[0].ReplyToID)
}

func TestSkillHost_ProtocolRoutes(t *testing.T) {
	srv := startSkill(t, newTestServer(t, RoleSkill, nil))

	msg := userMessage("proactive", "")
	resp := post(t, srv.URL+protocolPrefix+"/activities/a1", msg, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rr struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rr))
	assert.NotEmpty(t, rr.ID)

	get, err := http.Get(srv.URL + protocolPrefix + "/conversations/conv-1/activities")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)
	var transcript []*activity.Activity
	require.NoError(t, json.NewDecoder(get.Body).Decode(&transcript))
	require.Len(t, transcript, 1)
	assert.Equal(t, "proactive", transcript[0].Text)
	assert.Equal(t, "a1", transcript[0].ReplyToID)

	eoc := activity.NewEndOfConversation(activity.EndCodeCompletedSuccessfully)
	eoc.Conversation = &activity.ConversationAccount{ID: "conv-1"}
	resp = post(t, srv.URL+protocolPrefix+"/activities/a2", eoc, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	get2, err := http.Get(srv.URL + protocolPrefix + "/conversations/conv-1/activities")
	require.NoError(t, err)
	defer get2.Body.Close()
	transcript = nil
	require.NoError(t, json.NewDecoder(get2.Body).Decode(&transcript))
	assert.Empty(t, transcript, "handoff forgets the conversation")

	missing, err := http.Get(srv.URL + protocolPrefix + "/nowhere")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSkillHost_TokenRequestWithoutAuthIsMisuse(t *testing.T) {
	srv := startSkill(t, newTestServer(t, RoleSkill, nil))

	req := activity.NewEvent(activity.EventTokenRequest)
	require.NoError(t, req.SetValue(activity.TokenRequest{ConnectionName: "graph"}))
	resp := post(t, srv.URL+protocolPrefix+"/activities/a1", req, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSkillHost_Auth(t *testing.T) {
	s := newTestServer(t, RoleSkill, withAuth)
	srv := startSkill(t, s)

	resp := post(t, srv.URL+"/api/skill/messages", userMessage("hello", "m1"), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	manifest, err := http.Get(srv.URL + "/api/skill/manifest")
	require.NoError(t, err)
	defer manifest.Body.Close()
	assert.Equal(t, http.StatusOK, manifest.StatusCode, "manifest is public")

	signer, err := auth.NewJWTSigner(s.cfg.Auth, s.cfg.Parent.AppID, nil)
	require.NoError(t, err)
	token, err := signer.Token(context.Background(), s.cfg.SkillHost.AppID)
	require.NoError(t, err)
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	resp = post(t, srv.URL+"/api/skill/messages", userMessage("hello", "m1"), header)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := activity.NewEvent(activity.EventTokenRequest)
	req.ChannelID = "webchat"
	require.NoError(t, req.SetValue(activity.TokenRequest{ConnectionName: "graph"}))
	resp = post(t, srv.URL+protocolPrefix+"/activities/a1", req, header)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tok activity.TokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	assert.Equal(t, "graph", tok.ConnectionName)
	assert.Equal(t, "webchat", tok.ChannelID)
	assert.NotEmpty(t, tok.Token)
	assert.NotEmpty(t, tok.Expiration)
}

func TestParentAndSkill_EndToEnd(t *testing.T) {
	skillServer := newTestServer(t, RoleSkill, withAuth)
	skillSrv := startSkill(t, skillServer)

	parent := newTestServer(t, RoleParent, func(cfg *config.Config) {
		withAuth(cfg)
		cfg.Skills = []skill.Manifest{{
			ID:       "echo",
			Endpoint: skillSrv.URL + "/api/skill/messages",
			AppID:    cfg.SkillHost.AppID,
			Actions:  []skill.Action{{ID: "echo"}},
		}}
		cfg.Parent.Patterns = []skill.Pattern{{Intent: "echo", Expr: `^echo\b`}}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h, err := parent.parentHandler(ctx)
	require.NoError(t, err)
	parentSrv := httptest.NewServer(h)
	defer parentSrv.Close()

	say := func(text, id string) []string {
		resp := post(t, parentSrv.URL+"/api/messages", userMessage(text, id), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out struct {
			Data handlers.MessagesResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return testutil.Texts(out.Data.Activities)
	}

	assert.Equal(t, []string{"Sorry, I didn't understand that."}, say("hi there", "m0"))

	started := say("echo please", "m1")
	require.NotEmpty(t, started)
	assert.Contains(t, started[len(started)-1], "Echo skill ready")

	assert.Contains(t, say("hello", "m2"), "Echo: hello")
	assert.Contains(t, say("login", "m3"), "You're signed in.")
	assert.Contains(t, say("bye", "m4"), "Goodbye!")

	assert.Equal(t, []string{"Sorry, I didn't understand that."}, say("hello again", "m5"), "control returned to the parent")
}

func TestIssueTokenResponse_RequiresConnection(t *testing.T) {
	signer, err := auth.NewJWTSigner(config.AuthConfig{Secret: testSecret}, "parent", nil)
	require.NoError(t, err)

	req := activity.NewEvent(activity.EventTokenRequest)
	require.NoError(t, req.SetValue(activity.TokenRequest{}))
	_, err = issueTokenResponse(context.Background(), signer, 0, req)
	assert.Error(t, err)
}

func TestStateStore_Unsupported(t *testing.T) {
	s := newTestServer(t, RoleParent, nil)
	s.cfg.Parent.StateStore = "etcd"
	_, err := s.stateStore()
	assert.Error(t, err)
}
