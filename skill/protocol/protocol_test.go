package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/skillflow/activity"
)

// =============================================================================
// 测试替身
// =============================================================================

type recordingConversation struct {
	mu        sync.Mutex
	delivered []*activity.Activity
	updated   []*activity.Activity
	deleted   []string
	err       error
}

func (c *recordingConversation) SendActivities(_ context.Context, batch []*activity.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.delivered = append(c.delivered, batch...)
	return nil
}

func (c *recordingConversation) UpdateActivity(_ context.Context, a *activity.Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, a)
	return c.err
}

func (c *recordingConversation) DeleteActivity(_ context.Context, _ activity.ConversationReference, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, id)
	return c.err
}

type callbackRecorder struct {
	mu    sync.Mutex
	calls []*activity.Activity
	reply any
	err   error
}

func (r *callbackRecorder) fn(_ context.Context, a *activity.Activity) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, a)
	return r.reply, r.err
}

func newActivityRouter(t *testing.T, conv *recordingConversation, opts ...HandlerOption) *Router {
	t.Helper()
	logger := zaptest.NewLogger(t)
	r := NewRouter(WithLogger(logger))
	NewActivityHandler(conv, append(opts, WithHandlerLogger(logger))...).Register(r)
	return r
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// =============================================================================
// 路由匹配
// =============================================================================

func TestRouter_Match(t *testing.T) {
	r := NewRouter()
	hit := func(name string) HandlerFunc {
		return func(_ context.Context, req *Request) (any, error) {
			return map[string]any{"route": name, "params": req.Params}, nil
		}
	}
	r.Handle(http.MethodGet, "/conversations/{conversationId}/activities", hit("list"))
	r.Handle(http.MethodPost, "/activities/{activityId}", hit("post"))

	tests := []struct {
		name   string
		method string
		path   string
		status int
		route  string
		params map[string]string
	}{
		{name: "param extracted", method: "POST", path: "/activities/abc", status: 200, route: "post", params: map[string]string{"activityId": "abc"}},
		{name: "trailing slash", method: "POST", path: "activities/abc/", status: 200, route: "post", params: map[string]string{"activityId": "abc"}},
		{name: "lower case method", method: "post", path: "/activities/abc", status: 200, route: "post", params: map[string]string{"activityId": "abc"}},
		{name: "nested", method: "GET", path: "/conversations/c1/activities", status: 200, route: "list", params: map[string]string{"conversationId": "c1"}},
		{name: "wrong method", method: "PATCH", path: "/activities/abc", status: 404},
		{name: "missing param", method: "POST", path: "/activities/", status: 404},
		{name: "extra segment", method: "POST", path: "/activities/abc/def", status: 404},
		{name: "unknown path", method: "GET", path: "/nope", status: 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.Dispatch(context.Background(), tt.method, tt.path, nil)
			assert.Equal(t, tt.status, resp.Status)
			if tt.status != http.StatusOK {
				return
			}
			body := resp.Body.(map[string]any)
			assert.Equal(t, tt.route, body["route"])
			assert.Equal(t, tt.params, body["params"])
		})
	}
}

func TestRouter_HandlerErrorAndPanic(t *testing.T) {
	r := NewRouter(WithLogger(zaptest.NewLogger(t)))
	r.Handle(http.MethodGet, "/fail", func(context.Context, *Request) (any, error) {
		return nil, errors.New("boom")
	})
	r.Handle(http.MethodGet, "/panic", func(context.Context, *Request) (any, error) {
		panic("kaboom")
	})

	resp := r.Dispatch(context.Background(), "GET", "/fail", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Equal(t, map[string]string{"error": "boom"}, resp.Body)

	resp = r.Dispatch(context.Background(), "GET", "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Body.(map[string]string)["error"], "kaboom")
}

// =============================================================================
// ActivityHandler
// =============================================================================

func TestActivityHandler_PostDeliversMessage(t *testing.T) {
	conv := &recordingConversation{}
	tokens := &callbackRecorder{}
	r := newActivityRouter(t, conv, OnTokenRequest(tokens.fn))

	msg := activity.NewMessage("hello")
	msg.Conversation = &activity.ConversationAccount{ID: "c1"}
	resp := r.Dispatch(context.Background(), "POST", "/activities/123", mustJSON(t, msg))

	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, conv.delivered, 1)
	got := conv.delivered[0]
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "123", got.ReplyToID)
	assert.Equal(t, ResourceResponse{ID: got.ID}, resp.Body)
	assert.NotEmpty(t, got.ID)
	assert.Empty(t, tokens.calls)
}

func TestActivityHandler_PostTokenRequest(t *testing.T) {
	conv := &recordingConversation{}
	tokens := &callbackRecorder{reply: map[string]string{"token": "t"}}
	r := newActivityRouter(t, conv, OnTokenRequest(tokens.fn))

	req := activity.NewEvent(activity.EventTokenRequest)
	require.NoError(t, req.SetValue(activity.TokenRequest{ConnectionName: "graph"}))
	resp := r.Dispatch(context.Background(), "POST", "/activities/123", mustJSON(t, req))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]string{"token": "t"}, resp.Body)
	require.Len(t, tokens.calls, 1)
	assert.Empty(t, conv.delivered, "token requests never reach the conversation")
}

func TestActivityHandler_PostHandoff(t *testing.T) {
	conv := &recordingConversation{}
	handoff := &callbackRecorder{}
	r := newActivityRouter(t, conv, OnHandoff(handoff.fn))

	eoc := activity.NewEndOfConversation(activity.EndCodeCompletedSuccessfully)
	resp := r.Dispatch(context.Background(), "POST", "/activities/9", mustJSON(t, eoc))

	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, handoff.calls, 1)
	assert.Equal(t, activity.EndCodeCompletedSuccessfully, handoff.calls[0].Code)
	assert.Empty(t, conv.delivered)
}

func TestActivityHandler_MissingCallbacks(t *testing.T) {
	conv := &recordingConversation{}
	r := newActivityRouter(t, conv)

	for name, a := range map[string]*activity.Activity{
		"token request": activity.NewEvent(activity.EventTokenRequest),
		"handoff":       activity.NewEndOfConversation(""),
	} {
		t.Run(name, func(t *testing.T) {
			resp := r.Dispatch(context.Background(), "POST", "/activities/1", mustJSON(t, a))
			assert.Equal(t, http.StatusInternalServerError, resp.Status)
		})
	}
	assert.Empty(t, conv.delivered)

	h := NewActivityHandler(conv)
	_, err := h.post(context.Background(), &Request{Body: mustJSON(t, activity.NewEvent(activity.EventTokenRequest))})
	assert.ErrorIs(t, err, ErrNoTokenRequestHandler)
	_, err = h.post(context.Background(), &Request{Body: mustJSON(t, activity.NewEndOfConversation(""))})
	assert.ErrorIs(t, err, ErrNoHandoffHandler)
}

func TestActivityHandler_PostMalformedBody(t *testing.T) {
	conv := &recordingConversation{}
	r := newActivityRouter(t, conv)

	resp := r.Dispatch(context.Background(), "POST", "/activities/1", []byte(`{"text":"no type"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Empty(t, conv.delivered)
}

func TestActivityHandler_PutAndDelete(t *testing.T) {
	conv := &recordingConversation{}
	r := newActivityRouter(t, conv)

	upd := activity.NewMessage("edited")
	upd.ID = "ignored"
	resp := r.Dispatch(context.Background(), "PUT", "/activities/42", mustJSON(t, upd))
	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, conv.updated, 1)
	assert.Equal(t, "42", conv.updated[0].ID, "path id wins")
	assert.Equal(t, ResourceResponse{ID: "42"}, resp.Body)

	resp = r.Dispatch(context.Background(), "DELETE", "/activities/123", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Nil(t, resp.Body)
	assert.Equal(t, []string{"123"}, conv.deleted)
}

func TestActivityHandler_ConversationFailure(t *testing.T) {
	conv := &recordingConversation{err: errors.New("channel down")}
	r := newActivityRouter(t, conv)

	resp := r.Dispatch(context.Background(), "DELETE", "/activities/1", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Body.(map[string]string)["error"], "channel down")
}

func TestProperty_RouteDispatch(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		conv := &recordingConversation{}
		tokens := &callbackRecorder{}
		r := NewRouter()
		NewActivityHandler(conv, OnTokenRequest(tokens.fn)).Register(r)

		id := rapid.StringMatching(`[A-Za-z0-9_-]{1,24}`).Draw(rt, "activityId")
		path := "/activities/" + id

		switch rapid.IntRange(0, 3).Draw(rt, "op") {
		case 0:
			msg := activity.NewMessage(rapid.String().Draw(rt, "text"))
			data, _ := json.Marshal(msg)
			resp := r.Dispatch(context.Background(), "POST", path, data)
			if resp.Status != http.StatusOK || len(conv.delivered) != 1 || len(tokens.calls) != 0 {
				rt.Fatalf("message not delivered: status=%d delivered=%d", resp.Status, len(conv.delivered))
			}
		case 1:
			data, _ := json.Marshal(activity.NewEvent(activity.EventTokenRequest))
			resp := r.Dispatch(context.Background(), "POST", path, data)
			if resp.Status != http.StatusOK || len(conv.delivered) != 0 || len(tokens.calls) != 1 {
				rt.Fatalf("token request misrouted: status=%d delivered=%d", resp.Status, len(conv.delivered))
			}
		case 2:
			resp := r.Dispatch(context.Background(), "DELETE", path, nil)
			if resp.Status != http.StatusOK || len(conv.deleted) != 1 || conv.deleted[0] != id {
				rt.Fatalf("delete got %v, want %q", conv.deleted, id)
			}
		default:
			method := rapid.SampledFrom([]string{"GET", "PATCH"}).Draw(rt, "method")
			resp := r.Dispatch(context.Background(), method, path, nil)
			if resp.Status != http.StatusNotFound {
				rt.Fatalf("%s %s: status %d, want 404", method, path, resp.Status)
			}
		}
	})
}

// =============================================================================
// Transcript
// =============================================================================

func TestTranscript_Lifecycle(t *testing.T) {
	tr := NewTranscript(0)
	ctx := context.Background()
	conv := &activity.ConversationAccount{ID: "c1"}

	a := activity.NewMessage("one")
	a.Conversation = conv
	b := activity.NewMessage("two")
	b.Conversation = conv
	require.NoError(t, tr.SendActivities(ctx, []*activity.Activity{a, b}))

	log := tr.Activities("c1")
	require.Len(t, log, 2)
	assert.Equal(t, "one", log[0].Text)

	edit := a.Clone()
	edit.Text = "uno"
	require.NoError(t, tr.UpdateActivity(ctx, edit))
	assert.Equal(t, "uno", tr.Activities("c1")[0].Text)

	require.NoError(t, tr.DeleteActivity(ctx, activity.ConversationReference{}, a.ID))
	log = tr.Activities("c1")
	require.Len(t, log, 1)
	assert.Equal(t, "two", log[0].Text)

	err := tr.DeleteActivity(ctx, activity.ConversationReference{Conversation: conv}, "missing")
	assert.ErrorIs(t, err, ErrActivityNotFound)

	tr.Forget("c1")
	assert.Empty(t, tr.Activities("c1"))
}

func TestTranscript_Limit(t *testing.T) {
	tr := NewTranscript(2)
	for _, text := range []string{"a", "b", "c"} {
		m := activity.NewMessage(text)
		m.Conversation = &activity.ConversationAccount{ID: "c"}
		require.NoError(t, tr.SendActivities(context.Background(), []*activity.Activity{m}))
	}
	log := tr.Activities("c")
	require.Len(t, log, 2)
	assert.Equal(t, "b", log[0].Text)
	assert.Equal(t, "c", log[1].Text)
}

// =============================================================================
// HTTP 与 websocket 接入
// =============================================================================

func newSurface(t *testing.T) (*Router, *Transcript) {
	t.Helper()
	tr := NewTranscript(0)
	r := NewRouter(WithLogger(zaptest.NewLogger(t)))
	NewActivityHandler(tr).Register(r)
	tr.Register(r)
	return r, tr
}

func TestRouter_ServeHTTP(t *testing.T) {
	r, tr := newSurface(t)
	srv := httptest.NewServer(http.StripPrefix("/api/skill/v1", r))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/api/skill/v1/activities/7", "application/json",
		strings.NewReader(`{"type":"message","text":"hi","conversation":{"id":"c1"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rr ResourceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rr))
	assert.NotEmpty(t, rr.ID)
	require.Len(t, tr.Activities("c1"), 1)

	resp2, err := http.Get(srv.URL + "/api/skill/v1/unknown")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
	data, _ := io.ReadAll(resp2.Body)
	assert.Contains(t, string(data), "endpoint not found")
}

func TestStreamHandler_Frames(t *testing.T) {
	r, _ := newSurface(t)
	srv := httptest.NewServer(NewStreamHandler(r, nil, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	frames := []Frame{
		{ID: "f1", Method: "POST", Path: "/activities/1", Body: json.RawMessage(`{"type":"message","text":"hi","conversation":{"id":"c1"}}`)},
		{ID: "f2", Method: "GET", Path: "/conversations/c1/activities"},
		{Method: "DELETE", Path: "/nowhere"},
	}
	var got []struct {
		ID     string          `json:"id"`
		Status int             `json:"status"`
		Body   json.RawMessage `json:"body"`
	}
	for _, f := range frames {
		require.NoError(t, wsjson.Write(ctx, conn, f))
		var resp struct {
			ID     string          `json:"id"`
			Status int             `json:"status"`
			Body   json.RawMessage `json:"body"`
		}
		require.NoError(t, wsjson.Read(ctx, conn, &resp))
		got = append(got, resp)
	}

	assert.Equal(t, "f1", got[0].ID)
	assert.Equal(t, http.StatusOK, got[0].Status)

	assert.Equal(t, "f2", got[1].ID)
	var log []*activity.Activity
	require.NoError(t, json.Unmarshal(got[1].Body, &log))
	require.Len(t, log, 1)
	assert.Equal(t, "hi", log[0].Text)

	assert.NotEmpty(t, got[2].ID, "missing frame ids are generated")
	assert.Equal(t, http.StatusNotFound, got[2].Status)
}
