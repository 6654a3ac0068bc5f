package echobot

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/skill/adapter"
	"github.com/BaSui01/skillflow/turn"
)

type captureSender struct {
	sent []*activity.Activity
}

func (c *captureSender) SendActivities(_ context.Context, batch []*activity.Activity) error {
	c.sent = append(c.sent, batch...)
	return nil
}

func (c *captureSender) UpdateActivity(context.Context, *activity.Activity) error {
	return turn.ErrNotImplemented
}

func (c *captureSender) DeleteActivity(context.Context, activity.ConversationReference, string) error {
	return turn.ErrNotImplemented
}

func inbound(a *activity.Activity) *activity.Activity {
	a.ID = "in-1"
	a.ChannelID = "webchat"
	a.From = &activity.ChannelAccount{ID: "parent"}
	a.Recipient = &activity.ChannelAccount{ID: "echo"}
	a.Conversation = &activity.ConversationAccount{ID: "c1"}
	return a
}

func run(t *testing.T, bot *Bot, in *activity.Activity) []*activity.Activity {
	t.Helper()
	out := &captureSender{}
	require.NoError(t, bot.OnTurn(context.Background(), turn.NewContext(inbound(in), out)))
	return out.sent
}

func kinds(batch []*activity.Activity) []activity.Type {
	out := make([]activity.Type, len(batch))
	for i, a := range batch {
		out[i] = a.Type
	}
	return out
}

func TestBot_Echo(t *testing.T) {
	bot := New(Config{ReplyDelay: 250 * time.Millisecond}, zaptest.NewLogger(t))

	sent := run(t, bot, activity.NewMessage("  hello "))
	require.Equal(t, []activity.Type{
		activity.TypeTyping, activity.TypeDelay, activity.TypeTrace, activity.TypeMessage,
	}, kinds(sent))
	assert.Equal(t, 250, sent[1].DelayValue())
	assert.Equal(t, "EchoTrace", sent[2].Name)
	assert.Equal(t, "Echo: hello", sent[3].Text)
	assert.Equal(t, "in-1", sent[3].ReplyToID)
}

func TestBot_EchoWithoutDelay(t *testing.T) {
	bot := New(Config{}, nil)
	sent := run(t, bot, activity.NewMessage("x"))
	assert.Equal(t, []activity.Type{activity.TypeTyping, activity.TypeTrace, activity.TypeMessage}, kinds(sent))
}

func TestBot_LoginRequestsToken(t *testing.T) {
	bot := New(Config{ConnectionName: "graph"}, nil)

	sent := run(t, bot, activity.NewMessage("Login"))
	require.Len(t, sent, 2)
	assert.Equal(t, "Signing you in...", sent[0].Text)
	require.True(t, sent[1].IsTokenRequest())
	req, err := sent[1].TokenRequestValue()
	require.NoError(t, err)
	assert.Equal(t, "graph", req.ConnectionName)
}

func TestBot_TokenResponse(t *testing.T) {
	bot := New(Config{}, nil)

	withToken := activity.NewEvent(activity.EventTokenResponse)
	require.NoError(t, withToken.SetValue(activity.TokenResponse{Token: "abc", ConnectionName: "graph"}))
	sent := run(t, bot, withToken)
	require.Len(t, sent, 1)
	assert.Equal(t, "You're signed in.", sent[0].Text)

	empty := activity.NewEvent(activity.EventTokenResponse)
	require.NoError(t, empty.SetValue(activity.TokenResponse{}))
	sent = run(t, bot, empty)
	require.Len(t, sent, 1)
	assert.Equal(t, "Sign-in did not complete.", sent[0].Text)
}

func TestBot_EndsConversation(t *testing.T) {
	bot := New(Config{}, nil)
	for _, word := range []string{"bye", "STOP"} {
		t.Run(word, func(t *testing.T) {
			sent := run(t, bot, activity.NewMessage(word))
			require.Len(t, sent, 2)
			assert.Equal(t, "Goodbye!", sent[0].Text)
			assert.True(t, sent[1].IsEndOfConversation())
			assert.Equal(t, activity.EndCodeCompletedSuccessfully, sent[1].Code)
		})
	}
}

func TestBot_BeginAndCancel(t *testing.T) {
	bot := New(Config{}, nil)

	begin := activity.NewEvent(activity.EventSkillBegin)
	require.NoError(t, begin.SetValue(map[string]any{"city": "Oslo", "day": "monday"}))
	sent := run(t, bot, begin)
	require.Len(t, sent, 1)
	assert.Equal(t, "Echo skill ready with city=Oslo, day=monday.", sent[0].Text)

	sent = run(t, bot, activity.NewEvent(activity.EventSkillBegin))
	assert.Contains(t, sent[0].Text, "Echo skill ready.")

	sent = run(t, bot, activity.NewEvent(activity.EventCancelAllSkillDialogs))
	require.Len(t, sent, 1)
	assert.True(t, sent[0].IsEndOfConversation())
	assert.Equal(t, activity.EndCodeUserCancelled, sent[0].Code)
}

func TestBot_BehindAdapter(t *testing.T) {
	cfg := ConfigFrom(config.SkillHostConfig{ConnectionName: "c", ReplyDelay: time.Millisecond})
	a := adapter.New(New(cfg, nil))

	resp, err := a.ProcessActivity(context.Background(), inbound(activity.NewMessage("ping")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Body, 1, "typing, trace and delay are filtered on a regular channel")
	assert.Equal(t, "Echo: ping", resp.Body[0].Text)
}
