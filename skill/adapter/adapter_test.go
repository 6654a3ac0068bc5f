package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/skillflow/activity"
	"github.com/BaSui01/skillflow/turn"
)

// chattyBot 每轮依次发送 message、trace、typing、delay、message
var chattyBot = turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
	delay := &activity.Activity{Type: activity.TypeDelay}
	_ = delay.SetValue(250)
	return tc.SendActivities(ctx, []*activity.Activity{
		tc.Activity().CreateReply("first"),
		tc.Activity().CreateTrace("debug", map[string]string{"k": "v"}, "", ""),
		{Type: activity.TypeTyping},
		delay,
		tc.Activity().CreateReply("second"),
	})
})

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slept = append(s.slept, d)
	return nil
}

func newAdapter(t *testing.T, h turn.Handler) (*Adapter, *sleepRecorder) {
	t.Helper()
	a := New(h, WithLogger(zaptest.NewLogger(t)))
	rec := &sleepRecorder{}
	a.sleep = rec.sleep
	return a, rec
}

func message(channel, text string) *activity.Activity {
	a := activity.NewMessage(text)
	a.ID = "m1"
	a.ChannelID = channel
	a.From = &activity.ChannelAccount{ID: "parent-bot"}
	a.Recipient = &activity.ChannelAccount{ID: "skill"}
	a.Conversation = &activity.ConversationAccount{ID: "c1"}
	return a
}

func types(batch []*activity.Activity) []activity.Type {
	out := make([]activity.Type, len(batch))
	for i, a := range batch {
		out[i] = a.Type
	}
	return out
}

func TestProcessActivity_ChannelFiltering(t *testing.T) {
	tests := []struct {
		channel string
		want    []activity.Type
	}{
		{
			channel: "webchat",
			want:    []activity.Type{activity.TypeMessage, activity.TypeMessage},
		},
		{
			channel: activity.ChannelEmulator,
			want:    []activity.Type{activity.TypeMessage, activity.TypeTrace, activity.TypeMessage},
		},
		{
			channel: activity.ChannelTest,
			want:    []activity.Type{activity.TypeMessage, activity.TypeTyping, activity.TypeMessage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			a, rec := newAdapter(t, chattyBot)

			resp, err := a.ProcessActivity(context.Background(), message(tt.channel, "hi"))
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, tt.want, types(resp.Body))
			assert.Equal(t, []time.Duration{250 * time.Millisecond}, rec.slept, "delay pauses and is not queued")
		})
	}
}

func TestProcessActivity_PreservesProductionOrder(t *testing.T) {
	h := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		for _, text := range []string{"a", "b", "c"} {
			if err := tc.SendText(ctx, text); err != nil {
				return err
			}
		}
		return nil
	})
	a, _ := newAdapter(t, h)

	resp, err := a.ProcessActivity(context.Background(), message("webchat", "go"))
	require.NoError(t, err)
	require.Len(t, resp.Body, 3)
	assert.Equal(t, "a", resp.Body[0].Text)
	assert.Equal(t, "b", resp.Body[1].Text)
	assert.Equal(t, "c", resp.Body[2].Text)
	for _, r := range resp.Body {
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, "c1", r.ConversationID())
		assert.Equal(t, "m1", r.ReplyToID)
	}
}

func TestProcessActivity_QueueIsPerInvocation(t *testing.T) {
	h := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		return tc.SendText(ctx, "echo: "+tc.Activity().Text)
	})
	a, _ := newAdapter(t, h)

	var wg sync.WaitGroup
	results := make([]*InvokeResponse, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := a.ProcessActivity(context.Background(), message("webchat", string(rune('a'+i))))
			assert.NoError(t, err)
			results[i] = resp
		}(i)
	}
	wg.Wait()

	for i, resp := range results {
		require.Len(t, resp.Body, 1)
		assert.Equal(t, "echo: "+string(rune('a'+i)), resp.Body[0].Text)
	}
}

func TestProcessActivity_UpdateDeleteNotImplemented(t *testing.T) {
	var updateErr, deleteErr error
	h := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		updateErr = tc.UpdateActivity(ctx, tc.Activity().CreateReply("x"))
		deleteErr = tc.DeleteActivity(ctx, "some-id")
		return nil
	})
	a, _ := newAdapter(t, h)

	_, err := a.ProcessActivity(context.Background(), message("webchat", "hi"))
	require.NoError(t, err)
	assert.ErrorIs(t, updateErr, turn.ErrNotImplemented)
	assert.ErrorIs(t, deleteErr, turn.ErrNotImplemented)
}

func TestProcessActivity_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	a, _ := newAdapter(t, turn.HandlerFunc(func(context.Context, *turn.Context) error { return boom }))

	resp, err := a.ProcessActivity(context.Background(), message("webchat", "hi"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, boom)
}

func TestHandle_DecodeFailures(t *testing.T) {
	ran := false
	a, _ := newAdapter(t, turn.HandlerFunc(func(context.Context, *turn.Context) error {
		ran = true
		return nil
	}))

	for name, body := range map[string]string{
		"missing type": `{"text":"hi"}`,
		"not object":   `["x"]`,
		"malformed":    `{"type":`,
		"bad time":     `{"type":"message","timestamp":"yesterday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := a.Handle(context.Background(), []byte(body))
			require.Error(t, err)
			assert.True(t, activity.IsDecodeError(err))
			assert.Equal(t, http.StatusBadRequest, resp.Status)
		})
	}
	assert.False(t, ran, "business logic never runs on decode failure")
}

func TestHandle_RepairsTimestamps(t *testing.T) {
	var got *time.Time
	a, _ := newAdapter(t, turn.HandlerFunc(func(_ context.Context, tc *turn.Context) error {
		got = tc.Activity().Timestamp
		return nil
	}))

	resp, err := a.Handle(context.Background(), []byte(`{"type":"message","timestamp":"2024-02-03T04:05:06.789Z"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 789000000, time.UTC), got.UTC())
}

func TestDelay_CancelledContext(t *testing.T) {
	h := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		d := &activity.Activity{Type: activity.TypeDelay}
		_ = d.SetValue(60000)
		return tc.SendActivity(ctx, d)
	})
	a := New(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.ProcessActivity(ctx, message("webchat", "hi"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay_HugeValueIsCapped(t *testing.T) {
	h := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		d := &activity.Activity{Type: activity.TypeDelay, Value: json.RawMessage(`1e19`)}
		return tc.SendActivity(ctx, d)
	})
	a, rec := newAdapter(t, h)

	_, err := a.ProcessActivity(context.Background(), message("webchat", "hi"))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Minute}, rec.slept)
}
