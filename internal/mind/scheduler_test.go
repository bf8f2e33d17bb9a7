package mind

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keshon/kokoroflow/internal/config"
)

func TestTickKindString(t *testing.T) {
	assert.Equal(t, "wait_check", TickWaitCheck.String())
	assert.Equal(t, "proactive_scan", TickProactiveScan.String())
	assert.Equal(t, "unknown", TickKind(9).String())
}

func TestRunHandlesSubmittedMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, func(c *config.Config) {
		c.ContinuousThinking.CheckInterval = 5 * time.Millisecond
		c.Proactive.CheckInterval = 5 * time.Millisecond
	})
	h.provider.push(replyJSON("hey!", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	require.NoError(t, h.loop.Submit(ctx, NewMessage{SessionID: "s1", ID: "m1", Content: "hello"}))
	require.Eventually(t, func() bool { return len(h.exec.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "hey!", h.exec.all()[0].Content)
	assert.Empty(t, h.loop.Jobs().List())
}

func TestRunResolvesExpiredWaits(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, func(c *config.Config) {
		c.ContinuousThinking.CheckInterval = 5 * time.Millisecond
		c.Proactive.Enabled = false
	})
	sess := h.waiting(t, "s1")
	h.provider.push(nothingJSON(0))
	h.clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	require.Eventually(t, func() bool { return sess.Summary().State == StateStopped }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestSubmitHonoursContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < cap(h.loop.inbox); i++ {
		require.NoError(t, h.loop.Submit(ctx, NewMessage{SessionID: "s"}))
	}
	cancel()
	assert.ErrorIs(t, h.loop.Submit(ctx, NewMessage{SessionID: "s"}), context.Canceled)
}

func TestRunDispatchesAcceptedMessagesOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.provider.push(replyJSON("bye for now", 0))
	require.NoError(t, h.loop.Submit(context.Background(), NewMessage{SessionID: "s1", ID: "m1", Content: "last words"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.loop.Run(ctx))

	acts := h.exec.all()
	require.Len(t, acts, 1)
	assert.Equal(t, "bye for now", acts[0].Content)
}

func userTexts(s *Session) []string {
	var out []string
	for _, e := range s.Snapshot().Events {
		if e.Kind == EventUserMessage {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestRunRecordsBurstInArrivalOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, func(c *config.Config) { c.Prompt.MaxLogEntries = 500 })
	h.provider.push(nothingJSON(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	var want []string
	for i := 0; i < 20; i++ {
		text := strconv.Itoa(i)
		want = append(want, text)
		require.NoError(t, h.loop.Submit(ctx, NewMessage{SessionID: "s1", ID: text, Content: text}))
	}
	require.Eventually(t, func() bool {
		sess, ok := h.store.Lookup("s1")
		return ok && len(userTexts(sess)) == len(want)
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	sess, _ := h.store.Lookup("s1")
	assert.Equal(t, want, userTexts(sess))
}

func TestRunKeepsMessagesWithMissingOrRepeatedIDs(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t)
	h.provider.push(nothingJSON(0))
	for _, id := range []string{"", "", "dup", "dup"} {
		require.NoError(t, h.loop.Submit(context.Background(), NewMessage{SessionID: "s1", ID: id, Content: "msg " + id}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.loop.Run(ctx))

	sess, ok := h.store.Lookup("s1")
	require.True(t, ok)
	assert.Equal(t, []string{"msg ", "msg ", "msg dup", "msg dup"}, userTexts(sess))
}
