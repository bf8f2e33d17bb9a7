package mind

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/kokoroflow/internal/config"
)

func fired(s *Session) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wait == nil {
		return nil
	}
	return append([]int(nil), s.wait.Fired...)
}

func TestContinuousThoughtThresholds(t *testing.T) {
	h := newHarness(t)
	h.provider.push(replyJSON("did you see the game?", 100))
	h.say(t, "s1", "hi")
	sess := h.session(t, "s1")
	h.provider.push("a bit curious")

	h.clock.Advance(20 * time.Second) // 0.20, nothing due
	h.checkWaits(t)
	assert.Empty(t, fired(sess))

	h.clock.Advance(15 * time.Second) // 0.35
	h.checkWaits(t)
	assert.Equal(t, []int{0}, fired(sess))

	h.clock.Advance(15 * time.Second) // 0.50, next threshold is 0.6
	h.checkWaits(t)
	assert.Equal(t, []int{0}, fired(sess))

	h.clock.Advance(40 * time.Second) // 0.90, only the next threshold fires
	h.checkWaits(t)
	assert.Equal(t, []int{0, 1}, fired(sess))

	h.clock.Advance(5 * time.Second) // 0.95, inside min interval
	h.checkWaits(t)
	assert.Equal(t, []int{0, 1}, fired(sess))

	var thoughts []Event
	for _, e := range sess.Snapshot().Events {
		if e.Kind == EventContinuousThought {
			thoughts = append(thoughts, e)
		}
	}
	require.Len(t, thoughts, 2)
	assert.Equal(t, "a bit curious", thoughts[0].Text)
	assert.InDelta(t, 0.35, thoughts[0].Progress, 1e-9)
	assert.InDelta(t, 0.90, thoughts[1].Progress, 1e-9)
	assert.False(t, thoughts[0].Visible)

	// thoughts are private
	assert.Len(t, h.exec.all(), 1)
	assert.Equal(t, StateWaiting, sess.Summary().State)
}

func TestContinuousThoughtFallback(t *testing.T) {
	h := newHarness(t)
	h.provider.push(replyJSON("well?", 100))
	h.say(t, "s1", "hi")
	sess := h.session(t, "s1")
	h.provider.pushErr(errors.New("model down"))

	h.clock.Advance(35 * time.Second)
	h.checkWaits(t)

	sess.mu.Lock()
	thoughts := append([]string(nil), sess.wait.Thoughts...)
	sess.mu.Unlock()
	assert.Equal(t, []string{fallbackThought(0.35)}, thoughts)
}

func TestContinuousThoughtClipped(t *testing.T) {
	h := newHarness(t)
	h.provider.push(replyJSON("well?", 100))
	h.say(t, "s1", "hi")
	sess := h.session(t, "s1")
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'a'
	}
	h.provider.push(string(long))

	h.clock.Advance(35 * time.Second)
	h.checkWaits(t)

	e, ok := sess.log.LastOf(EventContinuousThought)
	require.True(t, ok)
	assert.Len(t, []rune(e.Text), maxThoughtLen)
}

func TestContinuousThoughtFeedsTimeout(t *testing.T) {
	h := newHarness(t)
	h.provider.push(replyJSON("well?", 100))
	h.say(t, "s1", "hi")
	h.provider.push("hope they are fine")

	h.clock.Advance(35 * time.Second)
	h.checkWaits(t)

	h.provider.push(nothingJSON(0))
	h.clock.Advance(65 * time.Second)
	h.checkWaits(t)

	msgs := h.provider.lastCall()
	assert.Contains(t, msgs[len(msgs)-1].Content, "- hope they are fine")
	assert.Equal(t, StateStopped, h.session(t, "s1").Summary().State)
}

func TestContinuousThinkingDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.ContinuousThinking.Enabled = false })
	h.provider.push(replyJSON("well?", 100))
	h.say(t, "s1", "hi")

	for range 3 {
		h.clock.Advance(30 * time.Second)
		h.checkWaits(t)
	}
	assert.Equal(t, 1, h.provider.callCount())
	assert.Empty(t, fired(h.session(t, "s1")))
}
