package mind

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textEvent(i int) Event {
	e := newEvent(EventUserMessage, base.Add(time.Duration(i)*time.Second))
	e.Text = "msg " + strconv.Itoa(i)
	return e
}

func TestMentalLogEvictsOldestFirst(t *testing.T) {
	l := NewMentalLog(5)
	for i := 0; i < 12; i++ {
		l.Append(textEvent(i))
		assert.LessOrEqual(t, l.Len(), 5)
	}

	require.Equal(t, 5, l.Len())
	events := l.Events()
	for i, e := range events {
		assert.Equal(t, "msg "+strconv.Itoa(7+i), e.Text)
	}
	assert.Equal(t, []Event{events[3], events[4]}, l.Recent(2))
	assert.Len(t, l.Recent(100), 5)
	assert.Nil(t, l.Recent(0))
}

func TestMentalLogLookups(t *testing.T) {
	l := NewMentalLog(10)
	l.Append(textEvent(0))

	plan := newEvent(EventBotPlan, base.Add(time.Second))
	plan.Text = "hello there"
	plan.Visible = true
	l.Append(plan)

	silent := newEvent(EventBotPlan, base.Add(2*time.Second))
	silent.Thought = "not now"
	l.Append(silent)

	assert.Equal(t, "hello there", l.LastReply())
	got, ok := l.LastOf(EventBotPlan)
	require.True(t, ok)
	assert.Equal(t, "not now", got.Thought)
	_, ok = l.LastOf(EventTimeout)
	assert.False(t, ok)
}

func TestFromEventsKeepsNewest(t *testing.T) {
	var events []Event
	for i := 0; i < 6; i++ {
		events = append(events, textEvent(i))
	}
	l := fromEvents(3, events)
	assert.Equal(t, events[3:], l.Events())
}

func TestRenderNarrativeOneLinePerEvent(t *testing.T) {
	l := NewMentalLog(10)

	msg := newEvent(EventUserMessage, base)
	msg.UserName = "alice"
	msg.Text = "are you\nthere?"
	l.Append(msg)

	plan := newEvent(EventBotPlan, base.Add(time.Second))
	plan.Thought = "she is back"
	plan.Text = "yes!"
	plan.Visible = true
	l.Append(plan)

	ws := newEvent(EventWaitStart, base.Add(time.Second))
	ws.MaxWait = 2 * time.Minute
	l.Append(ws)

	// an out-of-order thought is merged by timestamp
	th := newEvent(EventContinuousThought, base.Add(500*time.Millisecond))
	th.Text = "waiting"
	th.Progress = 0.3
	l.Append(th)

	out := l.Render(FormatNarrative)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "[12:00:00] alice said: are you there?", lines[0])
	assert.Contains(t, lines[1], "While waiting (30%) I thought: waiting")
	assert.Contains(t, lines[2], "I replied: yes!")
	assert.Contains(t, lines[3], "I started waiting up to 2m0s")

	assert.Equal(t, out, l.Render(FormatNarrative), "render is deterministic")
	assert.Equal(t, EventContinuousThought, l.Events()[3].Kind, "render does not reorder storage")
}

func TestRenderTable(t *testing.T) {
	l := NewMentalLog(10)
	for i := 0; i < 3; i++ {
		l.Append(textEvent(i))
	}
	to := newEvent(EventTimeout, base.Add(time.Minute))
	to.Elapsed = time.Minute
	to.Count = 2
	l.Append(to)

	out := l.Render(FormatTable)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "| time | kind |"))
	assert.Contains(t, lines[4], "| timeout |")
	assert.Contains(t, lines[4], "count=2")
}
