package mind

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keshon/kokoroflow/internal/ai"
)

// State is the wait state of a session.
type State string

const (
	StateIdle     State = "idle"
	StateWaiting  State = "waiting"
	StateTimedOut State = "timed_out"
	StateStopped  State = "stopped"
)

// Sender identifies who produced the last message in a conversation.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// EventKind tags a MentalLog entry.
type EventKind string

const (
	EventUserMessage       EventKind = "user_message"
	EventBotPlan           EventKind = "bot_plan"
	EventWaitStart         EventKind = "wait_start"
	EventWaitStateChange   EventKind = "wait_state_change"
	EventTimeout           EventKind = "timeout"
	EventReplyLatency      EventKind = "reply_latency"
	EventProactiveTrigger  EventKind = "proactive_trigger"
	EventContinuousThought EventKind = "continuous_thought"
)

// Event is one immutable MentalLog entry. Only the fields relevant to Kind are set.
type Event struct {
	ID      string    `json:"id"`
	At      time.Time `json:"at"`
	Kind    EventKind `json:"kind"`
	Visible bool      `json:"visible"` // seen by the user

	Sender   Sender     `json:"sender,omitempty"`
	UserName string     `json:"user_name,omitempty"`
	Text     string     `json:"text,omitempty"`
	Images   []ai.Image `json:"images,omitempty"`

	Thought          string        `json:"thought,omitempty"`
	ExpectedReaction string        `json:"expected_reaction,omitempty"`
	Mood             string        `json:"mood,omitempty"`
	Actions          []string      `json:"actions,omitempty"`
	Perceptions      []string      `json:"perceptions,omitempty"`
	MaxWait          time.Duration `json:"max_wait,omitempty"`

	From     State         `json:"from,omitempty"`
	To       State         `json:"to,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	Late     bool          `json:"late,omitempty"`
	Progress float64       `json:"progress,omitempty"` // 0..1
	Count    int           `json:"count,omitempty"`    // timeout ordinal
}

func newEvent(kind EventKind, at time.Time) Event {
	return Event{ID: ulid.Make().String(), At: at, Kind: kind}
}

// NewMessage is an inbound trigger. Sender is SenderUser for genuine
// messages and SenderSystem for synthetic proactive wake-ups.
type NewMessage struct {
	SessionID string
	ID        string
	Sender    Sender
	UserID    string
	UserName  string
	Content   string
	Images    []ai.Image
}

// ActionKind is what the executor is asked to do.
type ActionKind string

const (
	ActionReply     ActionKind = "reply"
	ActionDoNothing ActionKind = "do_nothing"
)

// Action is emitted to the Executor after a decision is committed.
type Action struct {
	Kind             ActionKind
	Content          string
	Thought          string
	ExpectedReaction string
}

// Clock is the time source. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
