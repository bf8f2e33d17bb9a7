package mind

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keshon/kokoroflow/internal/config"
)

// Session is the mental state of one conversation. Fields are guarded by mu;
// helpers named with a Locked suffix or documented as such require it held.
// Every mutation bumps generation and republishes the lock-free Summary.
type Session struct {
	mu sync.Mutex

	id                string
	state             State
	createdAt         time.Time
	lastActivityAt    time.Time
	lastUserMessageAt time.Time
	lastProactiveAt   time.Time
	lastSender        Sender
	timeouts          int
	totalInteractions int
	userName          string
	wait              *WaitEpisode
	waitStartedAt     time.Time
	waitPlanned       time.Duration
	generation        uint64
	log               *MentalLog

	summary atomic.Pointer[Summary]
}

// Summary is an immutable snapshot used by cross-session scans.
type Summary struct {
	ID                  string
	State               State
	LastActivityAt      time.Time
	LastSender          Sender
	LastProactiveAt     time.Time
	Deadline            time.Time
	ConsecutiveTimeouts int
	Generation          uint64
}

func newSession(id string, logCap int, now time.Time) *Session {
	s := &Session{
		id:         id,
		state:      StateIdle,
		createdAt:  now,
		lastSender: SenderSystem,
		log:        NewMentalLog(logCap),
	}
	s.publish()
	return s
}

func (s *Session) ID() string { return s.id }

// Summary returns the last published snapshot without locking.
func (s *Session) Summary() Summary { return *s.summary.Load() }

// Snapshot returns the persistable record under the session lock.
func (s *Session) Snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked()
}

// Render returns the MentalLog projection under the session lock.
func (s *Session) Render(f Format) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Render(f)
}

func (s *Session) publish() {
	sum := &Summary{
		ID:                  s.id,
		State:               s.state,
		LastActivityAt:      s.lastActivityAt,
		LastSender:          s.lastSender,
		LastProactiveAt:     s.lastProactiveAt,
		ConsecutiveTimeouts: s.timeouts,
		Generation:          s.generation,
	}
	if s.wait != nil {
		sum.Deadline = s.wait.Deadline
	}
	s.summary.Store(sum)
}

func (s *Session) touch() {
	s.generation++
	s.publish()
}

func (s *Session) appendEvent(e Event) {
	s.log.Append(e)
}

// recordInbound applies a new message. Genuine user messages end any wait,
// reset the timeout counter and revive a stopped session; synthetic proactive
// triggers only leave a note in the log. Caller holds mu.
func (s *Session) recordInbound(m NewMessage, now time.Time) {
	if m.Sender == SenderSystem {
		e := newEvent(EventProactiveTrigger, now)
		e.Sender = SenderSystem
		e.Text = m.Content
		if !s.lastActivityAt.IsZero() {
			e.Elapsed = now.Sub(s.lastActivityAt)
		}
		s.appendEvent(e)
		s.touch()
		return
	}

	switch s.state {
	case StateWaiting, StateTimedOut:
		elapsed := now.Sub(s.waitStartedAt)
		inTime := s.state == StateWaiting && elapsed <= s.waitPlanned
		s.transitionLocked(StateIdle, "user replied", now)

		lat := newEvent(EventReplyLatency, now)
		lat.Elapsed = elapsed
		lat.MaxWait = s.waitPlanned
		lat.Late = !inTime
		s.appendEvent(lat)
	case StateStopped:
		s.transitionLocked(StateIdle, "new message", now)
	}

	s.timeouts = 0
	s.lastSender = SenderUser
	s.lastActivityAt = now
	s.lastUserMessageAt = now
	s.totalInteractions++
	if m.UserName != "" {
		s.userName = m.UserName
	}

	e := newEvent(EventUserMessage, now)
	e.Visible = true
	e.Sender = SenderUser
	e.UserName = m.UserName
	e.Text = m.Content
	e.Images = slices.Clone(m.Images)
	s.appendEvent(e)
	s.touch()
}

// transitionLocked moves to a non-waiting state, clearing any episode and
// recording the change. It does not bump generation on its own.
func (s *Session) transitionLocked(to State, reason string, now time.Time) {
	if s.state == to {
		return
	}
	e := newEvent(EventWaitStateChange, now)
	e.From = s.state
	e.To = to
	e.Text = reason
	s.appendEvent(e)
	s.state = to
	s.wait = nil
}

// setStateLocked is transitionLocked plus a generation bump.
func (s *Session) setStateLocked(to State, reason string, now time.Time) {
	if s.state == to {
		return
	}
	s.transitionLocked(to, reason, now)
	s.touch()
}

// startWaitLocked begins a wait episode for the proposed duration. It reports
// false when no wait was started: the proposal clamps to zero, or the timeout
// ceiling has been reached (the session is then forced to Stopped).
func (s *Session) startWaitLocked(cfg config.Wait, proposed time.Duration, expected string, now time.Time) bool {
	d := ClampWait(cfg, proposed)
	if d <= 0 {
		return false
	}
	if s.timeouts >= cfg.MaxConsecutiveTimeouts {
		s.setStateLocked(StateStopped, "consecutive timeout limit reached", now)
		return false
	}

	s.wait = &WaitEpisode{
		StartedAt:        now,
		Deadline:         now.Add(d),
		Planned:          d,
		ExpectedReaction: expected,
	}
	s.waitStartedAt = now
	s.waitPlanned = d
	s.state = StateWaiting

	e := newEvent(EventWaitStart, now)
	e.MaxWait = d
	e.ExpectedReaction = expected
	s.appendEvent(e)
	s.touch()
	return true
}

// enterTimedOutLocked ends an expired episode and returns a copy of it.
func (s *Session) enterTimedOutLocked(now time.Time) *WaitEpisode {
	ep := s.wait.clone()
	s.wait = nil
	s.state = StateTimedOut

	e := newEvent(EventTimeout, now)
	e.Elapsed = ep.Elapsed(now)
	e.MaxWait = ep.Planned
	e.ExpectedReaction = ep.ExpectedReaction
	e.Count = s.timeouts + 1
	s.appendEvent(e)
	s.touch()
	return ep
}

// recordThoughtLocked stores a continuous thought for threshold idx.
func (s *Session) recordThoughtLocked(idx int, text string, progress float64, now time.Time) {
	s.wait.Fired = append(s.wait.Fired, idx)
	s.wait.LastThoughtAt = now
	s.wait.Thoughts = append(s.wait.Thoughts, text)

	e := newEvent(EventContinuousThought, now)
	e.Text = text
	e.Progress = progress
	s.appendEvent(e)
	s.touch()
}

// recordPlanLocked appends the BotPlan for a committed decision. A delivered
// reply makes the bot the last sender.
func (s *Session) recordPlanLocked(d Decision, delivered bool, now time.Time) {
	e := newEvent(EventBotPlan, now)
	e.Perceptions = slices.Clone(d.Perceptions)
	switch r := d.Result.(type) {
	case Reply:
		e.Text = r.Content
		e.Thought = r.Thought
		e.ExpectedReaction = r.ExpectedReaction
		e.Mood = r.Mood
		e.MaxWait = r.MaxWait
		e.Actions = r.Actions
		e.Visible = delivered
	case DoNothing:
		e.Thought = r.Thought
		e.ExpectedReaction = r.ExpectedReaction
		e.Mood = r.Mood
		e.MaxWait = r.MaxWait
		e.Actions = r.Actions
	case Malformed:
		e.Thought = "(no usable decision)"
	}
	s.appendEvent(e)
	if delivered {
		s.lastSender = SenderBot
		s.lastActivityAt = now
		s.totalInteractions++
	}
	s.touch()
}

func (s *Session) stampProactiveLocked(now time.Time) {
	s.lastProactiveAt = now
	s.touch()
}

// Record is the persisted form of a Session.
type Record struct {
	ID                  string        `json:"id"`
	State               State         `json:"state"`
	CreatedAt           time.Time     `json:"created_at"`
	LastActivityAt      time.Time     `json:"last_activity_at"`
	LastUserMessageAt   time.Time     `json:"last_user_message_at"`
	LastProactiveAt     time.Time     `json:"last_proactive_at"`
	LastSender          Sender        `json:"last_sender"`
	ConsecutiveTimeouts int           `json:"consecutive_timeouts"`
	TotalInteractions   int           `json:"total_interactions"`
	UserName            string        `json:"user_name,omitempty"`
	Wait                *WaitEpisode  `json:"wait,omitempty"`
	WaitStartedAt       time.Time     `json:"wait_started_at"`
	WaitPlanned         time.Duration `json:"wait_planned"`
	Generation          uint64        `json:"generation"`
	Events              []Event       `json:"events"`
}

func (s *Session) recordLocked() Record {
	return Record{
		ID:                  s.id,
		State:               s.state,
		CreatedAt:           s.createdAt,
		LastActivityAt:      s.lastActivityAt,
		LastUserMessageAt:   s.lastUserMessageAt,
		LastProactiveAt:     s.lastProactiveAt,
		LastSender:          s.lastSender,
		ConsecutiveTimeouts: s.timeouts,
		TotalInteractions:   s.totalInteractions,
		UserName:            s.userName,
		Wait:                s.wait.clone(),
		WaitStartedAt:       s.waitStartedAt,
		WaitPlanned:         s.waitPlanned,
		Generation:          s.generation,
		Events:              s.log.Events(),
	}
}

// sessionFromRecord restores a session. A record claiming Waiting without an
// episode (or the reverse) is normalised so the invariant holds.
func sessionFromRecord(r Record, logCap int) (*Session, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("record has no id")
	}
	s := &Session{
		id:                r.ID,
		state:             r.State,
		createdAt:         r.CreatedAt,
		lastActivityAt:    r.LastActivityAt,
		lastUserMessageAt: r.LastUserMessageAt,
		lastProactiveAt:   r.LastProactiveAt,
		lastSender:        r.LastSender,
		timeouts:          r.ConsecutiveTimeouts,
		totalInteractions: r.TotalInteractions,
		userName:          r.UserName,
		wait:              r.Wait.clone(),
		waitStartedAt:     r.WaitStartedAt,
		waitPlanned:       r.WaitPlanned,
		generation:        r.Generation,
		log:               fromEvents(logCap, r.Events),
	}
	switch s.state {
	case StateIdle, StateTimedOut, StateStopped:
		s.wait = nil
	case StateWaiting:
		if s.wait == nil {
			s.state = StateIdle
		}
	default:
		return nil, fmt.Errorf("record %s: unknown state %q", r.ID, r.State)
	}
	if s.lastSender == "" {
		s.lastSender = SenderSystem
	}
	s.publish()
	return s, nil
}
