package mind

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/keshon/kokoroflow/internal/ai"
	"github.com/keshon/kokoroflow/internal/config"
)

// base is a Saturday noon, well outside the default quiet hours.
var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: base} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scripted answers each Generate call with the next queued reply; once
// the queue is empty it repeats the last entry.
type scripted struct {
	mu      sync.Mutex
	replies []scriptedReply
	last    *scriptedReply
	calls   [][]ai.Message
	hook    func() // runs once, after the reply is chosen, outside mu
}

type scriptedReply struct {
	text string
	err  error
}

func (s *scripted) push(text string) {
	s.mu.Lock()
	s.replies = append(s.replies, scriptedReply{text: text})
	s.mu.Unlock()
}

func (s *scripted) pushErr(err error) {
	s.mu.Lock()
	s.replies = append(s.replies, scriptedReply{err: err})
	s.mu.Unlock()
}

func (s *scripted) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scripted) lastCall() []ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func (s *scripted) Generate(_ context.Context, msgs []ai.Message) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]ai.Message(nil), msgs...))
	var r scriptedReply
	switch {
	case len(s.replies) > 0:
		r = s.replies[0]
		s.replies = s.replies[1:]
		s.last = &r
	case s.last != nil:
		r = *s.last
	default:
		s.mu.Unlock()
		return "", errors.New("no scripted reply")
	}
	hook := s.hook
	s.hook = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return r.text, r.err
}

func (s *scripted) setHook(f func()) {
	s.mu.Lock()
	s.hook = f
	s.mu.Unlock()
}

type recorder struct {
	mu      sync.Mutex
	actions []Action
}

func (r *recorder) Execute(_ context.Context, _ string, a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return nil
}

func (r *recorder) all() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Action(nil), r.actions...)
}

type memPersister struct {
	mu      sync.Mutex
	records map[string]Record
	fail    error
	saves   int
}

func newMemPersister() *memPersister { return &memPersister{records: map[string]Record{}} }

func (m *memPersister) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.records[rec.ID] = rec
	return nil
}

func (m *memPersister) Load(_ context.Context, id string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok, nil
}

func (m *memPersister) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memPersister) setFail(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

type harness struct {
	cfg      *config.Config
	clock    *fakeClock
	provider *scripted
	exec     *recorder
	persist  *memPersister
	store    *Store
	loop     *Loop
	draw     float64
}

func newHarness(t *testing.T, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	h := &harness{
		cfg:      cfg,
		clock:    newFakeClock(),
		provider: &scripted{},
		exec:     &recorder{},
		persist:  newMemPersister(),
	}
	h.store = NewStore(h.persist, cfg.Prompt.MaxLogEntries, zerolog.Nop())
	loop, err := NewLoop(Deps{
		Config:   cfg,
		Store:    h.store,
		Provider: h.provider,
		Executor: h.exec,
		Logger:   zerolog.Nop(),
		Clock:    h.clock,
		Rand:     func() float64 { return h.draw },
	})
	require.NoError(t, err)
	h.loop = loop
	return h
}

func (h *harness) session(t *testing.T, id string) *Session {
	t.Helper()
	s, err := h.store.Session(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (h *harness) say(t *testing.T, id, text string) {
	t.Helper()
	require.NoError(t, h.loop.HandleMessage(context.Background(), NewMessage{
		SessionID: id,
		ID:        "m-" + text,
		Sender:    SenderUser,
		UserName:  "alice",
		Content:   text,
	}))
}

func replyJSON(content string, wait int) string {
	return `{"thought":"t","actions":[{"type":"kfc_reply","content":"` + content + `"}],"expected_user_reaction":"answer","max_wait_seconds":` + strconv.Itoa(wait) + `}`
}

func nothingJSON(wait int) string {
	return `{"thought":"quiet","actions":[{"type":"do_nothing"}],"max_wait_seconds":` + strconv.Itoa(wait) + `}`
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}
