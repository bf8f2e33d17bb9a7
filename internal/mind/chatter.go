package mind

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/internal/ai"
	"github.com/keshon/kokoroflow/internal/config"
	"github.com/keshon/kokoroflow/pkg/jobmgr"
	"github.com/keshon/kokoroflow/pkg/util"
)

// Executor delivers committed actions. It is called without any session lock held.
type Executor interface {
	Execute(ctx context.Context, sessionID string, a Action) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, sessionID string, a Action) error

func (f ExecutorFunc) Execute(ctx context.Context, sessionID string, a Action) error {
	return f(ctx, sessionID, a)
}

// Deps wires a Loop. Clock, Rand and Jobs default to the system clock,
// math/rand/v2 and a fresh job manager.
type Deps struct {
	Config   *config.Config
	Store    *Store
	Provider ai.Provider
	Executor Executor
	Logger   zerolog.Logger
	Clock    Clock
	Rand     func() float64
	Jobs     *jobmgr.Manager
}

// Loop is the per-trigger orchestrator: inbound messages, wait checks,
// timeouts and proactive scans all enter here.
type Loop struct {
	cfg      *config.Config
	store    *Store
	provider ai.Provider
	exec     Executor
	log      zerolog.Logger
	clock    Clock
	rand     func() float64
	jobs     *jobmgr.Manager
	format   Format
	quiet    util.Window
	inbox    chan NewMessage
}

func NewLoop(d Deps) (*Loop, error) {
	if d.Config == nil || d.Store == nil || d.Provider == nil || d.Executor == nil {
		return nil, errors.New("mind: config, store, provider and executor are required")
	}
	quiet, err := d.Config.Proactive.QuietHours()
	if err != nil {
		return nil, fmt.Errorf("mind: %w", err)
	}
	l := &Loop{
		cfg:      d.Config,
		store:    d.Store,
		provider: d.Provider,
		exec:     d.Executor,
		log:      d.Logger.With().Str("component", "mind").Logger(),
		clock:    d.Clock,
		rand:     d.Rand,
		jobs:     d.Jobs,
		format:   Format(d.Config.Prompt.LogFormat),
		quiet:    quiet,
		inbox:    make(chan NewMessage, 64),
	}
	if l.clock == nil {
		l.clock = systemClock{}
	}
	if l.rand == nil {
		l.rand = rand.Float64
	}
	if l.jobs == nil {
		l.jobs = jobmgr.NewManager(context.Background(), func(msg string) {
			l.log.Trace().Str("job", msg).Msg("job status")
		})
	}
	d.Store.clock = l.clock
	return l, nil
}

// Submit queues a message for asynchronous handling by Run.
func (l *Loop) Submit(ctx context.Context, m NewMessage) error {
	select {
	case l.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchMessage records m in arrival order on the caller's goroutine and
// leaves only the model call and its application to a job.
func (l *Loop) dispatchMessage(m NewMessage) {
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	tr, err := l.beginTurn(context.Background(), m)
	if err != nil || tr == nil {
		return
	}
	name := "message:" + m.SessionID + ":" + ulid.Make().String()
	err = l.jobs.StartAsync(name, func(ctx context.Context) error {
		return l.finishTurn(ctx, tr)
	})
	if err != nil {
		l.log.Warn().Err(err).Str("session", m.SessionID).Msg("message not dispatched")
	}
}

// turn is a recorded inbound message whose decision is still pending.
type turn struct {
	sess    *Session
	payload []ai.Message
	gen     uint64
}

// HandleMessage runs the per-message flow: record the trigger, ask the model
// outside the lock, then apply the decision if nothing changed meanwhile.
func (l *Loop) HandleMessage(ctx context.Context, m NewMessage) error {
	tr, err := l.beginTurn(ctx, m)
	if err != nil || tr == nil {
		return err
	}
	return l.finishTurn(ctx, tr)
}

// beginTurn appends m to the session log and persists it. A nil turn means
// the message was ignored.
func (l *Loop) beginTurn(ctx context.Context, m NewMessage) (*turn, error) {
	if !l.cfg.General.Enabled {
		l.log.Debug().Str("session", m.SessionID).Msg("disabled, message ignored")
		return nil, nil
	}
	if m.Sender == "" {
		m.Sender = SenderUser
	}
	sess, err := l.store.Session(ctx, m.SessionID)
	if err != nil {
		l.log.Error().Err(err).Str("session", m.SessionID).Msg("session unavailable")
		return nil, err
	}

	now := l.clock.Now()
	sess.mu.Lock()
	sess.recordInbound(m, now)
	tr := &turn{sess: sess, payload: l.turnPayloadLocked(sess, m, now), gen: sess.generation}
	err = l.store.saveLocked(ctx, sess)
	sess.mu.Unlock()
	if err != nil {
		l.log.Error().Err(err).Str("session", sess.id).Msg("turn aborted")
		return nil, err
	}
	return tr, nil
}

func (l *Loop) finishTurn(ctx context.Context, tr *turn) error {
	sess := tr.sess
	logModelCall(l.log, "turn", sess.id, tr.payload)
	d := Decide(ctx, l.provider, tr.payload, l.cfg.General.MaxCompatRetries)
	logDecision(l.log, "turn", sess.id, d)

	sess.mu.Lock()
	if sess.generation != tr.gen {
		sess.mu.Unlock()
		l.log.Debug().Str("session", sess.id).Uint64("captured", tr.gen).Msg("stale turn decision discarded")
		return nil
	}
	act := l.applyLocked(sess, d, false)
	err := l.store.saveLocked(ctx, sess)
	sess.mu.Unlock()
	if err != nil {
		l.log.Error().Err(err).Str("session", sess.id).Msg("decision not persisted, action skipped")
		return err
	}

	l.execute(ctx, sess.id, act)
	return nil
}

// applyLocked commits a validated decision and returns the action to emit.
//
//	reply / do-nothing with wait > 0  -> Waiting
//	stop requested                    -> Stopped
//	timeout + do-nothing without wait -> Stopped
//	timeout ceiling reached           -> Stopped, decision overridden
//	anything else                     -> Idle
//
// Malformed results never change the wait.
func (l *Loop) applyLocked(s *Session, d Decision, timeout bool) Action {
	now := l.clock.Now()

	forced := false
	if timeout {
		s.timeouts++
		forced = s.timeouts >= l.cfg.Wait.MaxConsecutiveTimeouts
	}

	var (
		act       Action
		wait      = d.waitFor()
		stop      bool
		malformed bool
		expected  string
	)
	switch r := d.Result.(type) {
	case Reply:
		act = Action{Kind: ActionReply, Content: r.Content, Thought: r.Thought, ExpectedReaction: r.ExpectedReaction}
		stop, expected = r.Stop, r.ExpectedReaction
	case DoNothing:
		act = Action{Kind: ActionDoNothing, Thought: r.Thought}
		stop, expected = r.Stop, r.ExpectedReaction
	default:
		act = Action{Kind: ActionDoNothing}
		malformed = true
	}

	if forced {
		act = Action{Kind: ActionDoNothing, Thought: act.Thought}
	}
	s.recordPlanLocked(d, act.Kind == ActionReply, now)

	switch {
	case forced:
		s.setStateLocked(StateStopped, "consecutive timeout limit reached", now)
		l.log.Info().Str("session", s.id).Int("timeouts", s.timeouts).Msg("forced stop")
	case stop:
		s.setStateLocked(StateStopped, "decided to stop", now)
	case wait > 0 && s.startWaitLocked(l.cfg.Wait, wait, expected, now):
	case s.state == StateStopped:
		// startWaitLocked hit the ceiling
	case timeout && !malformed && act.Kind == ActionDoNothing:
		s.setStateLocked(StateStopped, "gave up waiting", now)
	default:
		s.setStateLocked(StateIdle, "decision applied", now)
	}
	return act
}

func (d Decision) waitFor() time.Duration {
	switch r := d.Result.(type) {
	case Reply:
		return r.MaxWait
	case DoNothing:
		return r.MaxWait
	}
	return 0
}

func (l *Loop) execute(ctx context.Context, sessionID string, a Action) {
	if err := l.exec.Execute(ctx, sessionID, a); err != nil {
		l.log.Warn().Err(err).Str("session", sessionID).Str("kind", string(a.Kind)).Msg("action execution failed")
	}
}

// Wait blocks until every dispatched job has finished.
func (l *Loop) Wait() {
	l.jobs.Wait()
}

// Jobs exposes the job manager for status reporting.
func (l *Loop) Jobs() *jobmgr.Manager { return l.jobs }
