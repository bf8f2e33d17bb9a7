package mind

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// TickKind selects which periodic check a Tick runs.
type TickKind int

const (
	TickWaitCheck TickKind = iota
	TickProactiveScan
)

func (k TickKind) String() string {
	switch k {
	case TickWaitCheck:
		return "wait_check"
	case TickProactiveScan:
		return "proactive_scan"
	}
	return "unknown"
}

// Tick is a scheduled trigger. A zero Now means the loop clock.
type Tick struct {
	Kind TickKind
	Now  time.Time
}

// Tick runs one scheduled check. Per-session work is dispatched as
// independent jobs, so Tick never waits on a model call.
func (l *Loop) Tick(ctx context.Context, t Tick) {
	now := t.Now
	if now.IsZero() {
		now = l.clock.Now()
	}
	switch t.Kind {
	case TickWaitCheck:
		l.checkWaits(now)
	case TickProactiveScan:
		l.scanProactive(now)
	}
}

// Resume dispatches timeouts left unresolved by a previous run.
func (l *Loop) Resume() {
	for _, sum := range l.store.Summaries() {
		if sum.State == StateTimedOut {
			l.dispatch("timeout:"+sum.ID, sum.ID, l.handleTimeout)
		}
	}
}

// Run drives the wait-check and proactive timers and drains the Submit
// inbox until ctx is cancelled, then waits for in-flight jobs.
func (l *Loop) Run(ctx context.Context) error {
	l.Resume()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.every(ctx, l.cfg.ContinuousThinking.CheckInterval, TickWaitCheck)
		return nil
	})
	g.Go(func() error {
		l.every(ctx, l.cfg.Proactive.CheckInterval, TickProactiveScan)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				l.drainInbox()
				return nil
			case m := <-l.inbox:
				l.dispatchMessage(m)
			}
		}
	})

	l.log.Info().
		Dur("wait_check", l.cfg.ContinuousThinking.CheckInterval).
		Dur("proactive_scan", l.cfg.Proactive.CheckInterval).
		Msg("loop started")
	err := g.Wait()
	l.jobs.Wait()
	l.log.Info().Msg("loop stopped")
	return err
}

// drainInbox dispatches messages accepted before shutdown.
func (l *Loop) drainInbox() {
	for {
		select {
		case m := <-l.inbox:
			l.dispatchMessage(m)
		default:
			return
		}
	}
}

func (l *Loop) every(ctx context.Context, interval time.Duration, kind TickKind) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx, Tick{Kind: kind})
		}
	}
}
