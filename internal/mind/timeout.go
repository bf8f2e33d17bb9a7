package mind

import (
	"context"
)

// handleTimeout resolves an expired wait. The Waiting->TimedOut transition
// and the generation capture happen under one lock hold, so exactly one
// handler owns each detection; a session found already TimedOut (restart,
// earlier save failure) is resumed without a second Timeout event.
func (l *Loop) handleTimeout(ctx context.Context, sess *Session) error {
	now := l.clock.Now()

	sess.mu.Lock()
	var ep *WaitEpisode
	switch {
	case sess.state == StateWaiting && sess.wait.Expired(now):
		ep = sess.enterTimedOutLocked(now)
	case sess.state == StateTimedOut:
		ep = &WaitEpisode{StartedAt: sess.waitStartedAt, Planned: sess.waitPlanned}
		if e, ok := sess.log.LastOf(EventTimeout); ok {
			ep.ExpectedReaction = e.ExpectedReaction
		}
	default:
		sess.mu.Unlock()
		return nil
	}
	payload := l.timeoutPayloadLocked(sess, ep, now)
	gen := sess.generation
	err := l.store.saveLocked(ctx, sess)
	sess.mu.Unlock()
	if err != nil {
		l.log.Error().Err(err).Str("session", sess.id).Msg("timeout aborted")
		return err
	}
	l.log.Info().Str("session", sess.id).Dur("waited", ep.Elapsed(now)).Msg("wait timed out")

	logModelCall(l.log, "timeout", sess.id, payload)
	d := Decide(ctx, l.provider, payload, l.cfg.General.MaxCompatRetries)
	logDecision(l.log, "timeout", sess.id, d)

	sess.mu.Lock()
	if sess.generation != gen {
		sess.mu.Unlock()
		l.log.Debug().Str("session", sess.id).Uint64("captured", gen).Msg("stale timeout decision discarded")
		return nil
	}
	act := l.applyLocked(sess, d, true)
	err = l.store.saveLocked(ctx, sess)
	sess.mu.Unlock()
	if err != nil {
		l.log.Error().Err(err).Str("session", sess.id).Msg("timeout decision not persisted, action skipped")
		return err
	}

	l.execute(ctx, sess.id, act)
	return nil
}
