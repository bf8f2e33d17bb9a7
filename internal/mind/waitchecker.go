package mind

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/kokoroflow/pkg/jobmgr"
)

// checkWaits is one WaitChecker tick: expired episodes (and timeouts left
// unresolved, e.g. by a restart) get a timeout job, the rest a thought job.
func (l *Loop) checkWaits(now time.Time) {
	for _, sum := range l.store.Summaries() {
		switch {
		case sum.State == StateTimedOut:
			l.dispatch("timeout:"+sum.ID, sum.ID, l.handleTimeout)
		case sum.State != StateWaiting:
		case !now.Before(sum.Deadline):
			l.dispatch("timeout:"+sum.ID, sum.ID, l.handleTimeout)
		case l.cfg.ContinuousThinking.Enabled:
			l.dispatch("thought:"+sum.ID, sum.ID, l.continuousThought)
		}
	}
}

func (l *Loop) dispatch(name, sessionID string, fn func(context.Context, *Session) error) {
	sess, ok := l.store.Lookup(sessionID)
	if !ok {
		return
	}
	err := l.jobs.StartAsync(name, func(ctx context.Context) error {
		return fn(ctx, sess)
	})
	if err != nil && !errors.Is(err, jobmgr.ErrRunning) {
		l.log.Warn().Err(err).Str("job", name).Msg("dispatch failed")
	}
}

// continuousThought fires the next progress threshold of a wait episode.
// The thought is never delivered; it only enters the MentalLog.
func (l *Loop) continuousThought(ctx context.Context, sess *Session) error {
	ct := l.cfg.ContinuousThinking
	if !ct.Enabled {
		return nil
	}

	now := l.clock.Now()
	sess.mu.Lock()
	if sess.state != StateWaiting || sess.wait.Expired(now) {
		sess.mu.Unlock()
		return nil
	}
	idx, due := sess.wait.ThoughtDue(ct.ProgressThresholds, ct.MinInterval, now)
	if !due {
		sess.mu.Unlock()
		return nil
	}
	progress := sess.wait.Progress(now)
	payload := thoughtPayload(sess.wait, sess.log.LastReply(), now)
	gen := sess.generation
	sess.mu.Unlock()

	logModelCall(l.log, "thought", sess.id, payload)
	text, err := l.provider.Generate(ctx, payload)
	text = clip(text, maxThoughtLen)
	if err != nil || text == "" {
		if err != nil {
			l.log.Warn().Err(err).Str("session", sess.id).Msg("continuous thought failed, using fallback")
		}
		text = fallbackThought(progress)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.generation != gen {
		l.log.Debug().Str("session", sess.id).Msg("stale thought discarded")
		return nil
	}
	sess.recordThoughtLocked(idx, text, progress, l.clock.Now())
	l.log.Debug().Str("session", sess.id).Int("threshold", idx).Float64("progress", progress).Msg("continuous thought")
	return l.store.saveLocked(ctx, sess)
}
