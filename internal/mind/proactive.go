package mind

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// eligibleSummary is the lock-free pre-filter of the proactive scan.
func (l *Loop) eligibleSummary(sum Summary, now time.Time) bool {
	p := l.cfg.Proactive
	return sum.State == StateIdle &&
		sum.LastSender == SenderUser &&
		now.Sub(sum.LastActivityAt) >= p.SilenceThreshold &&
		now.Sub(sum.LastProactiveAt) >= p.MinInterval
}

// scanProactive is one ProactiveThinker tick.
func (l *Loop) scanProactive(now time.Time) {
	if !l.cfg.Proactive.Enabled || !l.cfg.General.Enabled {
		return
	}
	if l.quiet.Contains(now) {
		return
	}
	for _, sum := range l.store.Summaries() {
		if !l.eligibleSummary(sum, now) {
			continue
		}
		l.dispatch("proactive:"+sum.ID, sum.ID, func(ctx context.Context, sess *Session) error {
			return l.proactiveTurn(ctx, sess, now)
		})
	}
}

// proactiveTurn stamps and runs one proactive trigger for sess.
func (l *Loop) proactiveTurn(ctx context.Context, sess *Session, now time.Time) error {
	triggered, err := l.tryProactive(ctx, sess, now)
	if err != nil {
		l.log.Error().Err(err).Str("session", sess.id).Msg("proactive stamp not persisted")
		return err
	}
	if !triggered {
		return nil
	}
	return l.HandleMessage(ctx, NewMessage{
		SessionID: sess.id,
		ID:        proactiveID(),
		Sender:    SenderSystem,
	})
}

// tryProactive re-checks eligibility under the session lock, draws against
// trigger_probability and stamps the trigger time on success.
func (l *Loop) tryProactive(ctx context.Context, sess *Session, now time.Time) (bool, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	live := Summary{
		State:           sess.state,
		LastSender:      sess.lastSender,
		LastActivityAt:  sess.lastActivityAt,
		LastProactiveAt: sess.lastProactiveAt,
	}
	if !l.eligibleSummary(live, now) {
		return false, nil
	}
	if l.rand() >= l.cfg.Proactive.TriggerProbability {
		return false, nil
	}
	sess.stampProactiveLocked(now)
	l.log.Info().Str("session", sess.id).Dur("silence", now.Sub(sess.lastActivityAt)).Msg("proactive trigger")
	return true, l.store.saveLocked(ctx, sess)
}

func proactiveID() string {
	return "proactive_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
