package mind

import (
	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/internal/ai"
)

// logModelCall logs the payload about to be sent, truncated for readability.
func logModelCall(log zerolog.Logger, action, sessionID string, messages []ai.Message) {
	if log.GetLevel() > zerolog.DebugLevel {
		return
	}
	log.Debug().Str("action", action).Str("session", sessionID).Int("messages", len(messages)).Msg("model call")
	for i, m := range messages {
		log.Trace().
			Int("idx", i).
			Str("role", m.Role).
			Int("len", len(m.Content)).
			Int("images", len(m.Images)).
			Str("preview", clip(m.Content, 200)).
			Msg("model message")
	}
}

func logDecision(log zerolog.Logger, action, sessionID string, d Decision) {
	ev := log.Debug().Str("action", action).Str("session", sessionID).Int("rounds", len(d.Attempts))
	switch r := d.Result.(type) {
	case Reply:
		ev = ev.Str("result", "reply").Dur("max_wait", r.MaxWait).Bool("stop", r.Stop)
	case DoNothing:
		ev = ev.Str("result", "do_nothing").Dur("max_wait", r.MaxWait).Bool("stop", r.Stop)
	case Malformed:
		ev = ev.Str("result", "malformed")
	}
	for _, a := range d.Attempts {
		if a.Err != nil {
			log.Warn().Err(a.Err).Str("action", action).Str("session", sessionID).Msg("model round failed")
		}
	}
	ev.Msg("decision")
}
