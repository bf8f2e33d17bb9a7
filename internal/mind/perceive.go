package mind

import (
	"context"

	"github.com/keshon/kokoroflow/internal/ai"
)

// Phase is the outcome of one model round in the perceive->decide loop.
type Phase string

const (
	PhaseDecided   Phase = "decided"   // structured decision parsed
	PhasePerceived Phase = "perceived" // free text, kept and nudged
	PhaseFailed    Phase = "failed"    // model error
)

type Attempt struct {
	Phase Phase
	Raw   string
	Err   error
}

// Decision is the result of Decide. Perceptions hold free-text rounds so they
// can be recorded even when a later round produced the decision.
type Decision struct {
	Result      StrategyResult
	Attempts    []Attempt
	Perceptions []string
}

// Decide asks the model for a structured decision, allowing up to retries
// extra rounds. A free-text answer is appended to the conversation together
// with a corrective nudge; a model error consumes a round unchanged. When the
// rounds run out the result is Malformed.
func Decide(ctx context.Context, p ai.Provider, messages []ai.Message, retries int) Decision {
	var d Decision
	msgs := append([]ai.Message(nil), messages...)
	last := ""

	for round := 0; round <= max(0, retries); round++ {
		raw, err := p.Generate(ctx, msgs)
		if err != nil {
			d.Attempts = append(d.Attempts, Attempt{Phase: PhaseFailed, Err: err})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if res, ok := ParseStrategy(raw); ok {
			d.Attempts = append(d.Attempts, Attempt{Phase: PhaseDecided, Raw: raw})
			d.Result = res
			return d
		}

		d.Attempts = append(d.Attempts, Attempt{Phase: PhasePerceived, Raw: raw})
		d.Perceptions = append(d.Perceptions, raw)
		last = raw
		msgs = append(msgs,
			ai.Message{Role: ai.RoleAssistant, Content: raw},
			ai.Message{Role: ai.RoleUser, Content: nudgePrompt},
		)
	}

	d.Result = Malformed{Raw: last}
	return d
}
