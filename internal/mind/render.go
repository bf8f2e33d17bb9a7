package mind

import (
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/kokoroflow/pkg/util"
)

// Format selects a MentalLog rendering layout.
type Format string

const (
	FormatNarrative Format = "narrative"
	FormatTable     Format = "table"
)

const timeTpl = "hh:mm:ss"

// Render projects the log into prompt text. Output is a pure function of
// the contents: one line per event, none skipped or repeated.
func (l *MentalLog) Render(f Format) string {
	events := l.Events()
	if f == FormatTable {
		return renderTable(events)
	}
	return renderNarrative(events)
}

func renderNarrative(events []Event) string {
	// merge by timestamp; ties keep insertion order
	slices.SortStableFunc(events, func(a, b Event) int { return a.At.Compare(b.At) })

	var b strings.Builder
	for _, e := range events {
		b.WriteString("[")
		b.WriteString(util.FormatTpl(e.At, timeTpl))
		b.WriteString("] ")
		b.WriteString(narrate(e))
		b.WriteByte('\n')
	}
	return b.String()
}

func narrate(e Event) string {
	switch e.Kind {
	case EventUserMessage:
		who := "User"
		if e.UserName != "" {
			who = e.UserName
		}
		s := fmt.Sprintf("%s said: %s", who, oneLine(e.Text))
		if len(e.Images) > 0 {
			s += fmt.Sprintf(" [%d image(s)]", len(e.Images))
		}
		return s
	case EventBotPlan:
		var parts []string
		if e.Thought != "" {
			parts = append(parts, "I thought: "+oneLine(e.Thought))
		}
		for _, p := range e.Perceptions {
			parts = append(parts, "I noticed: "+oneLine(p))
		}
		if e.Visible && e.Text != "" {
			parts = append(parts, "I replied: "+oneLine(e.Text))
		} else {
			parts = append(parts, "I chose not to reply")
		}
		if e.ExpectedReaction != "" {
			parts = append(parts, "expecting: "+oneLine(e.ExpectedReaction))
		}
		if e.Mood != "" {
			parts = append(parts, "mood: "+e.Mood)
		}
		return strings.Join(parts, "; ")
	case EventWaitStart:
		s := "I started waiting up to " + util.HumanDuration(e.MaxWait)
		if e.ExpectedReaction != "" {
			s += " for: " + oneLine(e.ExpectedReaction)
		}
		return s
	case EventWaitStateChange:
		s := fmt.Sprintf("State changed %s -> %s", e.From, e.To)
		if e.Text != "" {
			s += " (" + e.Text + ")"
		}
		return s
	case EventTimeout:
		return fmt.Sprintf("The wait deadline passed after %s with no reply (timeout #%d)", util.HumanDuration(e.Elapsed), e.Count)
	case EventReplyLatency:
		verdict := "in time"
		if e.Late {
			verdict = "late"
		}
		return fmt.Sprintf("They answered after %s (%s)", util.HumanDuration(e.Elapsed), verdict)
	case EventProactiveTrigger:
		return fmt.Sprintf("It has been quiet for %s; I considered reaching out", util.HumanDuration(e.Elapsed))
	case EventContinuousThought:
		return fmt.Sprintf("While waiting (%.0f%%) I thought: %s", e.Progress*100, oneLine(e.Text))
	default:
		return string(e.Kind) + ": " + oneLine(e.Text)
	}
}

var tableHeader = []string{"time", "kind", "sender", "text", "thought", "expected", "wait", "detail"}

func renderTable(events []Event) string {
	var b strings.Builder
	writeRow(&b, tableHeader)
	for _, e := range events {
		wait := ""
		if e.MaxWait > 0 {
			wait = util.HumanDuration(e.MaxWait)
		}
		writeRow(&b, []string{
			util.FormatTpl(e.At, timeTpl),
			string(e.Kind),
			string(e.Sender),
			cell(e.Text),
			cell(e.Thought),
			cell(e.ExpectedReaction),
			wait,
			detail(e),
		})
	}
	return b.String()
}

func detail(e Event) string {
	var d []string
	switch e.Kind {
	case EventWaitStateChange:
		d = append(d, fmt.Sprintf("%s->%s", e.From, e.To))
	case EventReplyLatency:
		d = append(d, "elapsed="+util.HumanDuration(e.Elapsed), fmt.Sprintf("late=%t", e.Late))
	case EventTimeout:
		d = append(d, "elapsed="+util.HumanDuration(e.Elapsed), fmt.Sprintf("count=%d", e.Count))
	case EventProactiveTrigger:
		d = append(d, "silence="+util.HumanDuration(e.Elapsed))
	case EventContinuousThought:
		d = append(d, fmt.Sprintf("progress=%.2f", e.Progress))
	case EventBotPlan:
		if len(e.Actions) > 0 {
			d = append(d, "actions="+strings.Join(e.Actions, ","))
		}
		if len(e.Perceptions) > 0 {
			d = append(d, fmt.Sprintf("perceptions=%d", len(e.Perceptions)))
		}
		if e.Mood != "" {
			d = append(d, "mood="+e.Mood)
		}
		d = append(d, fmt.Sprintf("delivered=%t", e.Visible))
	}
	if len(e.Images) > 0 {
		d = append(d, fmt.Sprintf("images=%d", len(e.Images)))
	}
	return strings.Join(d, " ")
}

func writeRow(b *strings.Builder, cols []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cols, " | "))
	b.WriteString(" |\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	return strings.ReplaceAll(oneLine(s), "|", "/")
}
