package mind

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// StrategyResult is the typed outcome of one model decision:
// Reply, DoNothing or Malformed.
type StrategyResult interface {
	isStrategyResult()
}

type Reply struct {
	Content          string
	Thought          string
	ExpectedReaction string
	MaxWait          time.Duration
	Mood             string
	Stop             bool
	Actions          []string
}

type DoNothing struct {
	Thought          string
	ExpectedReaction string
	MaxWait          time.Duration
	Mood             string
	Stop             bool
	Actions          []string
}

// Malformed means no structured decision could be obtained.
type Malformed struct {
	Raw string
}

func (Reply) isStrategyResult()     {}
func (DoNothing) isStrategyResult() {}
func (Malformed) isStrategyResult() {}

// Action type names accepted from the model. A "component:" prefix is ignored.
const (
	actReply     = "kfc_reply"
	actRespond   = "respond"
	actDoNothing = "do_nothing"
	actStop      = "kfc_stop"
)

type seconds float64

func (s *seconds) UnmarshalJSON(b []byte) error {
	str := strings.Trim(string(b), `"`)
	if str == "" || str == "null" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return err
	}
	*s = seconds(f)
	return nil
}

type strategyFields struct {
	Thought              *string  `json:"thought"`
	ExpectedUserReaction *string  `json:"expected_user_reaction"`
	ExpectedReaction     *string  `json:"expected_reaction"`
	MaxWaitSeconds       *seconds `json:"max_wait_seconds"`
	Mood                 *string  `json:"mood"`
}

type wireAction struct {
	strategyFields
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type wireStrategy struct {
	strategyFields
	Actions []wireAction `json:"actions"`
}

// meta accumulates decision metadata; later sources override earlier ones.
type meta struct {
	thought, expected, mood string
	maxWait                 float64
}

func (m *meta) merge(f strategyFields) {
	if f.Thought != nil {
		m.thought = *f.Thought
	}
	if f.ExpectedReaction != nil {
		m.expected = *f.ExpectedReaction
	}
	if f.ExpectedUserReaction != nil {
		m.expected = *f.ExpectedUserReaction
	}
	if f.MaxWaitSeconds != nil {
		m.maxWait = float64(*f.MaxWaitSeconds)
	}
	if f.Mood != nil {
		m.mood = *f.Mood
	}
}

func (f strategyFields) empty() bool {
	return f.Thought == nil && f.ExpectedReaction == nil && f.ExpectedUserReaction == nil &&
		f.MaxWaitSeconds == nil && f.Mood == nil
}

// ParseStrategy extracts a decision from raw model output. It looks for a
// JSON object in the whole text, then in a fenced code block, then at the
// first balanced {...}. ok is false when the output is free text.
func ParseStrategy(raw string) (StrategyResult, bool) {
	for _, candidate := range jsonCandidates(raw) {
		var w wireStrategy
		if err := json.Unmarshal([]byte(candidate), &w); err != nil {
			continue
		}
		if w.Actions == nil && w.strategyFields.empty() {
			continue
		}
		return w.result(), true
	}
	return nil, false
}

func (w wireStrategy) result() StrategyResult {
	var m meta
	m.merge(w.strategyFields)

	var contents, names []string
	replied, stop := false, false
	for _, a := range w.Actions {
		name := a.Type
		if name == "" {
			name = a.Name
		}
		if i := strings.LastIndex(name, ":"); i >= 0 {
			name = name[i+1:]
		}
		names = append(names, name)
		m.merge(a.strategyFields)

		switch name {
		case actReply, actRespond, "reply":
			if c := strings.TrimSpace(a.Content); c != "" {
				contents = append(contents, c)
				replied = true
			}
		case actStop, "stop":
			stop = true
		}
	}

	wait := time.Duration(m.maxWait * float64(time.Second))
	if stop || wait < 0 {
		wait = 0
	}
	if replied {
		return Reply{
			Content:          strings.Join(contents, "\n"),
			Thought:          m.thought,
			ExpectedReaction: m.expected,
			MaxWait:          wait,
			Mood:             m.mood,
			Stop:             stop,
			Actions:          names,
		}
	}
	return DoNothing{
		Thought:          m.thought,
		ExpectedReaction: m.expected,
		MaxWait:          wait,
		Mood:             m.mood,
		Stop:             stop,
		Actions:          names,
	}
}

func jsonCandidates(raw string) []string {
	raw = strings.TrimSpace(raw)
	out := []string{raw}
	if fenced, ok := fencedBlock(raw); ok {
		out = append(out, fenced)
	}
	if obj, ok := firstObject(raw); ok {
		out = append(out, obj)
	}
	return out
}

func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	// skip an optional language tag
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{}") {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// firstObject returns the first balanced {...} span, honouring JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth, inStr, esc := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
