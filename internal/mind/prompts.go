package mind

import (
	"fmt"
	"strings"
	"time"

	"github.com/keshon/kokoroflow/internal/ai"
	"github.com/keshon/kokoroflow/pkg/util"
)

const systemPrompt = `You are chatting one-to-one with a person and keep an inner timeline of what happened and what you felt.
Decide what to do next and answer ONLY with a JSON object:
{"thought": "what you think", "actions": [{"type": "kfc_reply", "content": "message text"}], "expected_user_reaction": "what you expect them to do", "max_wait_seconds": 120, "mood": "one word"}
Use {"type": "do_nothing"} to stay silent and {"type": "kfc_stop"} to end the conversation.
max_wait_seconds is how long you will wait for an answer; 0 means you do not wait.`

const nudgePrompt = "That was not the JSON decision. Keep what you noticed in mind and answer again with only the JSON object."

const thoughtSystemPrompt = "You are waiting for a reply from the person you are chatting with. In one or two short sentences, describe how you feel right now."

const maxThoughtLen = 200

func timelineMessage(log *MentalLog, f Format, images []ai.Image) ai.Message {
	return ai.Message{
		Role:    ai.RoleUser,
		Content: "Your timeline so far:\n" + log.Render(f),
		Images:  images,
	}
}

// historyImages collects images of past user messages, oldest first. When
// skipLast is set the newest user message is left out; it is the current one.
func historyImages(log *MentalLog, skipLast bool) [][]ai.Image {
	var out [][]ai.Image
	events := log.Events()
	last := -1
	if skipLast {
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Kind == EventUserMessage {
				last = i
				break
			}
		}
	}
	for i, e := range events {
		if e.Kind == EventUserMessage && i != last && len(e.Images) > 0 {
			out = append(out, e.Images)
		}
	}
	return out
}

func flatten(groups [][]ai.Image) []ai.Image {
	var out []ai.Image
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (l *Loop) newBudget() *ImageBudget {
	if !l.cfg.General.NativeMultimodal {
		return NewImageBudget(0)
	}
	return NewImageBudget(l.cfg.General.MaxImagesPerPayload)
}

// turnPayloadLocked builds the payload for a message or proactive trigger.
func (l *Loop) turnPayloadLocked(s *Session, m NewMessage, now time.Time) []ai.Message {
	budget := l.newBudget()
	user := m.Sender != SenderSystem
	var current []ai.Image
	if user {
		current = m.Images
	}
	cur, hist := SelectImages(budget, current, historyImages(s.log, user))

	var prompt string
	if user {
		who := m.UserName
		if who == "" {
			who = "They"
		}
		prompt = fmt.Sprintf("%s just wrote: %s\nDecide how to respond.", who, m.Content)
	} else {
		silence := "a while"
		if !s.lastActivityAt.IsZero() {
			silence = util.HumanDuration(now.Sub(s.lastActivityAt))
		}
		prompt = fmt.Sprintf("Nobody has said anything for %s. You may start the conversation again, or do nothing.", silence)
	}

	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		timelineMessage(s.log, l.format, flatten(hist)),
		{Role: ai.RoleUser, Content: prompt, Images: cur},
	}
}

// timeoutPayloadLocked builds the payload after a wait deadline passed.
func (l *Loop) timeoutPayloadLocked(s *Session, ep *WaitEpisode, now time.Time) []ai.Message {
	_, hist := SelectImages(l.newBudget(), nil, historyImages(s.log, false))

	var b strings.Builder
	b.WriteString("[DEADLINE PASSED] ")
	fmt.Fprintf(&b, "You waited %s (planned %s) and got no reply.\n", util.HumanDuration(ep.Elapsed(now)), util.HumanDuration(ep.Planned))
	if ep.ExpectedReaction != "" {
		fmt.Fprintf(&b, "You expected: %s\n", ep.ExpectedReaction)
	}
	if len(ep.Thoughts) > 0 {
		b.WriteString("What went through your mind while waiting:\n")
		for _, t := range ep.Thoughts {
			b.WriteString("- " + oneLine(t) + "\n")
		}
	}
	if last := s.log.LastReply(); last != "" {
		fmt.Fprintf(&b, "Your last message was: %s\n", oneLine(last))
	}
	fmt.Fprintf(&b, "Consecutive timeouts before this one: %d of %d allowed.\n", s.timeouts, l.cfg.Wait.MaxConsecutiveTimeouts)
	b.WriteString("Decide: wait longer (max_wait_seconds > 0), send a message, or stop.")

	return []ai.Message{
		{Role: ai.RoleSystem, Content: systemPrompt},
		timelineMessage(s.log, l.format, flatten(hist)),
		{Role: ai.RoleUser, Content: b.String()},
	}
}

func thoughtPayload(ep *WaitEpisode, lastReply string, now time.Time) []ai.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "You have been waiting %s, %.0f%% of the time you planned.\n", util.HumanDuration(ep.Elapsed(now)), ep.Progress(now)*100)
	if ep.ExpectedReaction != "" {
		fmt.Fprintf(&b, "You expected: %s\n", ep.ExpectedReaction)
	}
	if lastReply != "" {
		fmt.Fprintf(&b, "Your last message: %s\n", oneLine(lastReply))
	}
	return []ai.Message{
		{Role: ai.RoleSystem, Content: thoughtSystemPrompt},
		{Role: ai.RoleUser, Content: b.String()},
	}
}

// fallbackThought is recorded when the model cannot produce one.
func fallbackThought(progress float64) string {
	switch {
	case progress < 0.3:
		return "Just sent that, curious what they will say."
	case progress < 0.6:
		return "No answer yet, maybe they are busy."
	case progress < 0.85:
		return "It has been a while, I wonder if they saw my message."
	default:
		return "Waited quite long now, maybe I should do something else."
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
