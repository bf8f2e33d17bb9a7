package ai

import (
	"regexp"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

func truncate(b []byte) string {
	if len(b) > 200 {
		return string(b[:200]) + "..."
	}
	return string(b)
}

// cleanReply strips reasoning blocks emitted by some models.
func cleanReply(reply string) string {
	reply = thinkBlock.ReplaceAllString(reply, "")
	return strings.TrimSpace(reply)
}
