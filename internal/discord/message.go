package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/kokoroflow/internal/ai"
	"github.com/keshon/kokoroflow/internal/mind"
)

const sessionPrefix = "discord:dm:"

// maxMessageLen is Discord's per-message content limit.
const maxMessageLen = 2000

// SessionID maps a DM channel to its session.
func SessionID(channelID string) string { return sessionPrefix + channelID }

// ChannelID reverses SessionID.
func ChannelID(sessionID string) (string, bool) {
	id, ok := strings.CutPrefix(sessionID, sessionPrefix)
	return id, ok && id != ""
}

// toNewMessage converts a DM from a human. Guild messages, bots, our own
// messages and empty messages are skipped.
func toNewMessage(selfID string, m *discordgo.Message) (mind.NewMessage, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == selfID || m.GuildID != "" {
		return mind.NewMessage{}, false
	}

	var images []ai.Image
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.ContentType, "image/") {
			images = append(images, ai.Image{MIME: a.ContentType, URL: a.URL})
		}
	}
	content := strings.TrimSpace(m.Content)
	if content == "" && len(images) == 0 {
		return mind.NewMessage{}, false
	}

	name := m.Author.GlobalName
	if name == "" {
		name = m.Author.Username
	}
	return mind.NewMessage{
		SessionID: SessionID(m.ChannelID),
		ID:        m.ID,
		Sender:    mind.SenderUser,
		UserID:    m.Author.ID,
		UserName:  name,
		Content:   content,
		Images:    images,
	}, true
}

// splitMessage cuts s into chunks of at most limit runes, preferring line
// breaks, then spaces.
func splitMessage(s string, limit int) []string {
	var out []string
	r := []rune(strings.TrimSpace(s))
	for len(r) > limit {
		cut := limit
		if i := lastIndex(r[:limit], '\n'); i > limit/2 {
			cut = i
		} else if i := lastIndex(r[:limit], ' '); i > limit/2 {
			cut = i
		}
		out = append(out, strings.TrimSpace(string(r[:cut])))
		r = []rune(strings.TrimSpace(string(r[cut:])))
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}

func lastIndex(r []rune, c rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == c {
			return i
		}
	}
	return -1
}
