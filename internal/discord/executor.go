package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/kokoroflow/internal/mind"
	"github.com/keshon/kokoroflow/pkg/retrylimit"
)

// restStatus exposes the status of a discordgo REST failure to retrylimit.
type restStatus struct {
	err  error
	code int
}

func (e *restStatus) Error() string   { return e.err.Error() }
func (e *restStatus) Unwrap() error   { return e.err }
func (e *restStatus) StatusCode() int { return e.code }

func classify(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return err
	}
	code := rest.Response.StatusCode
	wrapped := &restStatus{err: err, code: code}
	if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return retrylimit.Fatal(wrapped)
	}
	return wrapped
}

// Execute delivers a reply to the DM channel. Do-nothing actions are silent.
func (b *Bot) Execute(ctx context.Context, sessionID string, a mind.Action) error {
	if a.Kind != mind.ActionReply {
		return nil
	}
	channelID, ok := ChannelID(sessionID)
	if !ok {
		return fmt.Errorf("discord: %q is not a DM session", sessionID)
	}

	for _, chunk := range splitMessage(a.Content, maxMessageLen) {
		err := retrylimit.WithRetryConfig(ctx, func() error {
			_, err := b.send.ChannelMessageSend(channelID, chunk)
			return classify(err)
		}, b.limiter, b.retry)
		if err != nil {
			return fmt.Errorf("send to %s: %w", channelID, err)
		}
	}
	b.log.Debug().Str("session", sessionID).Int("chars", len(a.Content)).Msg("reply sent")
	return nil
}
