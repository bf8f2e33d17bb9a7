// Package discord connects direct-message conversations to the mind loop:
// inbound DMs become messages, committed replies are sent back.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/internal/config"
	"github.com/keshon/kokoroflow/internal/mind"
	"github.com/keshon/kokoroflow/pkg/retrylimit"
)

// Submitter accepts inbound messages; *mind.Loop implements it.
type Submitter interface {
	Submit(ctx context.Context, m mind.NewMessage) error
}

type messenger interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Bot is a Discord DM transport and a mind.Executor.
type Bot struct {
	dg      *discordgo.Session
	send    messenger
	inbox   Submitter
	log     zerolog.Logger
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.RetryConfig

	mu     sync.RWMutex
	ctx    context.Context
	selfID string
}

// New creates the session; nothing connects until Run.
func New(cfg config.Discord, log zerolog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	log = log.With().Str("component", "discord").Logger()
	retry := retrylimit.DefaultRetryConfig()
	retry.MaxAttempts = 4
	retry.Logger = log

	b := &Bot{
		dg:      dg,
		send:    dg,
		log:     log,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5),
		retry:   retry,
		ctx:     context.Background(),
	}
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)
	return b, nil
}

// Attach sets where inbound messages go. Call before Run.
func (b *Bot) Attach(inbox Submitter) { b.inbox = inbox }

// Run opens the gateway and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.inbox == nil {
		return errors.New("discord: no inbox attached")
	}
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, closing gateway")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	b.selfID = r.User.ID
	b.mu.Unlock()
	b.log.Info().Str("user", r.User.Username).Msg("discord bot is running")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.mu.RLock()
	ctx, self := b.ctx, b.selfID
	b.mu.RUnlock()

	nm, ok := toNewMessage(self, m.Message)
	if !ok {
		return
	}
	if err := b.send.ChannelTyping(m.ChannelID); err != nil {
		b.log.Debug().Err(err).Msg("typing indicator failed")
	}
	if err := b.inbox.Submit(ctx, nm); err != nil {
		b.log.Warn().Err(err).Str("session", nm.SessionID).Msg("message dropped")
	}
}
