// Package console runs a single conversation over a terminal: each input
// line is a user message, replies are printed as they are committed.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/internal/mind"
)

// Submitter accepts inbound messages; *mind.Loop implements it.
type Submitter interface {
	Submit(ctx context.Context, m mind.NewMessage) error
}

// Console is a line-oriented transport and a mind.Executor.
type Console struct {
	in        io.Reader
	out       io.Writer
	sessionID string
	user      string
	thoughts  bool
	log       zerolog.Logger

	mu  sync.Mutex // guards out and seq
	seq int
}

type Options struct {
	SessionID    string
	UserName     string
	ShowThoughts bool // print the thought of silent decisions
}

func New(in io.Reader, out io.Writer, opts Options, log zerolog.Logger) *Console {
	if opts.SessionID == "" {
		opts.SessionID = "console:local"
	}
	if opts.UserName == "" {
		opts.UserName = "you"
	}
	return &Console{
		in:        in,
		out:       out,
		sessionID: opts.SessionID,
		user:      opts.UserName,
		thoughts:  opts.ShowThoughts,
		log:       log.With().Str("component", "console").Logger(),
	}
}

func (c *Console) SessionID() string { return c.sessionID }

// Run submits input lines until EOF, "/quit" or ctx cancellation.
func (c *Console) Run(ctx context.Context, inbox Submitter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			}
			if err := inbox.Submit(ctx, c.message(line)); err != nil {
				return err
			}
		}
	}
}

func (c *Console) message(text string) mind.NewMessage {
	c.mu.Lock()
	c.seq++
	id := fmt.Sprintf("line-%d", c.seq)
	c.mu.Unlock()
	return mind.NewMessage{
		SessionID: c.sessionID,
		ID:        id,
		Sender:    mind.SenderUser,
		UserName:  c.user,
		Content:   text,
	}
}

// Execute prints replies for this console's session.
func (c *Console) Execute(_ context.Context, sessionID string, a mind.Action) error {
	if sessionID != c.sessionID {
		return fmt.Errorf("console: unknown session %q", sessionID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case a.Kind == mind.ActionReply:
		_, err := fmt.Fprintf(c.out, "bot> %s\n", a.Content)
		return err
	case c.thoughts && a.Thought != "":
		_, err := fmt.Fprintf(c.out, "     (%s)\n", a.Thought)
		return err
	}
	return nil
}
