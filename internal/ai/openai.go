package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/kokoroflow/internal/config"
	"github.com/keshon/kokoroflow/pkg/retrylimit"
)

// StatusError is a non-2xx response from the model endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string   { return fmt.Sprintf("status=%d body=%s", e.Code, e.Body) }
func (e *StatusError) StatusCode() int { return e.Code }

// ErrEmptyReply is returned when the endpoint answers without choices.
var ErrEmptyReply = errors.New("model returned no choices")

// ChatClient talks to any OpenAI-compatible /chat/completions endpoint.
type ChatClient struct {
	baseURL     string
	model       string
	apiKey      string
	client      *http.Client
	limiter     *retrylimit.AdaptiveLimiter
	maxAttempts int
	log         zerolog.Logger
}

func NewChatClient(cfg config.Model, log zerolog.Logger) *ChatClient {
	rps := rate.Limit(cfg.RPS)
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Name,
		apiKey:      cfg.APIKey,
		client:      &http.Client{Timeout: timeout},
		limiter:     retrylimit.NewAdaptiveLimiter(rps, rps/4, rps*2, 0.5, 0.5),
		maxAttempts: max(1, cfg.MaxAttempts),
		log:         log.With().Str("component", "ai").Logger(),
	}
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func toWire(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Images) == 0 {
			out = append(out, wireMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := []wirePart{{Type: "text", Text: m.Content}}
		for _, img := range m.Images {
			url := img.URL
			if url == "" {
				mime := img.MIME
				if mime == "" {
					mime = "image/png"
				}
				url = "data:" + mime + ";base64," + img.Data
			}
			parts = append(parts, wirePart{Type: "image_url", ImageURL: &wireImageURL{URL: url}})
		}
		out = append(out, wireMessage{Role: m.Role, Content: parts})
	}
	return out
}

// Generate sends messages and returns the cleaned first choice. 429 and 5xx
// responses are retried through the adaptive limiter; other 4xx are not.
func (c *ChatClient) Generate(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": toWire(messages),
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var reply string
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = c.maxAttempts
	cfg.Logger = c.log
	err = retrylimit.WithRetryConfig(ctx, func() error {
		r, err := c.do(ctx, body)
		if err != nil {
			return err
		}
		reply = r
		return nil
	}, c.limiter, cfg)
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *ChatClient) do(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", retrylimit.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{Code: resp.StatusCode, Body: truncate(respBody)}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return "", retrylimit.Fatal(serr)
		}
		return "", serr
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal: %w body=%s", err, truncate(respBody))
	}
	if len(parsed.Choices) == 0 {
		return "", retrylimit.Fatal(ErrEmptyReply)
	}
	return cleanReply(parsed.Choices[0].Message.Content), nil
}
