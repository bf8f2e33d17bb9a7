package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image is an attachment passed to multimodal models. Either URL or Data
// (base64, without the data: prefix) is set.
type Image struct {
	MIME string `json:"mime,omitempty"`
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

type Message struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// Provider produces a completion for a conversation.
type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, messages []Message) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
