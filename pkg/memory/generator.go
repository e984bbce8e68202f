package memory

import (
	"context"

	"github.com/worldsim/chronicle/pkg/providers"
)

// chatGenerator adapts the chat-completions client to the TextGenerator
// capability.
type chatGenerator struct {
	client      *providers.ChatClient
	model       string
	temperature float64
}

func NewChatGenerator(client *providers.ChatClient, model string, temperature float64) TextGenerator {
	return &chatGenerator{client: client, model: model, temperature: temperature}
}

func (g *chatGenerator) ModelID() string { return g.model }

func (g *chatGenerator) Generate(ctx context.Context, system, user string, maxTokens int) (string, error) {
	messages := []providers.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	return g.client.Complete(ctx, g.model, messages, maxTokens, g.temperature)
}
