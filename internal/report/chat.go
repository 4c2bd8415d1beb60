package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatGenerator talks to an OpenAI-compatible chat completions endpoint.
type ChatGenerator struct {
	client openai.Client
	model  string
}

// NewChatGenerator points the client at endpoint, e.g. https://api.openai.com/v1.
// Upstream retries are left to the caller.
func NewChatGenerator(endpoint, apiKey, model string, timeout time.Duration) *ChatGenerator {
	if timeout <= 0 {
		timeout = time.Minute
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(endpoint, "/") + "/"),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &ChatGenerator{client: openai.NewClient(opts...), model: model}
}

func chatMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (g *ChatGenerator) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: chatMessages(messages),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat endpoint returned %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("chat request: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("chat response has no content")
	}
	return resp.Choices[0].Message.Content, nil
}
