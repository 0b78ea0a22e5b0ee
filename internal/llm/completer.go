package llm

import (
	"context"

	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/openai/openai-go/v3"
)

const (
	DefaultChatModel   = "gpt-4-turbo-preview"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// Completer produces one chat completion per call. It never retries.
type Completer struct {
	provider    *Provider
	model       string
	temperature float64
	maxTokens   int64
}

// NewCompleter creates a completer with the provider's chat settings.
func NewCompleter(provider *Provider) *Completer {
	c := &Completer{
		provider:    provider,
		model:       provider.cfg.ChatModel,
		temperature: DefaultTemperature,
		maxTokens:   int64(provider.cfg.MaxTokens),
	}
	if provider.cfg.Temperature != nil {
		c.temperature = *provider.cfg.Temperature
	}
	if c.model == "" {
		c.model = DefaultChatModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	return c
}

// Complete returns the assistant text for the given conversation.
func (c *Completer) Complete(ctx context.Context, messages []domain.PromptMessage) (string, error) {
	const op = "complete"

	client, err := c.provider.Client()
	if err != nil {
		return "", domain.NewError(domain.KindCompletionService, op, "client unavailable", err)
	}

	params := openai.ChatCompletionNewParams{
		Messages:    toParams(messages),
		Model:       openai.ChatModel(c.model),
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", domain.NewError(domain.KindCompletionService, op, describe(err), err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", domain.NewError(domain.KindCompletionService, op, "response has no choices", nil)
	}

	return resp.Choices[0].Message.Content, nil
}

func toParams(messages []domain.PromptMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
