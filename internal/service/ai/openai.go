package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dealdojo/backend/internal/config"
)

// openAIProvider speaks to any OpenAI-compatible chat-completions endpoint,
// including local model servers via OPENAI_BASE_URL.
type openAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func newOpenAIProvider(cfg config.AIConfig) (*openAIProvider, error) {
	if !cfg.OpenAIEnabled() {
		return nil, fmt.Errorf("openai credentials missing: provide OPENAI_API_KEY and OPENAI_MODEL")
	}

	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	p := &openAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.OpenAIModel,
		temperature: 0.8,
		maxTokens:   512,
	}
	if cfg.Temperature != nil {
		p.temperature = float32(*cfg.Temperature)
	}
	if cfg.MaxTokens != nil {
		p.maxTokens = *cfg.MaxTokens
	}
	return p, nil
}

func (p *openAIProvider) Name() string { return config.ProviderOpenAI }

func (p *openAIProvider) Generate(ctx context.Context, in Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(in.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: in.System,
	})
	for _, msg := range in.History {
		role := openai.ChatMessageRoleUser
		if msg.Role == schema.Assistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: in.Query,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
