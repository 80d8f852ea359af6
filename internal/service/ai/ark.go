package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/dealdojo/backend/internal/config"
)

// arkProvider runs generation through an eino prompt-template chain compiled
// over the Ark chat model.
type arkProvider struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func newArkProvider(ctx context.Context, cfg config.AIConfig) (*arkProvider, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &arkProvider{chain: runnable}, nil
}

func (p *arkProvider) Name() string { return config.ProviderArk }

func (p *arkProvider) Generate(ctx context.Context, in Prompt) (string, error) {
	response, err := p.chain.Invoke(ctx, chainInput(in))
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}
	return response.Content, nil
}

// Stream returns the incremental fragment reader from the chain.
func (p *arkProvider) Stream(ctx context.Context, in Prompt) (*schema.StreamReader[*schema.Message], error) {
	stream, err := p.chain.Stream(ctx, chainInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat chain output: %w", err)
	}
	return stream, nil
}

func chainInput(in Prompt) map[string]any {
	return map[string]any{
		"system":  in.System,
		"history": in.History,
		"query":   in.Query,
	}
}
