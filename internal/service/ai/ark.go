package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ArkGenerator runs prompts through an eino chain: chat template, then chat model.
type ArkGenerator struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkGenerator compiles the chain around the given chat model.
func NewArkGenerator(ctx context.Context, chatModel model.ChatModel) (*ArkGenerator, error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &ArkGenerator{chain: runnable}, nil
}

// Generate implements Generator.
func (g *ArkGenerator) Generate(ctx context.Context, p Prompt, opts Options) (string, error) {
	input := map[string]any{
		"system": p.System,
		"prompt": p.User,
	}

	var modelOpts []model.Option
	if opts.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		modelOpts = append(modelOpts, model.WithTemperature(float32(opts.Temperature)))
	}

	response, err := g.chain.Invoke(ctx, input, compose.WithChatModelOption(modelOpts...))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	log.Printf("[ai] ark generated %d chars", len(text))
	return text, nil
}
