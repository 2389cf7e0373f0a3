package ai

import (
	"context"
	"fmt"

	"github.com/zhouzirui/rehearsal/backend/internal/config"
)

// NewGenerator builds the generator selected by cfg.Provider.
func NewGenerator(ctx context.Context, cfg config.AIConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAI.APIKey, cfg.OpenAI.Model, WithBaseURL(cfg.OpenAI.BaseURL))
	case config.ProviderArk, "":
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewArkGenerator(ctx, chatModel)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
