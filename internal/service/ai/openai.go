package ai

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint,
// such as the Llama API compatibility layer.
type OpenAIGenerator struct {
	client oai.Client
	model  string
}

type openAIConfig struct {
	baseURL string
	timeout time.Duration
}

// OpenAIOption customises an OpenAIGenerator.
type OpenAIOption func(*openAIConfig)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// NewOpenAIGenerator constructs a generator for the given key and model.
func NewOpenAIGenerator(apiKey, model string, opts ...OpenAIOption) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAIGenerator{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt, opts Options) (string, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if p.System != "" {
		messages = append(messages, oai.SystemMessage(p.System))
	}
	messages = append(messages, oai.UserMessage(p.User))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: messages,
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(opts.MaxTokens))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	log.Printf("[ai] openai generated %d chars, model=%s", len(text), g.model)
	return text, nil
}
