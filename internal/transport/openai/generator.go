package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kinetic-field/faultline/internal/domain"
	"github.com/kinetic-field/faultline/internal/metrics"
)

// Generator is a chat-completion provider using the OpenAI-compatible API.
type Generator struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	Logger   *zap.Logger
}

// NewGenerator creates an OpenAI-compatible chat completion provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Generate implements domain.Generator via a single chat completion call.
func (g *Generator) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return domain.GenerateResult{}, parseAPIError(ctx, "generation", err)
	}

	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return domain.GenerateResult{}, fmt.Errorf("empty completion response: %w", domain.ErrGeneratorError)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(g.provider, g.model).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "prompt").
			Add(float64(resp.Usage.PromptTokens))
		metrics.GenerationTokensTotal.WithLabelValues(g.provider, g.model, "total").
			Add(float64(resp.Usage.TotalTokens))
	}

	return domain.GenerateResult{
		Text:         resp.Choices[0].Message.Content,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}
