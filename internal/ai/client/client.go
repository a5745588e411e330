package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatmod/chatmod/internal/setup/config"
	"github.com/chatmod/chatmod/pkg/utils"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrNoProvidersAvailable = errors.New("no providers available")

// AIClient wraps the OpenAI-compatible API with a circuit breaker and a
// concurrency cap shared by all callers in the process.
type AIClient struct {
	client        *openai.Client
	breaker       *gobreaker.CircuitBreaker
	semaphore     *semaphore.Weighted
	modelMappings map[string]string
	logger        *zap.Logger
}

// NewClient creates a new AIClient.
func NewClient(cfg *config.OpenAI, logger *zap.Logger) (*AIClient, error) {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithRequestTimeout(90*time.Second),
		option.WithMaxRetries(0),
	)

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	settings := gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		Interval:    0,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &AIClient{
		client:        &client,
		breaker:       gobreaker.NewCircuitBreaker(settings),
		semaphore:     semaphore.NewWeighted(maxConcurrent),
		modelMappings: cfg.ModelMappings,
		logger:        logger.Named("ai_client"),
	}, nil
}

// Chat returns a ChatCompletions implementation.
func (c *AIClient) Chat() ChatCompletions {
	return &chatCompletions{client: c}
}

// OpenAI exposes the underlying client for services without a wrapper, such
// as moderations, file uploads and fine-tuning jobs.
func (c *AIClient) OpenAI() *openai.Client {
	return c.client
}

// chatCompletions implements the ChatCompletions interface.
type chatCompletions struct {
	client *AIClient
}

// New makes a chat completion request.
func (c *chatCompletions) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	// Map model name
	originalModel := params.Model
	if mappedModel, ok := c.client.modelMappings[originalModel]; ok {
		params.Model = mappedModel
	}

	// Try to acquire semaphore
	if err := c.client.semaphore.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer c.client.semaphore.Release(1)

	// Execute request
	result, err := c.client.breaker.Execute(func() (any, error) {
		resp, err := c.client.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, err
		}

		if bl := c.checkResponse(resp, params.Model); bl != nil {
			return resp, bl
		}

		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			c.client.logger.Error("Circuit breaker is open, rejecting request",
				zap.String("model", originalModel))
			return nil, fmt.Errorf("%w: circuit breaker open", ErrNoProvidersAvailable)
		}

		c.client.logger.Warn("Failed to make request", zap.Error(err))

		return nil, err
	}

	return result.(*openai.ChatCompletion), nil
}

// NewWithRetry makes a chat completion request with exponential backoff.
func (c *chatCompletions) NewWithRetry(
	ctx context.Context, params openai.ChatCompletionNewParams,
) (*openai.ChatCompletion, error) {
	return utils.WithRetry(ctx, func() (*openai.ChatCompletion, error) {
		return c.New(ctx, params)
	}, utils.GetAIRetryOptions())
}

// checkResponse checks if the response carries usable text.
func (c *chatCompletions) checkResponse(resp *openai.ChatCompletion, model string) error {
	if resp == nil {
		c.client.logger.Warn("Received nil response", zap.String("model", model))
		return fmt.Errorf("%w: received nil response", utils.ErrContentBlocked)
	}

	if len(resp.Choices) == 0 {
		c.client.logger.Warn("Received empty choices", zap.String("model", model))
		return fmt.Errorf("%w: received empty choices", utils.ErrContentBlocked)
	}

	if resp.Choices[0].FinishReason == "content_filter" {
		c.client.logger.Warn("Content blocked",
			zap.String("model", model),
			zap.String("finishReason", resp.Choices[0].FinishReason))

		return utils.ErrContentBlocked
	}

	return nil
}
