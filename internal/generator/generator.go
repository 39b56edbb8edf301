// Package generator wraps the external generative model behind a
// deterministic, retried, single-method contract: Generate(ctx, prompt) →
// Result, whose Content field holds the generated text.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Generator is the contract consumed by the answer builder and control
// loop. Implementations must be deterministic at temperature 0 and safe
// for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Result, error)
}

// Result carries generated text plus enough bookkeeping for llmcall
// recording; callers that only need the text use Result.Content.
type Result struct {
	Content          string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	LatencyMs        int
	Attempts         int
	Success          bool
	ErrorMessage     string
}

// Config configures the OpenAI-compatible client.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	BaseURL     string // optional, for OpenAI-compatible endpoints
	Timeout     time.Duration
	MaxRetries  int
	HTTPClient  *http.Client
}

// OpenAIGenerator implements Generator against an OpenAI-compatible chat
// completions endpoint, retrying transient failures with backoff.
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	temperature float64
	maxRetries  int
}

// NewOpenAIGenerator builds a Generator from cfg.
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
	}
}

// Generate sends prompt as a single user message and retries failed calls
// up to maxRetries attempts (3 by default), waiting 0.5s before the second
// attempt and doubling the wait before each later one (0.5s, then 1s).
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	start := time.Now()
	attempts := 0

	var content string
	var usage openai.CompletionUsage
	err := retry.Do(
		func() error {
			attempts++
			resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: g.model,
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.UserMessage(prompt),
				},
				Temperature: openai.Float(g.temperature),
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return errors.New("generator: empty choices in response")
			}
			content = resp.Choices[0].Message.Content
			usage = resp.Usage
			return nil
		},
		retry.Attempts(uint(g.maxRetries)),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
	)

	result := Result{
		Provider:         "openai",
		Model:            g.model,
		Attempts:         attempts,
		LatencyMs:        int(time.Since(start).Milliseconds()),
		PromptTokens:     int(usage.PromptTokens),
		CompletionTokens: int(usage.CompletionTokens),
	}
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		return result, fmt.Errorf("generator: generate failed after %d attempts: %w", attempts, err)
	}
	result.Success = true
	result.Content = strings.TrimSpace(content)
	return result, nil
}
