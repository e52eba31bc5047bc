package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicModel       = "claude-3-5-haiku-20241022"
	anthropicVersion     = "2023-06-01"
	anthropicMaxTokens   = 1024
)

type AnthropicClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		url:        anthropicMessagesURL,
		httpClient: &http.Client{},
	}
}

// WithEndpoint overrides the messages URL.
func (c *AnthropicClient) WithEndpoint(url string) *AnthropicClient {
	c.url = url
	return c
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	var result anthropicResponse
	err := postJSON(ctx, c.httpClient, c.url,
		map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": anthropicVersion,
		},
		anthropicRequest{
			Model:       anthropicModel,
			MaxTokens:   maxTokens(opts, anthropicMaxTokens),
			Temperature: opts.Temperature,
			Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		},
		&result,
	)
	if err != nil {
		return nil, fmt.Errorf("anthropic generate: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("%w: anthropic API error: %s", domain.ErrAIService, result.Error.Message)
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("%w: anthropic API returned no content", domain.ErrAIService)
	}

	return &domain.Generation{Text: text}, nil
}
