package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

const (
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	openAIModel   = "gpt-4o-mini"

	// Cerebras serves the OpenAI chat completions format.
	cerebrasChatURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel   = "llama-3.3-70b"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey     string
	url        string
	model      string
	name       string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        openAIChatURL,
		model:      openAIModel,
		name:       ProviderOpenAI,
		httpClient: &http.Client{},
	}
}

func NewCerebrasClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        cerebrasChatURL,
		model:      cerebrasModel,
		name:       ProviderCerebras,
		httpClient: &http.Client{},
	}
}

// WithEndpoint overrides the chat completions URL.
func (c *OpenAIClient) WithEndpoint(url string) *OpenAIClient {
	c.url = url
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	var result chatResponse
	err := postJSON(ctx, c.httpClient, c.url,
		map[string]string{"Authorization": "Bearer " + c.apiKey},
		chatRequest{
			Model:       c.model,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		},
		&result,
	)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", c.name, err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("%w: %s API error: %s", domain.ErrAIService, c.name, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s API returned no choices", domain.ErrAIService, c.name)
	}

	return &domain.Generation{Text: strings.TrimSpace(result.Choices[0].Message.Content)}, nil
}
