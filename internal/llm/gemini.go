package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent"

type GeminiClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey:     apiKey,
		url:        geminiBaseURL,
		httpClient: &http.Client{},
	}
}

// WithEndpoint overrides the generateContent URL.
func (c *GeminiClient) WithEndpoint(url string) *GeminiClient {
	c.url = url
	return c
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	var result geminiResponse
	err := postJSON(ctx, c.httpClient, c.url,
		map[string]string{"x-goog-api-key": c.apiKey},
		geminiRequest{
			Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}, Role: "user"}},
			GenerationConfig: geminiGenerationConfig{
				Temperature:     opts.Temperature,
				MaxOutputTokens: opts.MaxTokens,
			},
		},
		&result,
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("%w: gemini API error: %s", domain.ErrAIService, result.Error.Message)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini API returned no content", domain.ErrAIService)
	}

	text := strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text)
	return &domain.Generation{Text: text}, nil
}
