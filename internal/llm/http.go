package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Harshitk-cp/feedbackd/internal/buildconfig"
	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

// postJSON sends body to url and decodes a 200 response into out. Transport
// failures and non-200 statuses are wrapped as domain.ErrAIService, deadline
// expiry as domain.ErrTimeout.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildconfig.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: request: %v", domain.ErrTimeout, err)
		}
		return fmt.Errorf("%w: request failed: %v", domain.ErrAIService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrAIService, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: API returned status %d: %s", domain.ErrAIService, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: unmarshal response: %v", domain.ErrAIService, err)
	}
	return nil
}

func maxTokens(opts domain.GenerateOptions, def int) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return def
}
