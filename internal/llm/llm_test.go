package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got chatRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "feedbackd/")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  simpler text \n"}}]}`))
	})

	c := NewOpenAIClient("sk-test").WithEndpoint(srv.URL)
	gen, err := c.Generate(context.Background(), "rewrite this", domain.GenerateOptions{Temperature: 0.7, MaxTokens: 500})

	require.NoError(t, err)
	assert.Equal(t, "simpler text", gen.Output())
	assert.Equal(t, openAIModel, got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "rewrite this", got.Messages[0].Content)
	assert.Equal(t, 500, got.MaxTokens)
}

func TestOpenAIClient_ErrorStatus(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	})

	_, err := NewOpenAIClient("k").WithEndpoint(srv.URL).Generate(context.Background(), "p", domain.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrAIService)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := NewOpenAIClient("k").WithEndpoint(srv.URL).Generate(context.Background(), "p", domain.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrAIService)
}

func TestOpenAIClient_DeadlineIsTimeout(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewOpenAIClient("k").WithEndpoint(srv.URL).Generate(ctx, "p", domain.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestCerebrasClient_UsesOwnModel(t *testing.T) {
	var got chatRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	_, err := NewCerebrasClient("k").WithEndpoint(srv.URL).Generate(context.Background(), "p", domain.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, cerebrasModel, got.Model)
}

func TestAnthropicClient_Generate(t *testing.T) {
	var got anthropicRequest
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Let me "},{"type":"text","text":"expand."}]}`))
	})

	gen, err := NewAnthropicClient("key").WithEndpoint(srv.URL).Generate(context.Background(), "p", domain.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "Let me expand.", gen.Text)
	assert.Equal(t, anthropicMaxTokens, got.MaxTokens)
}

func TestAnthropicClient_EmptyContent(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	})

	_, err := NewAnthropicClient("key").WithEndpoint(srv.URL).Generate(context.Background(), "p", domain.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrAIService)
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gk", r.Header.Get("x-goog-api-key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"another angle"}]}}]}`))
	})

	gen, err := NewGeminiClient("gk").WithEndpoint(srv.URL).Generate(context.Background(), "p", domain.GenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, "another angle", gen.Text)
}

func TestGeminiClient_APIError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad key","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := NewGeminiClient("gk").WithEndpoint(srv.URL).Generate(context.Background(), "p", domain.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrAIService)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		provider string
		key      string
		wantErr  bool
		wantNil  bool
	}{
		{ProviderOpenAI, "k", false, false},
		{ProviderOpenAI, "", true, true},
		{ProviderAnthropic, "k", false, false},
		{ProviderGemini, "k", false, false},
		{ProviderCerebras, "", true, true},
		{ProviderMock, "", false, false},
		{ProviderNone, "", false, true},
		{"llama-farm", "k", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := NewClient(tt.provider, tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantNil, c == nil)
		})
	}
}

func TestMockClient_DelayHonorsContext(t *testing.T) {
	m := NewMockClient()
	m.Delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Generate(ctx, "p", domain.GenerateOptions{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, m.CallCount())
}
