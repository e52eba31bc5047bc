package llm

import (
	"context"
	"sync"
	"time"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

// MockClient is a configurable generator for testing.
// Set the response fields to control what Generate returns.
type MockClient struct {
	mu sync.Mutex

	Response *domain.Generation
	Error    error
	// Delay is waited out before answering, unless ctx ends first.
	Delay time.Duration
	// Panic makes Generate panic with the given value.
	Panic any
	// Respond, when set, overrides Response and Error.
	Respond func(prompt string) (*domain.Generation, error)

	// Call tracking for assertions
	Calls []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Response: &domain.Generation{Text: "Mock alternative"},
	}
}

func (c *MockClient) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (*domain.Generation, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, prompt)
	resp, err, delay, p, respond := c.Response, c.Error, c.Delay, c.Panic, c.Respond
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p != nil {
		panic(p)
	}
	if respond != nil {
		return respond(prompt)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CallCount returns how many times Generate was invoked.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = &domain.Generation{Text: "Mock alternative"}
	c.Error = nil
	c.Delay = 0
	c.Panic = nil
	c.Respond = nil
	c.Calls = nil
}
