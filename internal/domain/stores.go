package domain

import (
	"context"
	"encoding/json"
)

// Predicate is a Filter value that is called with the element's field value.
type Predicate func(v any) bool

// Filter selects array elements in Storage.Query. Every entry must match:
// a Predicate must return true for the field, any other value must equal it.
type Filter map[string]any

// Storage is the key/value persistence collaborator. Implementations never panic;
// failures are reported through the error kinds in errors.go.
type Storage interface {
	Save(ctx context.Context, key string, value any) error
	Load(ctx context.Context, key string, dst any) error
	Remove(ctx context.Context, key string) error
	Count(ctx context.Context, key string) (int, error)
	Query(ctx context.Context, key string, filter Filter) ([]json.RawMessage, error)
}

// FilterCounter is implemented by storages that can count matching array
// elements without returning them.
type FilterCounter interface {
	CountMatching(ctx context.Context, key string, filter Filter) (int, error)
}

// Uploader ships batches to the remote collector.
type Uploader interface {
	Upload(ctx context.Context, events []any) error
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
}

// Generation is the AI capability's output. Providers fill whichever field
// they natively produce.
type Generation struct {
	Text    string `json:"text,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Content string `json:"content,omitempty"`
}

// Output returns the first non-empty field.
func (g *Generation) Output() string {
	if g == nil {
		return ""
	}
	switch {
	case g.Text != "":
		return g.Text
	case g.Hint != "":
		return g.Hint
	default:
		return g.Content
	}
}

// Generator is the opaque AI capability. Calls may be slow or fail.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*Generation, error)
}
