package strategy

import (
	"strings"
	"testing"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_FixedOrder(t *testing.T) {
	all := All()
	require.Len(t, all, 3)
	assert.Equal(t, domain.StrategySimplify, all[0].ID)
	assert.Equal(t, domain.StrategyElaborate, all[1].ID)
	assert.Equal(t, domain.StrategyReframe, all[2].ID)

	// Mutating the returned slice must not affect the catalog.
	all[0] = nil
	assert.NotNil(t, All()[0])
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		reason domain.DissatisfactionReason
		want   domain.StrategyID
	}{
		{domain.ReasonClarity, domain.StrategySimplify},
		{domain.ReasonDepth, domain.StrategyElaborate},
		{domain.ReasonRelevance, domain.StrategyReframe},
		{domain.ReasonStyle, domain.StrategyReframe},
		{domain.ReasonDefault, domain.StrategySimplify},
		{"unknown", domain.StrategySimplify},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			assert.Equal(t, tt.want, SelectBest(tt.reason).ID)
		})
	}
}

func TestFallbackTemplate(t *testing.T) {
	got := FallbackTemplate(domain.ContentTypeTranslation, domain.StrategySimplify)
	assert.Contains(t, got, "Simpler version")

	assert.Equal(t, genericTemplate, FallbackTemplate("poetry", domain.StrategyElaborate))
	assert.Equal(t, genericTemplate, FallbackTemplate(domain.ContentTypeWriting, "shout"))
}

func TestFallbackText_SubstitutesSnippetAndSteps(t *testing.T) {
	got := FallbackText(domain.ContentTypeTranslation, domain.StrategySimplify, "Hello")

	assert.Contains(t, got, "Hello")
	assert.Contains(t, got, "1. Read the original once more.")
	assert.NotContains(t, got, "{content}")
	assert.NotContains(t, got, "{steps}")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", Snippet("  short "))

	long := strings.Repeat("é", snippetLength+5)
	got := Snippet(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, snippetLength+3, len([]rune(got)))
}

func TestPrompt(t *testing.T) {
	s, ok := Get(domain.StrategyElaborate)
	require.True(t, ok)

	p := s.Prompt(PromptContext{OriginalContent: "Bonjour", ContentType: domain.ContentTypeTranslation, Comment: "too short"})

	assert.Contains(t, p, "translation")
	assert.Contains(t, p, "Bonjour")
	assert.Contains(t, p, "too short")
}
