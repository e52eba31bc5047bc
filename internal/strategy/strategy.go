// Package strategy holds the fixed catalog of remediation strategies used to
// regenerate disliked content, and the static templates used when the AI
// capability is unavailable.
package strategy

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
)

// snippetLength caps how much of the original content a fallback quotes.
const snippetLength = 80

// PromptContext is what a strategy needs to build its prompt.
type PromptContext struct {
	OriginalContent string
	ContentType     domain.ContentType
	Comment         string
}

// Strategy is an immutable remediation approach.
type Strategy struct {
	ID          domain.StrategyID
	Name        string
	Description string
	prompt      string
	templates   map[domain.ContentType]string
}

// Prompt builds the strategy-specific generation prompt.
func (s *Strategy) Prompt(pc PromptContext) string {
	contentType := string(pc.ContentType)
	if contentType == "" {
		contentType = "content"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(s.prompt, contentType, pc.OriginalContent))
	if pc.Comment != "" {
		sb.WriteString("\n\nThe user said: ")
		sb.WriteString(pc.Comment)
	}
	return sb.String()
}

var (
	simplify = &Strategy{
		ID:          domain.StrategySimplify,
		Name:        "Simplify",
		Description: "Rewrite with shorter sentences and plainer words",
		prompt:      simplifyPrompt,
		templates: map[domain.ContentType]string{
			domain.ContentTypeTranslation:    "Simpler version of \"{content}\":\n{steps}",
			domain.ContentTypeWriting:        "Let's make this clearer. Focus on one point at a time in \"{content}\":\n{steps}",
			domain.ContentTypeRecommendation: "In short: start with the first item of \"{content}\" and skip the rest for now.\n{steps}",
			domain.ContentTypeConversation:   "Let me say that more simply. \"{content}\"\n{steps}",
		},
	}

	elaborate = &Strategy{
		ID:          domain.StrategyElaborate,
		Name:        "Elaborate",
		Description: "Add detail, examples and reasoning",
		prompt:      elaboratePrompt,
		templates: map[domain.ContentType]string{
			domain.ContentTypeTranslation:    "A fuller explanation of \"{content}\":\n{steps}",
			domain.ContentTypeWriting:        "Here is more detail on the feedback for \"{content}\":\n{steps}",
			domain.ContentTypeRecommendation: "Why this was recommended (\"{content}\"):\n{steps}",
			domain.ContentTypeConversation:   "Let me expand on that. \"{content}\"\n{steps}",
		},
	}

	reframe = &Strategy{
		ID:          domain.StrategyReframe,
		Name:        "Reframe",
		Description: "Approach the same content from a different angle",
		prompt:      reframePrompt,
		templates: map[domain.ContentType]string{
			domain.ContentTypeTranslation:    "Another way to put \"{content}\":\n{steps}",
			domain.ContentTypeWriting:        "Looking at \"{content}\" from the reader's side:\n{steps}",
			domain.ContentTypeRecommendation: "A different pick based on \"{content}\":\n{steps}",
			domain.ContentTypeConversation:   "Let me try that from another angle. \"{content}\"\n{steps}",
		},
	}

	// order is also the rotation sequence.
	order = []*Strategy{simplify, elaborate, reframe}

	byID = map[domain.StrategyID]*Strategy{
		domain.StrategySimplify:  simplify,
		domain.StrategyElaborate: elaborate,
		domain.StrategyReframe:   reframe,
	}

	reasonMapping = map[domain.DissatisfactionReason]domain.StrategyID{
		domain.ReasonClarity:   domain.StrategySimplify,
		domain.ReasonDepth:     domain.StrategyElaborate,
		domain.ReasonRelevance: domain.StrategyReframe,
		domain.ReasonStyle:     domain.StrategyReframe,
		domain.ReasonDefault:   domain.StrategySimplify,
	}
)

// genericTemplate is used when a strategy has no template for the content type.
const genericTemplate = "Here is another take on \"{content}\":\n{steps}"

// fallbackSteps is the fixed multi-step text substituted for {steps}.
const fallbackSteps = "1. Read the original once more.\n2. Focus on the key idea.\n3. Ask again if anything is still unclear."

// All returns the strategies in rotation order.
func All() []*Strategy {
	out := make([]*Strategy, len(order))
	copy(out, order)
	return out
}

// Get returns the strategy with the given id.
func Get(id domain.StrategyID) (*Strategy, bool) {
	s, ok := byID[id]
	return s, ok
}

// SelectBest maps a dissatisfaction reason to a strategy. Unknown reasons map
// to simplify.
func SelectBest(reason domain.DissatisfactionReason) *Strategy {
	id, ok := reasonMapping[reason]
	if !ok {
		id = domain.StrategySimplify
	}
	return byID[id]
}

// FallbackTemplate resolves the static template for a content type, falling
// back to the generic template when the strategy or content type is unknown.
func FallbackTemplate(contentType domain.ContentType, id domain.StrategyID) string {
	s, ok := byID[id]
	if !ok {
		return genericTemplate
	}
	if t, ok := s.templates[contentType]; ok {
		return t
	}
	return genericTemplate
}

// FallbackText renders the template with a snippet of the original content.
func FallbackText(contentType domain.ContentType, id domain.StrategyID, original string) string {
	r := strings.NewReplacer(
		"{content}", Snippet(original),
		"{steps}", fallbackSteps,
	)
	return r.Replace(FallbackTemplate(contentType, id))
}

// Snippet shortens s to at most snippetLength runes, adding an ellipsis.
func Snippet(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= snippetLength {
		return s
	}
	return string(runes[:snippetLength]) + "..."
}
