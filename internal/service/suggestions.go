package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const suggestionPrompt = `You are reviewing how users react to AI-generated alternatives.
The "%s" remediation strategy shows a %s: %d%% across %d samples (severity: %s).

Suggest one concrete change to the prompt or behavior of this strategy.
Respond ONLY with JSON in this exact format:
{"title": "short imperative title", "description": "one or two sentences", "priority": "high|medium|low"}`

type suggestionTemplate struct {
	title       string
	description string
}

var suggestionTemplates = map[domain.PatternType]suggestionTemplate{
	domain.PatternHighRejectRate: {
		title:       "Revise the {strategy} strategy",
		description: "Users rejected {rate}% of {strategy} alternatives across {count} samples. Rework the {strategy} prompt so its alternatives match what users expect.",
	},
	domain.PatternHighRetryRate: {
		title:       "Reduce retries after {strategy}",
		description: "Users asked for another alternative after {rate}% of {strategy} remediations ({count} samples). Make the first {strategy} result more complete.",
	},
}

var genericSuggestionTemplate = suggestionTemplate{
	title:       "Investigate {strategy} feedback",
	description: "A rate of {rate}% was detected for the {strategy} strategy across {count} samples.",
}

// suggest builds one suggestion per pattern, concurrently and in pattern order.
func (s *AggregationService) suggest(ctx context.Context, patterns []domain.Pattern) []domain.Suggestion {
	out := make([]domain.Suggestion, len(patterns))

	var g errgroup.Group
	g.SetLimit(s.opts.SuggestionConcurrency)
	for i, p := range patterns {
		g.Go(func() error {
			out[i] = s.suggestionFor(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *AggregationService) suggestionFor(ctx context.Context, p domain.Pattern) (sg domain.Suggestion) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("suggestion generation panicked", zap.Any("panic", r))
			sg = templateSuggestion(p)
		}
	}()

	if s.generator == nil {
		return templateSuggestion(p)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.SuggestionTimeout)
	defer cancel()

	type outcome struct {
		sg  domain.Suggestion
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%w: generator panicked: %v", domain.ErrAIService, r)}
			}
		}()
		sg, err := s.aiSuggestion(ctx, p)
		ch <- outcome{sg: sg, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			s.logger.Debug("ai suggestion unavailable, using template",
				zap.String("strategy", string(p.Strategy)),
				zap.Error(out.err))
			return templateSuggestion(p)
		}
		return out.sg
	case <-ctx.Done():
		s.logger.Debug("ai suggestion timed out, using template", zap.String("strategy", string(p.Strategy)))
		return templateSuggestion(p)
	}
}

func (s *AggregationService) aiSuggestion(ctx context.Context, p domain.Pattern) (domain.Suggestion, error) {
	prompt := fmt.Sprintf(suggestionPrompt,
		p.Strategy, strings.ReplaceAll(string(p.Type), "_", " "), ratePercent(p.Rate), p.SampleSize, p.Severity)

	gen, err := s.generator.Generate(ctx, prompt, domain.GenerateOptions{Temperature: 0.3, MaxTokens: 300})
	if err != nil {
		return domain.Suggestion{}, err
	}

	var parsed struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(gen.Output())), &parsed); err != nil {
		return domain.Suggestion{}, fmt.Errorf("%w: parse suggestion: %v", domain.ErrAIService, err)
	}
	parsed.Title = strings.TrimSpace(parsed.Title)
	parsed.Description = strings.TrimSpace(parsed.Description)
	if parsed.Title == "" || parsed.Description == "" {
		return domain.Suggestion{}, fmt.Errorf("%w: suggestion missing title or description", domain.ErrAIService)
	}

	priority := strings.ToLower(strings.TrimSpace(parsed.Priority))
	switch priority {
	case "high", "medium", "low":
	default:
		priority = priorityFor(p)
	}

	return domain.Suggestion{
		Title:       parsed.Title,
		Description: parsed.Description,
		Priority:    priority,
		Source:      domain.SuggestionSourceAI,
		Pattern:     p,
	}, nil
}

// templateSuggestion renders the deterministic suggestion for a pattern.
func templateSuggestion(p domain.Pattern) domain.Suggestion {
	tpl, ok := suggestionTemplates[p.Type]
	if !ok {
		tpl = genericSuggestionTemplate
	}

	r := strings.NewReplacer(
		"{strategy}", string(p.Strategy),
		"{rate}", strconv.Itoa(ratePercent(p.Rate)),
		"{count}", strconv.Itoa(p.SampleSize),
	)
	return domain.Suggestion{
		Title:       r.Replace(tpl.title),
		Description: r.Replace(tpl.description),
		Priority:    priorityFor(p),
		Source:      domain.SuggestionSourceFallback,
		Pattern:     p,
	}
}

func priorityFor(p domain.Pattern) string {
	if p.Severity == domain.SeverityHigh {
		return "high"
	}
	return "medium"
}

func ratePercent(rate float64) int {
	return int(math.Round(rate * 100))
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
