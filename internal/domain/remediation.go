package domain

import "time"

type StrategyID string

const (
	StrategySimplify  StrategyID = "simplify"
	StrategyElaborate StrategyID = "elaborate"
	StrategyReframe   StrategyID = "reframe"
)

func ValidStrategyID(s string) bool {
	switch StrategyID(s) {
	case StrategySimplify, StrategyElaborate, StrategyReframe:
		return true
	}
	return false
}

// DissatisfactionReason is the optional reason a user gives for a dislike.
type DissatisfactionReason string

const (
	ReasonClarity   DissatisfactionReason = "clarity"
	ReasonDepth     DissatisfactionReason = "depth"
	ReasonRelevance DissatisfactionReason = "relevance"
	ReasonStyle     DissatisfactionReason = "style"
	ReasonDefault   DissatisfactionReason = "default"
)

// RemediationRecord is one entry of the short-term remediation audit trail.
type RemediationRecord struct {
	ContentID     string     `json:"content_id"`
	Strategy      StrategyID `json:"strategy"`
	AlternativeID string     `json:"alternative_id,omitempty"`
	LatencyMs     int64      `json:"latency_ms"`
	IsFallback    bool       `json:"is_fallback"`
	Timestamp     time.Time  `json:"timestamp"`
	Error         string     `json:"error,omitempty"`
}

// RemediationResult is what a dislike handler returns to the client.
type RemediationResult struct {
	ShouldRetry       bool       `json:"should_retry"`
	AlternativeResult string     `json:"alternative_result,omitempty"`
	AlternativeID     string     `json:"alternative_id,omitempty"`
	Strategy          StrategyID `json:"strategy,omitempty"`
	IsFallback        bool       `json:"is_fallback"`
}

// FailureKind classifies why generation fell back to a template.
type FailureKind string

const (
	FailureTimeout   FailureKind = "TIMEOUT"
	FailureAIFailure FailureKind = "AI_FAILURE"
)
