package domain

import (
	"maps"
	"time"
)

type ContentType string

const (
	ContentTypeTranslation    ContentType = "translation"
	ContentTypeWriting        ContentType = "writing"
	ContentTypeRecommendation ContentType = "recommendation"
	ContentTypeConversation   ContentType = "conversation"
)

func ValidContentType(t string) bool {
	switch ContentType(t) {
	case ContentTypeTranslation, ContentTypeWriting, ContentTypeRecommendation, ContentTypeConversation:
		return true
	}
	return false
}

type FeedbackType string

const (
	FeedbackTypeThumbUp   FeedbackType = "thumbUp"
	FeedbackTypeThumbDown FeedbackType = "thumbDown"
	FeedbackTypeCancel    FeedbackType = "cancel"
)

func ValidFeedbackType(t string) bool {
	switch FeedbackType(t) {
	case FeedbackTypeThumbUp, FeedbackTypeThumbDown, FeedbackTypeCancel:
		return true
	}
	return false
}

type Rating string

const (
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

// UserAction is the user's reaction to an alternative rendering.
type UserAction string

const (
	UserActionAccept UserAction = "accept"
	UserActionReject UserAction = "reject"
	UserActionRetry  UserAction = "retry"
)

func ValidUserAction(a string) bool {
	switch UserAction(a) {
	case UserActionAccept, UserActionReject, UserActionRetry:
		return true
	}
	return false
}

// FeedbackEvent is a single like/dislike signal emitted by a client.
// Rating is only set for dislike-triggered events.
type FeedbackEvent struct {
	ContentID     string         `json:"content_id"`
	ContentType   ContentType    `json:"content_type,omitempty"`
	FeedbackType  FeedbackType   `json:"feedback_type"`
	Rating        Rating         `json:"rating,omitempty"`
	Comment       string         `json:"comment,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Strategy      StrategyID     `json:"strategy,omitempty"`
	UserAction    UserAction     `json:"user_action,omitempty"`
	AlternativeID string         `json:"alternative_id,omitempty"`
	ActionTime    *time.Time     `json:"action_time,omitempty"`
	FeedbackTime  *time.Time     `json:"feedback_time,omitempty"`
	IngestedAt    *time.Time     `json:"ingested_at,omitempty"`
}

// Clone returns a copy that shares no map or pointer fields with e.
// Nested context values are not copied.
func (e *FeedbackEvent) Clone() FeedbackEvent {
	c := *e
	c.Context = maps.Clone(e.Context)
	c.ActionTime = cloneTime(e.ActionTime)
	c.FeedbackTime = cloneTime(e.FeedbackTime)
	c.IngestedAt = cloneTime(e.IngestedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ContextString returns a string value from the event context, or "".
func (e *FeedbackEvent) ContextString(key string) string {
	if e.Context == nil {
		return ""
	}
	s, _ := e.Context[key].(string)
	return s
}

// EffectiveContentType resolves the content type used for templates.
// Some clients send the content type in feedback_type; that value is
// honoured when content_type is absent.
func (e *FeedbackEvent) EffectiveContentType() ContentType {
	if e.ContentType != "" {
		return e.ContentType
	}
	if ValidContentType(string(e.FeedbackType)) {
		return ContentType(e.FeedbackType)
	}
	if ct := e.ContextString("contentType"); ct != "" {
		return ContentType(ct)
	}
	return ""
}
