package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/feedbackd/internal/domain"
	"github.com/Harshitk-cp/feedbackd/internal/service"
	"github.com/go-chi/chi/v5"
)

type FeedbackHandler struct {
	buffer    *service.FeedbackService
	shortTerm *service.ShortTermService
}

func NewFeedbackHandler(buffer *service.FeedbackService, shortTerm *service.ShortTermService) *FeedbackHandler {
	return &FeedbackHandler{buffer: buffer, shortTerm: shortTerm}
}

// Submit buffers a feedback event.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var ev domain.FeedbackEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.buffer.Submit(r.Context(), &ev); err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrFeedbackServiceClosed):
			writeError(w, http.StatusServiceUnavailable, "shutting down")
		default:
			writeError(w, http.StatusInternalServerError, "failed to submit feedback")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"buffered": h.buffer.Buffered(),
	})
}

// Flush forces the buffer out.
func (h *FeedbackHandler) Flush(w http.ResponseWriter, r *http.Request) {
	n := h.buffer.Flush(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"flushed": n})
}

// Remediate returns an alternative for a disliked piece of content.
func (h *FeedbackHandler) Remediate(w http.ResponseWriter, r *http.Request) {
	var ev domain.FeedbackEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, h.shortTerm.HandleFeedback(r.Context(), &ev))
}

type logActionRequest struct {
	Action string `json:"action"`
}

// LogAction records the user's reaction to the last alternative.
func (h *FeedbackHandler) LogAction(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "contentID")

	var req logActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.shortTerm.LogUserAction(r.Context(), contentID, domain.UserAction(req.Action)); err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusServiceUnavailable, "failed to record action")
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
