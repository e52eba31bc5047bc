package handlers

import (
	"errors"
	"net/http"

	"github.com/Harshitk-cp/feedbackd/internal/service"
	"github.com/Harshitk-cp/feedbackd/internal/store"
)

type AggregationHandler struct {
	svc *service.AggregationService
}

func NewAggregationHandler(svc *service.AggregationService) *AggregationHandler {
	return &AggregationHandler{svc: svc}
}

// Run executes the aggregation pipeline now.
func (h *AggregationHandler) Run(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Aggregate(r.Context()))
}

// Latest returns the last persisted aggregation result.
func (h *AggregationHandler) Latest(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Latest(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no aggregation result yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load aggregation result")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
