package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bloom.ai/plant-dashboard/internal/core"
	"bloom.ai/plant-dashboard/internal/sentiment"
)

func (h *APIHandler) PlantDescriptionHandler(w http.ResponseWriter, r *http.Request) {
	desc, err := h.Assistant.DescribeImage(r.Context(), r.URL.Query().Get("imageUrl"))
	if err != nil {
		if errors.Is(err, core.ErrNoImage) {
			http.Error(w, "No plant image available", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Msg("Error describing plant")
		http.Error(w, "Failed to describe plant", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (h *APIHandler) LatestPlantImageHandler(w http.ResponseWriter, r *http.Request) {
	img, err := h.Store.LatestPlantImage(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Error loading plant image")
		http.Error(w, "Failed to load plant image", http.StatusInternalServerError)
		return
	}
	if img == nil {
		http.Error(w, "No plant image available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

type ExpressionRequest struct {
	ImageURL string `json:"imageUrl"`
}

func (h *APIHandler) ExpressionHandler(w http.ResponseWriter, r *http.Request) {
	if h.Expressions == nil {
		http.Error(w, "Expression analysis is not enabled", http.StatusServiceUnavailable)
		return
	}

	var req ExpressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ImageURL == "" {
		http.Error(w, "imageUrl is required", http.StatusBadRequest)
		return
	}

	result, err := h.Expressions.Analyze(r.Context(), req.ImageURL)
	if err != nil {
		h.log.Error().Err(err).Str("image_url", req.ImageURL).Msg("Error in expression analysis")
		http.Error(w, "Expression analysis failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) SentimentHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sentiment.Classify(chi.URLParam(r, "label")))
}

func (h *APIHandler) ListSentimentsHandler(w http.ResponseWriter, r *http.Request) {
	all := make(map[string]sentiment.Descriptor)
	for _, label := range sentiment.Labels() {
		all[label] = sentiment.Classify(label)
	}
	writeJSON(w, http.StatusOK, all)
}
