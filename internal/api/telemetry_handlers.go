package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"bloom.ai/plant-dashboard/internal/telemetry"
)

const (
	defaultExportLimit = 1000
	maxExportLimit     = 10000
)

func (h *APIHandler) LatestTelemetryHandler(w http.ResponseWriter, r *http.Request) {
	samples, err := h.Feed.Latest(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Error loading telemetry")
		http.Error(w, "Failed to load telemetry", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (h *APIHandler) TelemetryStreamHandler(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, func(ctx context.Context, send func(v interface{})) func() {
		return h.Feed.Subscribe(ctx, func(samples []telemetry.Sample) { send(samples) })
	})
}

func (h *APIHandler) ExportTelemetryHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultExportLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxExportLimit)
	}

	samples, err := h.Feed.History(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Error exporting telemetry")
		http.Error(w, "Failed to export telemetry", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="telemetry.csv"`)
	if err := telemetry.WriteCSV(w, samples); err != nil {
		h.log.Error().Err(err).Msg("Error writing telemetry CSV")
	}
}

// IngestTelemetryHandler stores a JSON reading posted by an authenticated device.
func (h *APIHandler) IngestTelemetryHandler(w http.ResponseWriter, r *http.Request) {
	var fields map[string]interface{}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(fields) == 0 {
		http.Error(w, "Reading cannot be empty", http.StatusBadRequest)
		return
	}

	id, _ := fields["id"].(string)
	delete(fields, "id")
	if id == "" {
		id = uuid.NewString()
	}
	fields["device_id"] = deviceIDFromContext(r.Context())

	rec := telemetry.RecordFromFields(id, fields)
	inserted, err := h.Store.InsertTelemetry(r.Context(), rec)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Error storing reading")
		http.Error(w, "Failed to store reading", http.StatusInternalServerError)
		return
	}
	if !inserted {
		http.Error(w, "Reading already exists", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusCreated, telemetry.Normalize(*rec))
}
