// Package telemetry ingests plant sensor readings and serves them as a normalized feed.
package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"bloom.ai/plant-dashboard/internal/store"
)

// Sample is the normalized shape every telemetry record is reduced to.
type Sample struct {
	Timestamp      time.Time `json:"timestamp"`
	SoilMoisture   float64   `json:"soilMoisture"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`
	LightIntensity float64   `json:"lightIntensity"`
	WaterLevel     float64   `json:"waterLevel"`
	WateringEvents float64   `json:"wateringEvents"`
}

// Normalize maps a stored record to a Sample. Each field accepts its
// camelCase or snake_case spelling, camelCase first; absent or
// non-numeric values become 0.
func Normalize(rec store.TelemetryRecord) Sample {
	f := rec.Fields
	return Sample{
		Timestamp:      rec.Timestamp,
		SoilMoisture:   number(f, "soilMoisture", "soil_moisture"),
		Temperature:    number(f, "temperature"),
		Humidity:       number(f, "humidity"),
		LightIntensity: number(f, "lightIntensity", "light_intensity"),
		WaterLevel:     number(f, "waterLevel", "water_level"),
		WateringEvents: number(f, "wateringEvents", "watering_events"),
	}
}

func number(fields map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		if n, ok := toFloat(v); ok {
			return n
		}
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts time values, RFC 3339 style strings and unix seconds.
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch ts := v.(type) {
	case time.Time:
		return ts, true
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}
	if secs, ok := toFloat(v); ok && secs > 0 {
		return time.Unix(int64(secs), 0).UTC(), true
	}
	return time.Time{}, false
}

// RecordFromFields builds a record from a raw document. A "timestamp" key is
// lifted out of the fields; when missing or unreadable the ingestion time is used.
func RecordFromFields(id string, fields map[string]interface{}) *store.TelemetryRecord {
	rec := &store.TelemetryRecord{ID: id, Fields: make(map[string]interface{}, len(fields))}
	for k, v := range fields {
		if k == "timestamp" {
			if ts, ok := parseTimestamp(v); ok {
				rec.Timestamp = ts
			}
			continue
		}
		rec.Fields[k] = v
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return rec
}
