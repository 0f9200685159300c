package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bloom.ai/plant-dashboard/internal/logger"
)

const channelBody = `{
  "channel": {"id": 2412345, "name": "Bloom"},
  "feeds": [
    {"created_at": "2024-05-01T10:00:00Z", "entry_id": 41, "field1": "22.1", "field2": "50.0", "field3": "310", "field4": "700"},
    {"created_at": "2024-05-01T10:05:00Z", "entry_id": 42, "field1": "23.4", "field2": "48.5", "field3": "320", "field4": "688.9"}
  ]
}`

func TestThingSpeakPoller_StoresNewestEntryOnce(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(channelBody))
	}))
	defer srv.Close()

	s := newTestStore(t)
	p := NewThingSpeakPoller(srv.URL, "2412345", time.Minute, s, logger.Nop())
	ctx := context.Background()

	inserted, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if !inserted {
		t.Fatal("expected first poll to insert")
	}
	if gotPath != "/channels/2412345/feeds.json" || gotQuery != "results=2" {
		t.Errorf("request = %s?%s", gotPath, gotQuery)
	}

	again, err := p.PollOnce(ctx)
	if err != nil {
		t.Fatalf("second PollOnce: %v", err)
	}
	if again {
		t.Error("duplicate entry should be skipped")
	}

	recs, err := s.LatestTelemetry(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ID != "42" {
		t.Errorf("ID = %q, want 42", rec.ID)
	}
	if !rec.Timestamp.Equal(time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", rec.Timestamp)
	}
	sample := Normalize(rec)
	if sample.Temperature != 23.4 || sample.Humidity != 48.5 || sample.LightIntensity != 320 || sample.SoilMoisture != 688 {
		t.Errorf("unexpected sample %+v", sample)
	}
}

func TestThingSpeakPoller_NoFeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"channel":{},"feeds":[]}`))
	}))
	defer srv.Close()

	p := NewThingSpeakPoller(srv.URL, "1", time.Minute, newTestStore(t), logger.Nop())
	inserted, err := p.PollOnce(context.Background())
	if err != nil || inserted {
		t.Errorf("PollOnce() = %v, %v; want false, nil", inserted, err)
	}
}

func TestThingSpeakPoller_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewThingSpeakPoller(srv.URL, "1", time.Minute, newTestStore(t), logger.Nop())
	if _, err := p.PollOnce(context.Background()); err == nil {
		t.Error("expected error for 404")
	}
}

func TestFeedToRecord_BadField(t *testing.T) {
	bad := "n/a"
	_, err := feedToRecord(thingSpeakFeed{CreatedAt: "2024-05-01T10:05:00Z", EntryID: 1, Field1: &bad})
	if err == nil {
		t.Error("expected error for non-numeric field")
	}
}
