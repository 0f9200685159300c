package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "telemetry_test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s store.Store, n int) time.Time {
	t.Helper()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		rec := &store.TelemetryRecord{
			ID:        fmt.Sprintf("entry-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Fields:    map[string]interface{}{"soil_moisture": float64(i)},
		}
		if _, err := s.InsertTelemetry(context.Background(), rec); err != nil {
			t.Fatalf("InsertTelemetry: %v", err)
		}
	}
	return base
}

func TestFeed_LatestIsChronologicalWindow(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, 30)
	feed := NewFeed(s, logger.Nop())

	samples, err := feed.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(samples) != DefaultWindow {
		t.Fatalf("got %d samples, want %d", len(samples), DefaultWindow)
	}
	if samples[0].SoilMoisture != 6 || samples[len(samples)-1].SoilMoisture != 29 {
		t.Errorf("window = [%v..%v], want [6..29]", samples[0].SoilMoisture, samples[len(samples)-1].SoilMoisture)
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp.Before(samples[i-1].Timestamp) {
			t.Fatalf("samples not ascending at %d", i)
		}
	}
}

func TestFeed_SubscribeRedeliversOnInsert(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, 2)
	feed := NewFeed(s, logger.Nop())

	updates := make(chan []Sample, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := feed.Subscribe(ctx, func(samples []Sample) { updates <- samples })
	defer stop()

	select {
	case got := <-updates:
		if len(got) != 2 {
			t.Fatalf("initial delivery has %d samples, want 2", len(got))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial delivery")
	}

	rec := &store.TelemetryRecord{ID: "late", Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Fields: map[string]interface{}{"humidity": 70.0}}
	if _, err := s.InsertTelemetry(ctx, rec); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-updates:
		if len(got) != 3 || got[2].Humidity != 70 {
			t.Fatalf("unexpected update %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery after insert")
	}
}

func TestFeed_EmptyStore(t *testing.T) {
	feed := NewFeed(newTestStore(t), logger.Nop())
	samples, err := feed.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %d", len(samples))
	}
}

func TestWriteCSV(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, 3)
	feed := NewFeed(s, logger.Nop())

	samples, err := feed.History(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, samples); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), buf.String())
	}
	if lines[0] != "timestamp,soil_moisture,temperature,humidity,light_intensity,water_level,watering_events" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2024-05-01T00:00:00Z,0,0,0,0,0,0" {
		t.Errorf("first row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[3], "2024-05-01T00:02:00Z,2,") {
		t.Errorf("last row = %q", lines[3])
	}
}
