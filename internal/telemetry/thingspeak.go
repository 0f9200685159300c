package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/store"
)

// ThingSpeakPoller mirrors the newest entry of a ThingSpeak channel into iot_data.
type ThingSpeakPoller struct {
	baseURL   string
	channelID string
	interval  time.Duration
	store     store.Store
	client    *http.Client
	log       *logger.Logger
}

func NewThingSpeakPoller(baseURL, channelID string, interval time.Duration, s store.Store, log *logger.Logger) *ThingSpeakPoller {
	return &ThingSpeakPoller{
		baseURL:   baseURL,
		channelID: channelID,
		interval:  interval,
		store:     s,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.WithComponent("thingspeak").WithField("channel", channelID),
	}
}

type thingSpeakFeed struct {
	CreatedAt string  `json:"created_at"`
	EntryID   int64   `json:"entry_id"`
	Field1    *string `json:"field1"`
	Field2    *string `json:"field2"`
	Field3    *string `json:"field3"`
	Field4    *string `json:"field4"`
}

type thingSpeakResponse struct {
	Feeds []thingSpeakFeed `json:"feeds"`
}

// Run polls immediately and then every interval until ctx is done.
func (p *ThingSpeakPoller) Run(ctx context.Context) {
	p.log.Info().Dur("interval", p.interval).Msg("ThingSpeak poller started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Error().Err(err).Msg("ThingSpeak poll failed")
		}
		select {
		case <-ctx.Done():
			p.log.Info().Msg("ThingSpeak poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches the channel and stores its newest entry unless already
// present. It reports whether a record was written.
func (p *ThingSpeakPoller) PollOnce(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/channels/%s/feeds.json?results=2", p.baseURL, p.channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create thingspeak request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("thingspeak request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("thingspeak returned status %d: %s", resp.StatusCode, string(body))
	}

	var data thingSpeakResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return false, fmt.Errorf("failed to decode thingspeak response: %w", err)
	}
	if len(data.Feeds) == 0 {
		p.log.Debug().Msg("No data to update")
		return false, nil
	}

	latest := data.Feeds[len(data.Feeds)-1]
	rec, err := feedToRecord(latest)
	if err != nil {
		return false, err
	}

	inserted, err := p.store.InsertTelemetry(ctx, rec)
	if err != nil {
		return false, err
	}
	if !inserted {
		p.log.Debug().Int64("entry_id", latest.EntryID).Msg("Entry already exists, skipping")
		return false, nil
	}
	p.log.Info().Int64("entry_id", latest.EntryID).Msg("Stored ThingSpeak entry")
	return true, nil
}

func feedToRecord(feed thingSpeakFeed) (*store.TelemetryRecord, error) {
	ts, err := time.Parse("2006-01-02T15:04:05Z", feed.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q in entry %d: %w", feed.CreatedAt, feed.EntryID, err)
	}

	fields := map[string]interface{}{}
	set := func(name string, raw *string, asInt bool) error {
		if raw == nil {
			return nil
		}
		v, err := strconv.ParseFloat(*raw, 64)
		if err != nil {
			return fmt.Errorf("bad %s %q in entry %d: %w", name, *raw, feed.EntryID, err)
		}
		if asInt {
			v = float64(int64(v))
		}
		fields[name] = v
		return nil
	}
	if err := set("temperature", feed.Field1, false); err != nil {
		return nil, err
	}
	if err := set("humidity", feed.Field2, false); err != nil {
		return nil, err
	}
	if err := set("light_intensity", feed.Field3, false); err != nil {
		return nil, err
	}
	if err := set("soil_moisture", feed.Field4, true); err != nil {
		return nil, err
	}

	return &store.TelemetryRecord{
		ID:        strconv.FormatInt(feed.EntryID, 10),
		Timestamp: ts,
		Fields:    fields,
	}, nil
}
