package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bloom.ai/plant-dashboard/internal/logger"
	"bloom.ai/plant-dashboard/internal/sentiment"
)

// ErrJobFailed is returned when Hume reports the inference job as failed.
var ErrJobFailed = errors.New("expression job failed")

// ExpressionResult is the outcome of a face expression analysis.
type ExpressionResult struct {
	Predictions     json.RawMessage      `json:"predictions"`
	DominantEmotion string               `json:"dominantEmotion,omitempty"`
	Score           float64              `json:"score,omitempty"`
	Sentiment       string               `json:"sentiment"`
	Descriptor      sentiment.Descriptor `json:"descriptor"`
}

// ExpressionService runs Hume batch face-expression jobs.
type ExpressionService struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	client       *http.Client
	log          *logger.Logger
}

func NewExpressionService(baseURL, apiKey string, pollInterval time.Duration, log *logger.Logger) *ExpressionService {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &ExpressionService{
		baseURL:      baseURL,
		apiKey:       apiKey,
		pollInterval: pollInterval,
		client:       &http.Client{Timeout: 30 * time.Second},
		log:          log.WithComponent("hume"),
	}
}

type humeJobRequest struct {
	Models map[string]struct{} `json:"models"`
	URLs   []string            `json:"urls"`
}

type humeJobResponse struct {
	JobID string `json:"job_id"`
}

type humeJobDetails struct {
	State struct {
		Status  string `json:"status"`
		Message string `json:"message,omitempty"`
	} `json:"state"`
}

type humeSourcePredictions struct {
	Results struct {
		Predictions []struct {
			Models struct {
				Face struct {
					GroupedPredictions []struct {
						Predictions []struct {
							Emotions []struct {
								Name  string  `json:"name"`
								Score float64 `json:"score"`
							} `json:"emotions"`
						} `json:"predictions"`
					} `json:"grouped_predictions"`
				} `json:"face"`
			} `json:"models"`
		} `json:"predictions"`
	} `json:"results"`
}

// Analyze starts a face-model job for imageURL, waits for it and returns its
// predictions together with the strongest emotion.
func (s *ExpressionService) Analyze(ctx context.Context, imageURL string) (*ExpressionResult, error) {
	jobID, err := s.startJob(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("job_id", jobID).Msg("Running Hume analysis")

	if err := s.awaitCompletion(ctx, jobID); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := s.do(ctx, http.MethodGet, "/v0/batch/jobs/"+jobID+"/predictions", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch predictions: %w", err)
	}

	result := &ExpressionResult{Predictions: raw}
	name, score, err := dominantEmotion(raw)
	if err != nil {
		return nil, err
	}
	result.DominantEmotion, result.Score = name, score
	result.Sentiment, result.Descriptor = sentiment.FromEmotion(name)
	return result, nil
}

func (s *ExpressionService) startJob(ctx context.Context, imageURL string) (string, error) {
	body := humeJobRequest{
		Models: map[string]struct{}{"face": {}},
		URLs:   []string{imageURL},
	}
	var job humeJobResponse
	if err := s.do(ctx, http.MethodPost, "/v0/batch/jobs", body, &job); err != nil {
		return "", fmt.Errorf("failed to start expression job: %w", err)
	}
	if job.JobID == "" {
		return "", fmt.Errorf("hume returned no job id")
	}
	return job.JobID, nil
}

func (s *ExpressionService) awaitCompletion(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		var details humeJobDetails
		if err := s.do(ctx, http.MethodGet, "/v0/batch/jobs/"+jobID, nil, &details); err != nil {
			return fmt.Errorf("failed to poll expression job: %w", err)
		}
		switch details.State.Status {
		case "COMPLETED":
			return nil
		case "FAILED":
			return fmt.Errorf("%w: %s", ErrJobFailed, details.State.Message)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *ExpressionService) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Hume-Api-Key", s.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("hume returned status %d: %s", resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// dominantEmotion averages each emotion's score over every detected face and
// returns the highest. No faces yields an empty name.
func dominantEmotion(raw json.RawMessage) (string, float64, error) {
	var sources []humeSourcePredictions
	if err := json.Unmarshal(raw, &sources); err != nil {
		return "", 0, fmt.Errorf("failed to decode predictions: %w", err)
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	var order []string
	for _, src := range sources {
		for _, file := range src.Results.Predictions {
			for _, group := range file.Models.Face.GroupedPredictions {
				for _, face := range group.Predictions {
					for _, e := range face.Emotions {
						if _, seen := counts[e.Name]; !seen {
							order = append(order, e.Name)
						}
						sums[e.Name] += e.Score
						counts[e.Name]++
					}
				}
			}
		}
	}

	best, bestScore := "", 0.0
	for _, name := range order {
		if avg := sums[name] / float64(counts[name]); best == "" || avg > bestScore {
			best, bestScore = name, avg
		}
	}
	return best, bestScore, nil
}
