package align

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultRevAIBaseURL = "https://api.rev.ai/alignment/v1"

	transcriptMediaType = "application/vnd.rev.transcript.v1.0+json"
)

// Job status values reported by the alignment service.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Aligner is the forced-alignment service contract.
type Aligner interface {
	Submit(ctx context.Context, audioURL, transcriptURL string) (string, error)
	Job(ctx context.Context, jobID string) (*Job, error)
	Transcript(ctx context.Context, jobID string) (*Transcript, error)
}

// Job is the status document for one alignment job.
type Job struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Failure       string `json:"failure,omitempty"`
	FailureDetail string `json:"failure_detail,omitempty"`
}

// Transcript is the aligned result.
type Transcript struct {
	Monologues []Monologue `json:"monologues"`
}

type Monologue struct {
	Speaker  int       `json:"speaker"`
	Elements []Element `json:"elements"`
}

// Element is one aligned token. Timestamps are seconds and may be absent.
type Element struct {
	Type       string           `json:"type"`
	Value      string           `json:"value"`
	Ts         *decimal.Decimal `json:"ts,omitempty"`
	EndTs      *decimal.Decimal `json:"end_ts,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
}

// Elements returns every element across monologues, in order.
func (t *Transcript) Elements() []Element {
	var out []Element
	for _, m := range t.Monologues {
		out = append(out, m.Elements...)
	}
	return out
}

// RevAIClient talks to the Rev AI forced alignment API.
// Implements the Aligner interface.
type RevAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewRevAIClient creates a client. ratePerMin bounds job submissions;
// status polls are not limited.
func NewRevAIClient(apiKey, baseURL string, ratePerMin int, timeout time.Duration) *RevAIClient {
	if baseURL == "" {
		baseURL = DefaultRevAIBaseURL
	}
	if ratePerMin < 1 {
		ratePerMin = 1
	}
	return &RevAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), 1),
	}
}

type submitRequest struct {
	SourceConfig           sourceURL `json:"source_config"`
	SourceTranscriptConfig sourceURL `json:"source_transcript_config"`
}

type sourceURL struct {
	URL string `json:"url"`
}

// Submit starts an alignment job and returns its ID.
func (c *RevAIClient) Submit(ctx context.Context, audioURL, transcriptURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(submitRequest{
		SourceConfig:           sourceURL{URL: audioURL},
		SourceTranscriptConfig: sourceURL{URL: transcriptURL},
	})
	if err != nil {
		return "", err
	}

	var job Job
	if err := c.do(ctx, http.MethodPost, "/jobs", bytes.NewReader(payload), "application/json", &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("revai submit: response has no job id")
	}
	return job.ID, nil
}

// Job fetches the current status of an alignment job.
func (c *RevAIClient) Job(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil, "application/json", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Transcript fetches the aligned transcript of a completed job.
func (c *RevAIClient) Transcript(ctx context.Context, jobID string) (*Transcript, error) {
	var t Transcript
	if err := c.do(ctx, http.MethodGet, "/jobs/"+jobID+"/transcript", nil, transcriptMediaType, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *RevAIClient) do(ctx context.Context, method, path string, body io.Reader, accept string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("revai request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("revai API error (status %d): %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
