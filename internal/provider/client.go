// Package provider is the HTTP client for the external image generation API.
// Submission and status checks are separate calls; nothing here blocks
// waiting for a job to finish.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pawtrait/backend/internal/config"
)

// ErrProvider marks a non-2xx answer from the generation provider.
var ErrProvider = errors.New("generation provider error")

type Client struct {
	apiKey          string
	baseURL         string
	safetyTolerance int
	httpClient      *http.Client
	log             *slog.Logger
}

// ReferenceImage is one weighted user photo biasing the output toward the
// specific pet.
type ReferenceImage struct {
	URL    string  `json:"url"`
	Weight float64 `json:"weight"`
}

// Request is a single-image submission. NumImages is pinned to 1; batching at
// the provider is not attempted.
type Request struct {
	Prompt          string           `json:"prompt"`
	NegativePrompt  string           `json:"negative_prompt"`
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	Steps           int              `json:"num_inference_steps"`
	Guidance        float64          `json:"guidance_scale"`
	NumImages       int              `json:"num_images"`
	Seed            int64            `json:"seed"`
	SafetyTolerance int              `json:"safety_tolerance"`
	OutputFormat    string           `json:"output_format"`
	Model           string           `json:"model"`
	CharacterLock   bool             `json:"character_lock"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
}

type resultEntry struct {
	Sample       string `json:"sample"`
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finish_reason"`
}

type jobResponse struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Result []resultEntry `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// JobState is the outcome of one non-blocking status check.
type JobState struct {
	ID        string
	Status    string
	ImageURLs []string
	Error     string
}

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &Client{
		apiKey:          cfg.ProviderAPIKey,
		baseURL:         strings.TrimRight(cfg.ProviderBaseURL, "/"),
		safetyTolerance: cfg.ProviderSafetyTolerance,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// Submit creates one generation job and returns the provider-assigned job id.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	req.NumImages = 1
	if req.SafetyTolerance == 0 {
		req.SafetyTolerance = c.safetyTolerance
	}

	fullURL, err := c.resolve("/v1/generate", nil)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("post generate: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("provider submit failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return "", fmt.Errorf("%w: status=%d body=%s", ErrProvider, resp.StatusCode, truncateBody(rawBody))
	}

	var parsed jobResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("decode submit response: %w (body=%s)", err, truncateBody(rawBody))
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrProvider, parsed.Error)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("%w: empty job id in response", ErrProvider)
	}

	if c.log != nil {
		c.log.Info("provider job created", "job_id", parsed.ID, "model", req.Model)
	}
	return parsed.ID, nil
}

// Status performs a single status check for a job. It never waits.
func (c *Client) Status(ctx context.Context, jobID string) (*JobState, error) {
	fullURL, err := c.resolve("/v1/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("provider status check failed", "job_id", jobID, "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("%w: status=%d body=%s", ErrProvider, resp.StatusCode, truncateBody(rawBody))
	}

	var parsed jobResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode status response: %w (body=%s)", err, truncateBody(rawBody))
	}

	state := &JobState{
		ID:     parsed.ID,
		Status: normalizeStatus(parsed.Status),
		Error:  parsed.Error,
	}
	for _, entry := range parsed.Result {
		if entry.Sample != "" {
			state.ImageURLs = append(state.ImageURLs, entry.Sample)
		}
	}
	return state, nil
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	endpoint, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	return base.ResolveReference(endpoint).String(), nil
}

func normalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "queueing", "waiting", "pending":
		return StatusPending
	case "processing", "generating", "running":
		return StatusProcessing
	case "completed", "succeeded", "success", "ready":
		return StatusCompleted
	case "failed", "fail", "error":
		return StatusFailed
	default:
		return raw
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
