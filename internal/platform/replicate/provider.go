package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/castellan/forge-api/internal/generation"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Poll budget: a prediction that is not terminal after maxPollAttempts
// checks spaced pollInterval apart is treated as a retryable timeout.
const (
	pollInterval    = 2 * time.Second
	maxPollAttempts = 120
)

// Config holds the Replicate connection settings. T2IModel and I2IModel are
// model version ids passed in the prediction's version field.
type Config struct {
	APIToken string
	T2IModel string
	I2IModel string
	BaseURL  string
	Timeout  time.Duration
}

// Provider calls the Replicate predictions API.
type Provider struct {
	cfg    Config
	client *http.Client

	// sleep is swappable in tests so polling runs without wall-clock waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replicate provider. client may be nil for a default with the
// configured timeout.
func New(cfg Config, client *http.Client) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{cfg: cfg, client: client, sleep: sleepContext}
}

// Name implements generation.Provider.
func (p *Provider) Name() string { return "replicate" }

// TextToImage implements generation.Provider.
func (p *Provider) TextToImage(ctx context.Context, req generation.Request) (*generation.ProviderResult, error) {
	if p.cfg.APIToken == "" || p.cfg.T2IModel == "" {
		return nil, &generation.ProviderError{Provider: "replicate", Message: "token or model not set", Retryable: false}
	}
	input := map[string]any{
		"prompt":              req.Prompt,
		"aspect_ratio":        req.AspectRatio,
		"num_inference_steps": req.Steps,
		"seed":                req.Seed,
	}
	return p.generate(ctx, p.cfg.T2IModel, input, req)
}

// ImageToImage implements generation.Provider.
func (p *Provider) ImageToImage(ctx context.Context, req generation.Request) (*generation.ProviderResult, error) {
	if p.cfg.APIToken == "" || p.cfg.I2IModel == "" {
		return nil, &generation.ProviderError{Provider: "replicate", Message: "token or model not set", Retryable: false}
	}
	input := map[string]any{
		"image":               req.ImageURL,
		"prompt":              req.Prompt,
		"strength":            req.Strength,
		"aspect_ratio":        req.AspectRatio,
		"num_inference_steps": req.Steps,
		"seed":                req.Seed,
	}
	return p.generate(ctx, p.cfg.I2IModel, input, req)
}

// prediction is the subset of the predictions resource this adapter reads.
type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func (p *Provider) generate(ctx context.Context, model string, input map[string]any, req generation.Request) (*generation.ProviderResult, error) {
	created, err := p.create(ctx, model, input)
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, &generation.ProviderError{Provider: "replicate", Message: "create returned no prediction id", Retryable: false}
	}

	final, err := p.poll(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	if final.Status != "succeeded" {
		return nil, &generation.ProviderError{
			Provider:  "replicate",
			Message:   fmt.Sprintf("prediction %s: %v", final.Status, final.Error),
			Retryable: false,
		}
	}

	urls := outputURLs(final.Output)
	if len(urls) == 0 {
		return nil, &generation.ProviderError{Provider: "replicate", Message: "no images in prediction output", Retryable: false}
	}

	meta := map[string]any{"model": model}
	if req.AspectRatio != "" {
		meta["aspect_ratio"] = req.AspectRatio
	}
	if req.Seed != nil {
		meta["seed"] = *req.Seed
	}
	return &generation.ProviderResult{URLs: urls, Meta: meta}, nil
}

func (p *Provider) create(ctx context.Context, model string, input map[string]any) (*prediction, error) {
	payload, err := json.Marshal(map[string]any{"version": model, "input": input})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/predictions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return p.do(httpReq)
}

// pollState names a phase of the prediction watch loop. A prediction moves
// submitted -> polling and ends in exactly one of succeeded, failed, or
// timedOut; there is no other way out of the loop besides a transport error.
type pollState int

const (
	stateSubmitted pollState = iota
	statePolling
	stateSucceeded
	stateFailed
	stateTimedOut
)

// poll drives the prediction to a terminal state. Each polling step spends
// one of maxPollAttempts checks and sleeps pollInterval when the prediction
// is still in flight; exhausting the budget lands in stateTimedOut, which is
// retryable so the failover layer can try the other provider.
func (p *Provider) poll(ctx context.Context, id string) (*prediction, error) {
	state := stateSubmitted
	attempts := 0
	var last *prediction

	for {
		switch state {
		case stateSubmitted:
			state = statePolling

		case statePolling:
			if attempts >= maxPollAttempts {
				state = stateTimedOut
				continue
			}
			attempts++

			pred, err := p.check(ctx, id)
			if err != nil {
				return nil, err
			}
			last = pred

			switch pred.Status {
			case "succeeded":
				state = stateSucceeded
			case "failed", "canceled":
				state = stateFailed
			default:
				if err := p.sleep(ctx, pollInterval); err != nil {
					return nil, err
				}
			}

		case stateSucceeded, stateFailed:
			// The caller inspects last.Status and turns a non-succeeded
			// prediction into a permanent provider error.
			return last, nil

		case stateTimedOut:
			return nil, &generation.ProviderError{Provider: "replicate", Message: "polling timeout", Retryable: true}
		}
	}
}

// check fetches the prediction resource once.
func (p *Provider) check(ctx context.Context, id string) (*prediction, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return p.do(httpReq)
}

// do executes the request with auth and classifies HTTP failures: 5xx is
// retryable, 4xx is permanent.
func (p *Provider) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Token "+p.cfg.APIToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, &generation.ProviderError{
			Provider:   "replicate",
			Message:    fmt.Sprintf("server error %d", resp.StatusCode),
			Retryable:  true,
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &generation.ProviderError{
			Provider:   "replicate",
			Message:    fmt.Sprintf("request rejected %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			Retryable:  false,
			StatusCode: resp.StatusCode,
		}
	}

	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, &generation.ProviderError{Provider: "replicate", Message: "malformed response body", Retryable: false}
	}
	return &pred, nil
}

// outputURLs normalizes the prediction output, which is either a single URL
// string or a list of them.
func outputURLs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		out := list[:0]
		for _, u := range list {
			if strings.TrimSpace(u) != "" {
				out = append(out, u)
			}
		}
		return out
	}
	var s string
	if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
		return []string{s}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
