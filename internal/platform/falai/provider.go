package falai

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

// Config holds the fal.ai connection settings. The endpoints are full model
// URLs (e.g. https://fal.run/fal-ai/flux/dev), which double as the model id
// reported in result metadata.
type Config struct {
	APIKey      string
	T2IEndpoint string
	I2IEndpoint string
	Timeout     time.Duration
}

// Provider calls fal.ai over plain HTTP.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a fal.ai provider. client may be nil for a default with the
// configured timeout.
func New(cfg Config, client *http.Client) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{cfg: cfg, client: client}
}

// Name implements generation.Provider.
func (p *Provider) Name() string { return "fal" }

// TextToImage implements generation.Provider.
func (p *Provider) TextToImage(ctx context.Context, req generation.Request) (*generation.ProviderResult, error) {
	if p.cfg.APIKey == "" {
		return nil, &generation.ProviderError{Provider: "fal", Message: "API key is not set", Retryable: false}
	}
	body := map[string]any{
		"prompt":       req.Prompt,
		"aspect_ratio": req.AspectRatio,
		"steps":        req.Steps,
		"seed":         req.Seed,
	}
	return p.generate(ctx, p.cfg.T2IEndpoint, body, req)
}

// ImageToImage implements generation.Provider.
func (p *Provider) ImageToImage(ctx context.Context, req generation.Request) (*generation.ProviderResult, error) {
	if p.cfg.APIKey == "" {
		return nil, &generation.ProviderError{Provider: "fal", Message: "API key is not set", Retryable: false}
	}
	body := map[string]any{
		"prompt":              req.Prompt,
		"image_urls":          []string{req.ImageURL},
		"strength":            req.Strength,
		"aspect_ratio":        req.AspectRatio,
		"num_inference_steps": req.Steps,
		"seed":                req.Seed,
	}
	return p.generate(ctx, p.cfg.I2IEndpoint, body, req)
}

func (p *Provider) generate(ctx context.Context, endpoint string, body map[string]any, req generation.Request) (*generation.ProviderResult, error) {
	data, err := p.postJSON(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	urls := extractImageURLs(data)
	if len(urls) == 0 {
		return nil, &generation.ProviderError{Provider: "fal", Message: "no images in response", Retryable: false}
	}
	meta := map[string]any{"model": endpoint}
	if req.AspectRatio != "" {
		meta["aspect_ratio"] = req.AspectRatio
	}
	if req.Seed != nil {
		meta["seed"] = *req.Seed
	}
	return &generation.ProviderResult{URLs: urls, Meta: meta}, nil
}

// postJSON sends the request and classifies HTTP failures: 5xx is retryable,
// 4xx is permanent. Transport errors pass through unwrapped so timeout
// detection still works upstream.
func (p *Provider) postJSON(ctx context.Context, endpoint string, body map[string]any) (map[string]json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Key "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
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
			Provider:   "fal",
			Message:    fmt.Sprintf("server error %d", resp.StatusCode),
			Retryable:  true,
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &generation.ProviderError{
			Provider:   "fal",
			Message:    fmt.Sprintf("request rejected %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
			Retryable:  false,
			StatusCode: resp.StatusCode,
		}
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &generation.ProviderError{Provider: "fal", Message: "malformed response body", Retryable: false}
	}
	return data, nil
}

// extractImageURLs pulls media URLs out of the response's known shapes:
// images as a list of strings or {url: ...} objects, a single image string,
// and output as a string or list of strings.
func extractImageURLs(data map[string]json.RawMessage) []string {
	var urls []string

	if raw, ok := data["images"]; ok {
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) == nil {
			for _, item := range items {
				var s string
				if json.Unmarshal(item, &s) == nil {
					urls = append(urls, s)
					continue
				}
				var obj struct {
					URL string `json:"url"`
				}
				if json.Unmarshal(item, &obj) == nil && obj.URL != "" {
					urls = append(urls, obj.URL)
				}
			}
		}
	}

	if raw, ok := data["image"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			urls = append(urls, s)
		}
	}

	if raw, ok := data["output"]; ok {
		var list []string
		var s string
		switch {
		case json.Unmarshal(raw, &list) == nil:
			urls = append(urls, list...)
		case json.Unmarshal(raw, &s) == nil:
			urls = append(urls, s)
		}
	}

	out := urls[:0]
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			out = append(out, u)
		}
	}
	return out
}
