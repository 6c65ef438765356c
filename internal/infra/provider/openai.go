package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/core/domain"
)

// OpenAIAdapter speaks the OpenAI-compatible images API. Several providers
// expose this surface, so the endpoint is fully configurable. The response
// carries each image either inline as b64_json or as a fetchable URL; both
// forms are decoded.
type OpenAIAdapter struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewOpenAIAdapter creates an adapter for one OpenAI-compatible provider.
func NewOpenAIAdapter(name string, cfg config.ProviderConfig) *OpenAIAdapter {
	return &OpenAIAdapter{
		name:       name,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     apiKey(cfg),
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string { return a.name }

type openAIImageData struct {
	B64JSON string `json:"b64_json"`
	URL     string `json:"url"`
}

type openAIImageResponse struct {
	Data  []openAIImageData `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate performs one images-API call. Replicas map onto the API's native
// "n" parameter.
func (a *OpenAIAdapter) Generate(
	ctx context.Context,
	model config.ModelConfig,
	opts domain.RequestOptions,
) (*domain.GenerationResult, error) {
	body := map[string]any{
		"model":  model.Model,
		"prompt": opts.Prompt,
		"n":      opts.Replicas,
	}
	if opts.Size != "" {
		body["size"] = opts.Size
	}
	if opts.AspectRatio != "" {
		body["aspect_ratio"] = opts.AspectRatio
	}
	if opts.Seed != nil {
		body["seed"] = *opts.Seed
	}
	if opts.NegativePrompt != "" {
		body["negative_prompt"] = opts.NegativePrompt
	}
	for k, v := range opts.Extra {
		body[k] = v
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.endpoint+"/images/generations", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if isRateLimitStatus(resp.StatusCode) {
		return nil, &RateLimitError{
			Provider:   a.name,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    errorMessage(raw),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, errorMessage(raw))
	}

	var parsed openAIImageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("backend error: %s", parsed.Error.Message)
	}

	var payloads [][]byte
	for i, img := range parsed.Data {
		switch {
		case img.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(img.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("decode image %d: %w", i, err)
			}
			payloads = append(payloads, data)
		case img.URL != "":
			data, err := a.fetch(ctx, img.URL)
			if err != nil {
				return nil, fmt.Errorf("fetch image %d: %w", i, err)
			}
			payloads = append(payloads, data)
		}
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no images in response")
	}

	return &domain.GenerationResult{
		Payloads: payloads,
		Provider: a.name,
		Model:    model.Model,
	}, nil
}

// fetch downloads a URL-form image with the adapter's own client and timeout.
func (a *OpenAIAdapter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// errorMessage pulls the human message out of an error body, falling back to
// the raw body.
func errorMessage(raw []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
