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
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/genroute/internal/core/config"
	"github.com/vietddude/genroute/internal/core/domain"
)

// GeminiAdapter speaks the Gemini generateContent REST surface. Images come
// back as inline base64 parts. The API produces one image per call, so
// replicas fan out as parallel calls.
type GeminiAdapter struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewGeminiAdapter creates an adapter for one Gemini-style provider.
func NewGeminiAdapter(name string, cfg config.ProviderConfig) *GeminiAdapter {
	return &GeminiAdapter{
		name:       name,
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     apiKey(cfg),
		httpClient: newHTTPClient(cfg.Timeout),
	}
}

// Name returns the provider identifier.
func (a *GeminiAdapter) Name() string { return a.name }

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate fans replicas out as parallel generateContent calls and collects
// every inline image part.
func (a *GeminiAdapter) Generate(
	ctx context.Context,
	model config.ModelConfig,
	opts domain.RequestOptions,
) (*domain.GenerationResult, error) {
	var (
		mu       sync.Mutex
		payloads [][]byte
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Replicas; i++ {
		g.Go(func() error {
			imgs, err := a.generateOne(gctx, model, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			payloads = append(payloads, imgs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
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

func (a *GeminiAdapter) generateOne(
	ctx context.Context,
	model config.ModelConfig,
	opts domain.RequestOptions,
) ([][]byte, error) {
	prompt := opts.Prompt
	if opts.NegativePrompt != "" {
		// The REST surface has no dedicated negative prompt field.
		prompt = fmt.Sprintf("%s\n\nAvoid: %s", prompt, opts.NegativePrompt)
	}

	generationConfig := map[string]any{
		"responseModalities": []string{"IMAGE"},
	}
	if opts.Seed != nil {
		generationConfig["seed"] = *opts.Seed
	}
	imageConfig := map[string]any{}
	if opts.AspectRatio != "" {
		imageConfig["aspectRatio"] = opts.AspectRatio
	}
	if opts.Size != "" {
		imageConfig["imageSize"] = opts.Size
	}
	if len(imageConfig) > 0 {
		generationConfig["imageConfig"] = imageConfig
	}
	for k, v := range opts.Extra {
		generationConfig[k] = v
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]any{{"text": prompt}}},
		},
		"generationConfig": generationConfig,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.endpoint, model.Model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("x-goog-api-key", a.apiKey)
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

	var parsed geminiResponse
	if jerr := json.Unmarshal(raw, &parsed); jerr != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("decode response: %w", jerr)
	}

	if isRateLimitStatus(resp.StatusCode) || (parsed.Error != nil && parsed.Error.Status == "RESOURCE_EXHAUSTED") {
		msg := errorMessage(raw)
		return nil, &RateLimitError{
			Provider:   a.name,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, errorMessage(raw))
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("backend error: %s", parsed.Error.Message)
	}

	var payloads [][]byte
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			payloads = append(payloads, data)
		}
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no images in response")
	}
	return payloads, nil
}
