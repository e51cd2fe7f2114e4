package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	GeminiImageName         = "gemini"
	GeminiAPIBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	geminiImageDefaultModel = "imagen-3.0-generate-002"

	// AspectPage is landscape for interior pages, AspectCover portrait for
	// the book cover.
	AspectPage  = "4:3"
	AspectCover = "3:4"
)

// GeminiImageConfig holds configuration for the Imagen client.
type GeminiImageConfig struct {
	APIKey     string
	Model      string // "imagen-3.0-generate-002" (default)
	Timeout    time.Duration
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional (tests)
}

// GeminiImageClient implements ImageGenerator against the Imagen REST API.
type GeminiImageClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiImageClient creates a new Imagen client.
func NewGeminiImageClient(cfg GeminiImageConfig) *GeminiImageClient {
	if cfg.Model == "" {
		cfg.Model = geminiImageDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiAPIBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &GeminiImageClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  httpClient,
	}
}

// Name returns the provider identifier.
func (c *GeminiImageClient) Name() string {
	return GeminiImageName
}

// GenerateImage renders a single illustration from a prompt.
func (c *GeminiImageClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = AspectPage
	}

	body := geminiImagePredictRequest{
		Instances: []geminiImageInstance{{Prompt: EnhanceImagePrompt(req.Prompt)}},
		Parameters: geminiImageParameters{
			SampleCount:    1,
			AspectRatio:    aspect,
			OutputMimeType: "image/png",
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:predict", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := geminiErrorMessage(respBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &RateLimitError{
				Message:    fmt.Sprintf("Imagen rate limited: %s", errMsg),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("Imagen error (status %d): %s", resp.StatusCode, errMsg)
	}

	var predictResp geminiImagePredictResponse
	if err := json.Unmarshal(respBody, &predictResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(predictResp.Predictions) == 0 {
		return nil, fmt.Errorf("no images generated")
	}

	pred := predictResp.Predictions[0]
	if pred.BytesBase64Encoded == "" {
		return nil, fmt.Errorf("no image bytes in response")
	}
	data, err := base64.StdEncoding.DecodeString(pred.BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image bytes: %w", err)
	}

	mimeType := pred.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}

	return &ImageResult{
		Data:          data,
		MimeType:      mimeType,
		ExecutionTime: time.Since(start),
	}, nil
}

// HealthCheck verifies the API is reachable and the key is valid.
func (c *GeminiImageClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/models/%s", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// styleKeywords mark prompts that already carry art-style direction.
var styleKeywords = []string{
	"children's book illustration",
	"colorful",
	"child-friendly",
	"vibrant",
	"digital art",
}

// EnhanceImagePrompt appends child-friendly style direction when the prompt
// has none, and always appends safety direction.
func EnhanceImagePrompt(prompt string) string {
	lower := strings.ToLower(prompt)
	hasStyle := false
	for _, kw := range styleKeywords {
		if strings.Contains(lower, kw) {
			hasStyle = true
			break
		}
	}

	if !hasStyle {
		prompt += ". Style: Colorful children's book illustration, digital art, vibrant colors, warm and friendly, whimsical, high quality, suitable for young children."
	}
	prompt += " Safe for children, no scary elements, positive and joyful atmosphere."
	return prompt
}

// CoverPrompt builds the portrait cover prompt from book metadata.
func CoverPrompt(title, synopsis, theme string) string {
	return fmt.Sprintf(`Children's book cover illustration for %q. %s. Theme: %s.
Style: Vibrant, colorful, whimsical children's book cover art, professional quality,
eye-catching design, warm and inviting colors, suitable for young children,
digital illustration, high detail, magical atmosphere.`, title, synopsis, theme)
}

func geminiErrorMessage(body []byte) string {
	var errResp geminiErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(body)
}

// Gemini API types

type geminiImagePredictRequest struct {
	Instances  []geminiImageInstance `json:"instances"`
	Parameters geminiImageParameters `json:"parameters"`
}

type geminiImageInstance struct {
	Prompt string `json:"prompt"`
}

type geminiImageParameters struct {
	SampleCount    int    `json:"sampleCount"`
	AspectRatio    string `json:"aspectRatio"`
	OutputMimeType string `json:"outputMimeType,omitempty"`
}

type geminiImagePredictResponse struct {
	Predictions []geminiImagePrediction `json:"predictions"`
}

type geminiImagePrediction struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var _ ImageGenerator = (*GeminiImageClient)(nil)
