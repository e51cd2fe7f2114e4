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
	GeminiTTSName         = "gemini"
	geminiTTSDefaultModel = "gemini-2.5-flash-preview-tts"

	// geminiTTSSampleRate is the fixed PCM sample rate the speech model emits.
	geminiTTSSampleRate = 24000
)

// GeminiTTSConfig holds configuration for the speech client.
type GeminiTTSConfig struct {
	APIKey     string
	Model      string // "gemini-2.5-flash-preview-tts" (default)
	Voice      string // Default voice name
	Timeout    time.Duration
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional (tests)
}

// GeminiTTSClient implements SpeechGenerator against the Gemini REST API.
// The model returns raw 16-bit mono PCM which callers wrap in a container.
type GeminiTTSClient struct {
	apiKey  string
	model   string
	voice   string
	baseURL string
	client  *http.Client
}

// NewGeminiTTSClient creates a new speech client.
func NewGeminiTTSClient(cfg GeminiTTSConfig) *GeminiTTSClient {
	if cfg.Model == "" {
		cfg.Model = geminiTTSDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second // Whole-book narration can be slow
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiAPIBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &GeminiTTSClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		voice:   cfg.Voice,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  httpClient,
	}
}

// Name returns the provider identifier.
func (c *GeminiTTSClient) Name() string {
	return GeminiTTSName
}

// GenerateSpeech synthesizes narration audio as raw PCM.
func (c *GeminiTTSClient) GenerateSpeech(ctx context.Context, req *SpeechRequest) (*SpeechResult, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}

	body := geminiTTSRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: text}},
		}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &geminiSpeechConfig{
				VoiceConfig: geminiVoiceConfig{
					PrebuiltVoiceConfig: geminiPrebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
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
				Message:    fmt.Sprintf("Gemini TTS rate limited: %s", errMsg),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("Gemini TTS error (status %d): %s", resp.StatusCode, errMsg)
	}

	var ttsResp geminiTTSResponse
	if err := json.Unmarshal(respBody, &ttsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	audioB64 := ttsResp.firstInlineData()
	if audioB64 == "" {
		return nil, fmt.Errorf("no audio data in response")
	}
	pcm, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio bytes: %w", err)
	}

	return &SpeechResult{
		PCM:           pcm,
		SampleRate:    geminiTTSSampleRate,
		CharCount:     len(text),
		ExecutionTime: time.Since(start),
	}, nil
}

// HealthCheck verifies the API is reachable and the key is valid.
func (c *GeminiTTSClient) HealthCheck(ctx context.Context) error {
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

// Gemini TTS API types

type geminiTTSRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string            `json:"responseModalities"`
	SpeechConfig       *geminiSpeechConfig `json:"speechConfig,omitempty"`
}

type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type geminiTTSResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (r *geminiTTSResponse) firstInlineData() string {
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return part.InlineData.Data
			}
		}
	}
	return ""
}

var _ SpeechGenerator = (*GeminiTTSClient)(nil)
