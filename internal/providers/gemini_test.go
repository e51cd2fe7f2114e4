package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiImageGenerate(t *testing.T) {
	var gotPath string
	var gotBody geminiImagePredictRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(geminiImagePredictResponse{
			Predictions: []geminiImagePrediction{{
				BytesBase64Encoded: base64.StdEncoding.EncodeToString([]byte("png-bytes")),
				MimeType:           "image/png",
			}},
		})
	}))
	defer server.Close()

	client := NewGeminiImageClient(GeminiImageConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	result, err := client.GenerateImage(context.Background(), &ImageRequest{
		Prompt:      "A fox in a forest",
		AspectRatio: AspectCover,
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(result.Data) != "png-bytes" {
		t.Errorf("data = %q", result.Data)
	}
	if result.MimeType != "image/png" {
		t.Errorf("mime = %q", result.MimeType)
	}
	if !strings.Contains(gotPath, "imagen-3.0-generate-002:predict") {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.Parameters.AspectRatio != "3:4" {
		t.Errorf("aspect = %q", gotBody.Parameters.AspectRatio)
	}
	if len(gotBody.Instances) != 1 || !strings.Contains(gotBody.Instances[0].Prompt, "Safe for children") {
		t.Errorf("prompt not enhanced: %+v", gotBody.Instances)
	}
}

func TestGeminiImageRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	client := NewGeminiImageClient(GeminiImageConfig{APIKey: "k", BaseURL: server.URL})
	_, err := client.GenerateImage(context.Background(), &ImageRequest{Prompt: "A fox"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRateLimitError(err) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter.Seconds() != 12 {
		t.Errorf("retry-after not propagated: %v", err)
	}
}

func TestGeminiImageNoPredictions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[]}`))
	}))
	defer server.Close()

	client := NewGeminiImageClient(GeminiImageConfig{APIKey: "k", BaseURL: server.URL})
	if _, err := client.GenerateImage(context.Background(), &ImageRequest{Prompt: "A fox"}); err == nil {
		t.Fatal("expected error for empty predictions")
	}
}

func TestGeminiTTSGenerate(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	var gotBody geminiTTSRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := geminiTTSResponse{}
		resp.Candidates = append(resp.Candidates, struct {
			Content geminiContent `json:"content"`
		}{Content: geminiContent{Parts: []geminiPart{{
			InlineData: &geminiInlineData{
				MimeType: "audio/L16;rate=24000",
				Data:     base64.StdEncoding.EncodeToString(pcm),
			},
		}}}})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewGeminiTTSClient(GeminiTTSConfig{APIKey: "k", BaseURL: server.URL})
	result, err := client.GenerateSpeech(context.Background(), &SpeechRequest{
		Text:  "Once upon a time.",
		Voice: "Puck",
	})
	if err != nil {
		t.Fatalf("GenerateSpeech: %v", err)
	}
	if string(result.PCM) != string(pcm) {
		t.Errorf("pcm = %v", result.PCM)
	}
	if result.SampleRate != 24000 {
		t.Errorf("sample rate = %d", result.SampleRate)
	}
	if got := gotBody.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Puck" {
		t.Errorf("voice = %q", got)
	}
	if mods := gotBody.GenerationConfig.ResponseModalities; len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("modalities = %v", mods)
	}
}

func TestGeminiTTSEmptyText(t *testing.T) {
	client := NewGeminiTTSClient(GeminiTTSConfig{APIKey: "k"})
	if _, err := client.GenerateSpeech(context.Background(), &SpeechRequest{Text: "   "}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestEnhanceImagePrompt(t *testing.T) {
	plain := EnhanceImagePrompt("A fox in a forest")
	if !strings.Contains(plain, "children's book illustration") {
		t.Error("style direction missing from plain prompt")
	}
	if !strings.Contains(plain, "Safe for children") {
		t.Error("safety direction missing")
	}

	styled := EnhanceImagePrompt("A vibrant scene of a fox")
	if strings.Contains(styled, "Style: Colorful") {
		t.Error("style direction duplicated on already-styled prompt")
	}
	if !strings.Contains(styled, "Safe for children") {
		t.Error("safety direction must always be appended")
	}
}
