package providers

import (
	"context"
	"fmt"
)

// Set bundles the three generators the pipeline needs.
type Set struct {
	Text   TextGenerator
	Image  ImageGenerator
	Speech SpeechGenerator
}

// SetConfig holds the credentials and model overrides for all backends.
type SetConfig struct {
	OpenAIAPIKey string
	TextModel    string

	GeminiAPIKey string
	ImageModel   string
	SpeechModel  string
	DefaultVoice string
}

// NewSet builds the live backend clients.
func NewSet(cfg SetConfig) (*Set, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	return &Set{
		Text: NewOpenAITextClient(OpenAITextConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.TextModel,
		}),
		Image: NewGeminiImageClient(GeminiImageConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.ImageModel,
		}),
		Speech: NewGeminiTTSClient(GeminiTTSConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.SpeechModel,
			Voice:  cfg.DefaultVoice,
		}),
	}, nil
}

// HealthCheck verifies every backend is reachable. The first failure wins.
func (s *Set) HealthCheck(ctx context.Context) error {
	type checker interface {
		HealthCheck(ctx context.Context) error
	}
	checks := []struct {
		name string
		c    any
	}{
		{"text", s.Text},
		{"image", s.Image},
		{"speech", s.Speech},
	}
	for _, chk := range checks {
		hc, ok := chk.c.(checker)
		if !ok {
			continue
		}
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s backend health check failed: %w", chk.name, err)
		}
	}
	return nil
}
