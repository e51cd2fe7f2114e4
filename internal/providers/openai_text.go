package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/fablekit/fable/internal/types"
)

const (
	OpenAITextName         = "openai"
	openAITextDefaultModel = openai.ChatModelGPT4o
)

// OpenAITextConfig holds configuration for the story text client.
type OpenAITextConfig struct {
	APIKey     string
	Model      string        // "gpt-4o" (default)
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAITextClient implements TextGenerator using the official OpenAI SDK.
type OpenAITextClient struct {
	model  string
	client openai.Client
}

// NewOpenAITextClient creates a new story text client.
func NewOpenAITextClient(cfg OpenAITextConfig) *OpenAITextClient {
	if cfg.Model == "" {
		cfg.Model = openAITextDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 180 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// The pipeline owns retry policy; disable SDK transport retries so
		// attempts are counted in one place.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAITextClient{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAITextClient) Name() string {
	return OpenAITextName
}

// HealthCheck verifies the API is reachable and the key is valid.
func (c *OpenAITextClient) HealthCheck(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai models list failed: %w", mapOpenAIError(err))
	}
	if page == nil {
		return fmt.Errorf("openai models list returned nil response")
	}
	return nil
}

// GenerateStory produces a complete structured storybook draft.
func (c *OpenAITextClient) GenerateStory(ctx context.Context, req *StoryRequest) (*StoryResult, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.PageCount <= 0 {
		return nil, fmt.Errorf("page count is required")
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(storySystemPrompt),
			openai.UserMessage(buildStoryPrompt(req)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("story completion returned no choices")
	}

	story, err := ParseStoryJSON(resp.Choices[0].Message.Content, req.PageCount)
	if err != nil {
		return nil, err
	}

	story.PromptTokens = int(resp.Usage.PromptTokens)
	story.CompletionTokens = int(resp.Usage.CompletionTokens)
	story.ExecutionTime = time.Since(start)
	return story, nil
}

const storySystemPrompt = `You are a celebrated children's book author. You write warm, ` +
	`age-appropriate stories with vivid, illustratable scenes. You always answer with a ` +
	`single JSON object and nothing else.`

// buildStoryPrompt renders the user prompt for one story. The age band
// shapes vocabulary and sentence length guidance.
func buildStoryPrompt(req *StoryRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a children's storybook for ages %s with exactly %d pages.\n\n",
		req.AgeRange, req.PageCount)
	fmt.Fprintf(&b, "Theme: %s\n", req.Theme)
	if req.CharacterType != "" {
		fmt.Fprintf(&b, "Main character: %s\n", req.CharacterType)
	}
	if req.Setting != "" {
		fmt.Fprintf(&b, "Setting: %s\n", req.Setting)
	}
	if req.MoralLesson != "" {
		fmt.Fprintf(&b, "Moral lesson: %s\n", req.MoralLesson)
	}

	switch types.AgeBand(req.AgeRange) {
	case types.Ages3To5:
		b.WriteString("\nUse very simple vocabulary, short sentences (1-2 per page), repetition, and gentle rhythm.\n")
	case types.Ages9To12:
		b.WriteString("\nUse richer vocabulary, 3-5 sentences per page, and a story arc with a real challenge and resolution.\n")
	default:
		b.WriteString("\nUse simple but varied vocabulary, 2-3 sentences per page, and a clear beginning, middle, and end.\n")
	}

	fmt.Fprintf(&b, `
Respond with a JSON object of this shape:
{
  "title": "...",
  "author": "...",
  "synopsis": "one or two sentences",
  "theme": "...",
  "moralLesson": "...",
  "pages": [
    {"pageNumber": 1, "text": "page text", "imagePrompt": "detailed illustration description"}
  ]
}

The pages array must contain exactly %d entries numbered 1 through %d.
Every imagePrompt must describe a single concrete scene with the main character,
consistent across pages, suitable for a children's book illustrator.`, req.PageCount, req.PageCount)

	return b.String()
}

// mapOpenAIError converts SDK errors into provider errors, surfacing 429s
// as RateLimitError.
func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ TextGenerator = (*OpenAITextClient)(nil)
