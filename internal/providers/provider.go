// Package providers contains the model-backend clients used by the
// generation pipeline: story text, page illustrations, and narration speech.
// Each backend is behind a small interface so the pipeline and tests can
// swap in fakes.
package providers

import (
	"context"
	"time"
)

// TextGenerator produces a complete structured storybook draft.
type TextGenerator interface {
	Name() string
	GenerateStory(ctx context.Context, req *StoryRequest) (*StoryResult, error)
}

// ImageGenerator renders a single illustration from a prompt.
type ImageGenerator interface {
	Name() string
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)
}

// SpeechGenerator synthesizes narration audio as raw PCM.
type SpeechGenerator interface {
	Name() string
	GenerateSpeech(ctx context.Context, req *SpeechRequest) (*SpeechResult, error)
}

// StoryRequest describes the story to generate.
type StoryRequest struct {
	AgeRange      string
	Theme         string
	CharacterType string
	Setting       string
	MoralLesson   string
	PageCount     int
}

// StoryPage is one page of model output. Json tags match the structured
// output schema sent to the model.
type StoryPage struct {
	PageNumber  int    `json:"pageNumber"`
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

// StoryResult is the validated structured story from the text backend.
type StoryResult struct {
	Title       string      `json:"title"`
	Author      string      `json:"author"`
	Synopsis    string      `json:"synopsis"`
	Theme       string      `json:"theme"`
	MoralLesson string      `json:"moralLesson"`
	Pages       []StoryPage `json:"pages"`

	PromptTokens     int           `json:"-"`
	CompletionTokens int           `json:"-"`
	ExecutionTime    time.Duration `json:"-"`
}

// ImageRequest describes a single illustration.
type ImageRequest struct {
	Prompt      string
	AspectRatio string
}

// ImageResult carries the rendered image bytes.
type ImageResult struct {
	Data          []byte
	MimeType      string
	ExecutionTime time.Duration
}

// SpeechRequest describes narration to synthesize.
type SpeechRequest struct {
	Text  string
	Voice string
}

// SpeechResult carries raw PCM samples. Callers wrap them in a container
// before storage.
type SpeechResult struct {
	PCM           []byte
	SampleRate    int
	CharCount     int
	ExecutionTime time.Duration
}
