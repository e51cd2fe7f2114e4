package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockTextGenerator is a scriptable TextGenerator for tests.
type MockTextGenerator struct {
	mu       sync.Mutex
	Calls    int
	StoryFn  func(ctx context.Context, req *StoryRequest) (*StoryResult, error)
	FailNext int // Fail this many calls before succeeding
}

func (m *MockTextGenerator) Name() string { return "mock-text" }

func (m *MockTextGenerator) GenerateStory(ctx context.Context, req *StoryRequest) (*StoryResult, error) {
	m.mu.Lock()
	m.Calls++
	failing := m.FailNext > 0
	if failing {
		m.FailNext--
	}
	m.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("mock text failure")
	}
	if m.StoryFn != nil {
		return m.StoryFn(ctx, req)
	}
	return CannedStory(req.PageCount), nil
}

// CannedStory builds a deterministic valid story with n pages.
func CannedStory(n int) *StoryResult {
	pages := make([]StoryPage, n)
	for i := range pages {
		pages[i] = StoryPage{
			PageNumber:  i + 1,
			Text:        fmt.Sprintf("Page %d of the little fox's journey.", i+1),
			ImagePrompt: fmt.Sprintf("A little fox on page %d of its journey", i+1),
		}
	}
	return &StoryResult{
		Title:       "The Little Fox",
		Author:      "Story Bot",
		Synopsis:    "A little fox finds its way home.",
		Theme:       "courage",
		MoralLesson: "Courage means trying even when you are scared",
		Pages:       pages,
	}
}

// MockImageGenerator is a scriptable ImageGenerator for tests.
type MockImageGenerator struct {
	mu      sync.Mutex
	Calls   int
	Prompts []string
	ImageFn func(ctx context.Context, req *ImageRequest) (*ImageResult, error)
	// FailPrompts fails any request whose prompt contains one of these
	// substrings, for partial failure scenarios.
	FailPrompts []string
}

func (m *MockImageGenerator) Name() string { return "mock-image" }

func (m *MockImageGenerator) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	m.mu.Lock()
	m.Calls++
	m.Prompts = append(m.Prompts, req.Prompt)
	m.mu.Unlock()

	for _, frag := range m.FailPrompts {
		if frag != "" && containsFold(req.Prompt, frag) {
			return nil, fmt.Errorf("mock image failure for %q", frag)
		}
	}
	if m.ImageFn != nil {
		return m.ImageFn(ctx, req)
	}
	return &ImageResult{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}, nil
}

// MockSpeechGenerator is a scriptable SpeechGenerator for tests.
type MockSpeechGenerator struct {
	mu       sync.Mutex
	Calls    int
	Texts    []string
	Voices   []string
	SpeechFn func(ctx context.Context, req *SpeechRequest) (*SpeechResult, error)
	FailNext int
}

func (m *MockSpeechGenerator) Name() string { return "mock-speech" }

func (m *MockSpeechGenerator) GenerateSpeech(ctx context.Context, req *SpeechRequest) (*SpeechResult, error) {
	m.mu.Lock()
	m.Calls++
	m.Texts = append(m.Texts, req.Text)
	m.Voices = append(m.Voices, req.Voice)
	failing := m.FailNext > 0
	if failing {
		m.FailNext--
	}
	m.mu.Unlock()

	if failing {
		return nil, fmt.Errorf("mock speech failure")
	}
	if m.SpeechFn != nil {
		return m.SpeechFn(ctx, req)
	}
	// One second of silence at 24kHz mono 16-bit.
	return &SpeechResult{
		PCM:        make([]byte, 48000),
		SampleRate: 24000,
		CharCount:  len(req.Text),
	}, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
