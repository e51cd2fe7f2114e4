// Package types defines the shared data model for books, pages, narration
// audio, and generation requests.
package types

import (
	"strings"
	"time"
)

// BookStatus tracks a book through the generation pipeline.
type BookStatus string

const (
	StatusDraft            BookStatus = "draft"
	StatusGeneratingImages BookStatus = "generating_images"
	StatusGeneratingAudio  BookStatus = "generating_audio"
	StatusPublished        BookStatus = "published"
	StatusFailed           BookStatus = "failed"
)

// AgeBand is the target reader age range.
type AgeBand string

const (
	Ages3To5  AgeBand = "3-5"
	Ages6To8  AgeBand = "6-8"
	Ages9To12 AgeBand = "9-12"
)

// ValidAgeBand reports whether s is a recognized age band.
func ValidAgeBand(s string) bool {
	switch AgeBand(s) {
	case Ages3To5, Ages6To8, Ages9To12:
		return true
	}
	return false
}

// ReadingLevel maps an age band to a reading level label.
func (a AgeBand) ReadingLevel() string {
	switch a {
	case Ages3To5:
		return "beginner"
	case Ages9To12:
		return "advanced"
	default:
		return "intermediate"
	}
}

// BookPage is one page of a storybook. Pages are 1-based and contiguous.
type BookPage struct {
	PageNumber       int    `json:"pageNumber"`
	Text             string `json:"text"`
	ImagePrompt      string `json:"imagePrompt"`
	ImageURL         string `json:"imageUrl"`
	ImageStoragePath string `json:"imageStoragePath"`
	// AudioURL is only populated by per-page narration variants; the default
	// whole-book narration model leaves it empty.
	AudioURL string `json:"audioUrl,omitempty"`
}

// AudioStatus tracks the narration artifact lifecycle.
type AudioStatus string

const (
	AudioMissing    AudioStatus = "missing"
	AudioGenerating AudioStatus = "generating"
	AudioReady      AudioStatus = "ready"
	AudioFailed     AudioStatus = "failed"
)

// AudioMetadata describes the whole-book narration artifact. A book owns
// exactly one. Status "ready" implies Hash matches the fingerprint of the
// current story text + voice; a mismatch is the sole regeneration trigger.
type AudioMetadata struct {
	Status       AudioStatus `json:"status"`
	VoiceName    string      `json:"voiceName"`
	Format       string      `json:"format"`
	DurationSec  int         `json:"durationSec"`
	StoragePath  string      `json:"storagePath"`
	PublicURL    string      `json:"publicUrl"`
	GeneratedAt  *time.Time  `json:"generatedAt,omitempty"`
	Hash         string      `json:"hash"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	RetryCount   int         `json:"retryCount,omitempty"`
}

// NewAudioMetadata returns the initial metadata for a book with no narration.
func NewAudioMetadata() AudioMetadata {
	return AudioMetadata{
		Status: AudioMissing,
		Format: "wav",
	}
}

// Book is the document-store representation of one storybook.
type Book struct {
	BookID                string        `json:"bookId"`
	Title                 string        `json:"title"`
	Author                string        `json:"author"`
	CoverImageURL         string        `json:"coverImageUrl"`
	CoverImageStoragePath string        `json:"coverImageStoragePath"`
	Synopsis              string        `json:"synopsis"`
	AgeRange              AgeBand       `json:"ageRange"`
	ReadingLevel          string        `json:"readingLevel"`
	Tags                  []string      `json:"tags"`
	Theme                 string        `json:"theme"`
	MoralLesson           string        `json:"moralLesson"`
	Pages                 []BookPage    `json:"pages"`
	WordCount             int           `json:"wordCount"`
	PageCount             int           `json:"pageCount"`
	Audio                 AudioMetadata `json:"audio"`
	Status                BookStatus    `json:"status"`
	Version               int           `json:"version"`
	TextHash              string        `json:"textHash"`
	CreatedAt             time.Time     `json:"createdAt"`
	UpdatedAt             time.Time     `json:"updatedAt"`
}

// CountWords returns the total whitespace-separated word count across pages.
func CountWords(pages []BookPage) int {
	total := 0
	for _, p := range pages {
		total += len(strings.Fields(p.Text))
	}
	return total
}

// Tags derives the catalog tags for a theme and age band.
func Tags(theme string, age AgeBand) []string {
	tags := []string{theme, "ages-" + string(age), "kids", "storybook", "illustrated", "audio"}
	switch age {
	case Ages3To5:
		tags = append(tags, "preschool", "early-learning")
	case Ages6To8:
		tags = append(tags, "early-reader", "elementary")
	case Ages9To12:
		tags = append(tags, "middle-grade", "chapter-book")
	}
	return tags
}

// BookGenerationRequest describes a new book to generate.
type BookGenerationRequest struct {
	AgeRange      AgeBand `json:"ageRange"`
	Theme         string  `json:"theme,omitempty"`
	CharacterName string  `json:"characterName,omitempty"`
	Setting       string  `json:"setting,omitempty"`
	MoralLesson   string  `json:"moralLesson,omitempty"`
}

// GenerationResult is the structured outcome of a pipeline run. Callers get
// a result object rather than an error for the common partial-success case.
type GenerationResult struct {
	Success         bool   `json:"success"`
	BookID          string `json:"bookId,omitempty"`
	Error           string `json:"error,omitempty"`
	AudioGenerated  bool   `json:"audioGenerated,omitempty"`
	ImagesGenerated int    `json:"imagesGenerated,omitempty"`
}
