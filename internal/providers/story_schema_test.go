package providers

import (
	"strings"
	"testing"
)

func validStoryJSON() string {
	return `{
  "title": "The Little Fox",
  "author": "Story Bot",
  "synopsis": "A fox finds its way home.",
  "theme": "courage",
  "moralLesson": "Keep trying",
  "pages": [
    {"pageNumber": 1, "text": "Once upon a time.", "imagePrompt": "A fox in a forest"},
    {"pageNumber": 2, "text": "The fox walked on.", "imagePrompt": "A fox on a path"},
    {"pageNumber": 3, "text": "The fox came home.", "imagePrompt": "A fox at a den"}
  ]
}`
}

func TestParseStoryJSON(t *testing.T) {
	story, err := ParseStoryJSON(validStoryJSON(), 3)
	if err != nil {
		t.Fatalf("ParseStoryJSON: %v", err)
	}
	if story.Title != "The Little Fox" {
		t.Errorf("title = %q", story.Title)
	}
	if len(story.Pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(story.Pages))
	}
	if story.Pages[2].PageNumber != 3 {
		t.Errorf("last page number = %d", story.Pages[2].PageNumber)
	}
}

func TestParseStoryJSONCodeFence(t *testing.T) {
	fenced := "```json\n" + validStoryJSON() + "\n```"
	if _, err := ParseStoryJSON(fenced, 3); err != nil {
		t.Fatalf("fenced JSON should parse: %v", err)
	}
}

func TestParseStoryJSONSurroundingProse(t *testing.T) {
	wrapped := "Here is your story:\n" + validStoryJSON() + "\nEnjoy!"
	if _, err := ParseStoryJSON(wrapped, 3); err != nil {
		t.Fatalf("wrapped JSON should parse: %v", err)
	}
}

func TestParseStoryJSONWrongPageCount(t *testing.T) {
	if _, err := ParseStoryJSON(validStoryJSON(), 20); err == nil {
		t.Fatal("expected error for wrong page count")
	}
}

func TestParseStoryJSONBadNumbering(t *testing.T) {
	bad := strings.Replace(validStoryJSON(), `"pageNumber": 2`, `"pageNumber": 5`, 1)
	if _, err := ParseStoryJSON(bad, 3); err == nil {
		t.Fatal("expected error for non-contiguous page numbers")
	}
}

func TestParseStoryJSONEmptyPageText(t *testing.T) {
	bad := strings.Replace(validStoryJSON(), `"text": "The fox walked on."`, `"text": ""`, 1)
	if _, err := ParseStoryJSON(bad, 3); err == nil {
		t.Fatal("expected error for empty page text")
	}
}

func TestParseStoryJSONGarbage(t *testing.T) {
	if _, err := ParseStoryJSON("not json at all", 3); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
	if _, err := ParseStoryJSON("", 3); err == nil {
		t.Fatal("expected error for empty output")
	}
}
