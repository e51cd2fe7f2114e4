package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// storySchemaTemplate is the JSON schema the text backend's output must
// satisfy. %d slots hold the required page count so the schema itself pins
// the page total.
const storySchemaTemplate = `{
  "type": "object",
  "required": ["title", "synopsis", "pages"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "author": {"type": "string"},
    "synopsis": {"type": "string", "minLength": 1},
    "theme": {"type": "string"},
    "moralLesson": {"type": "string"},
    "pages": {
      "type": "array",
      "minItems": %d,
      "maxItems": %d,
      "items": {
        "type": "object",
        "required": ["pageNumber", "text", "imagePrompt"],
        "properties": {
          "pageNumber": {"type": "integer", "minimum": 1},
          "text": {"type": "string", "minLength": 1},
          "imagePrompt": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

// StorySchema returns the compiled schema for a story with pageCount pages.
func StorySchema(pageCount int) (*jsonschema.Schema, error) {
	raw := fmt.Sprintf(storySchemaTemplate, pageCount, pageCount)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("story.json", bytes.NewReader([]byte(raw))); err != nil {
		return nil, fmt.Errorf("failed to load story schema: %w", err)
	}
	schema, err := compiler.Compile("story.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile story schema: %w", err)
	}
	return schema, nil
}

// ParseStoryJSON parses model output into a StoryResult, recovering from
// markdown code fences and surrounding prose, and validates it against the
// page-count schema plus structural checks the schema cannot express.
func ParseStoryJSON(content string, pageCount int) (*StoryResult, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	schema, err := StorySchema(pageCount)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode story JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("story does not match schema: %w", err)
	}

	var story StoryResult
	if err := json.Unmarshal(raw, &story); err != nil {
		return nil, fmt.Errorf("failed to decode story: %w", err)
	}
	if err := checkPageNumbering(story.Pages); err != nil {
		return nil, err
	}
	return &story, nil
}

// checkPageNumbering requires pages to be numbered 1..N contiguously.
func checkPageNumbering(pages []StoryPage) error {
	for i, p := range pages {
		if p.PageNumber != i+1 {
			return fmt.Errorf("page %d numbered %d, pages must be contiguous from 1", i+1, p.PageNumber)
		}
	}
	return nil
}

// extractJSON parses JSON from model output, with lightweight recovery for
// markdown code fences and surrounding text.
func extractJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize model output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("failed to parse JSON from model output")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	start := strings.Index(trimmed, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(trimmed, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}
