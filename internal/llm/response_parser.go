package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/scrypster/engram/pkg/types"
)

// FactExtractionResponse represents the complete fact extraction response.
type FactExtractionResponse struct {
	Facts []string `json:"facts"`
}

// MemoryActionResponse represents a single reconciliation decision returned
// by the LLM.
type MemoryActionResponse struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Event     types.MemoryEvent `json:"event"`
	OldMemory string            `json:"old_memory,omitempty"`
}

// ReconciliationResponse represents the complete reconciliation response.
type ReconciliationResponse struct {
	Memory []MemoryActionResponse `json:"memory"`
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	// Remove common markdown code block markers
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	// Try to find JSON object boundaries
	start := strings.Index(text, "{")
	if start == -1 {
		return text // No JSON found, return as-is and let parser fail
	}

	// Find the matching closing brace
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		// Handle string escaping
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}

		// Track if we're inside a string
		if char == '"' {
			inString = !inString
			continue
		}

		// Only count braces outside of strings
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					// Found complete JSON object, return it
					return text[start : i+1]
				}
			}
		}
	}

	return text // No complete JSON found, return as-is
}

// ParseFactsResponse parses fact extraction JSON. Blank or whitespace-only
// facts are dropped rather than failing the batch. It returns an error only
// if the JSON itself is malformed.
func ParseFactsResponse(jsonStr string) ([]string, error) {
	cleanJSON := extractJSON(jsonStr)

	var response FactExtractionResponse
	if err := json.Unmarshal([]byte(cleanJSON), &response); err != nil {
		return nil, fmt.Errorf("failed to parse facts JSON: %w", err)
	}

	facts := make([]string, 0, len(response.Facts))
	for _, fact := range response.Facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

// ParseMemoryActionsResponse parses reconciliation JSON and filters out
// entries with unknown events. Unknown events are skipped with a log line
// rather than failing the entire batch. It returns an error only if the JSON
// itself is malformed.
func ParseMemoryActionsResponse(jsonStr string) ([]MemoryActionResponse, error) {
	cleanJSON := extractJSON(jsonStr)

	var response ReconciliationResponse
	if err := json.Unmarshal([]byte(cleanJSON), &response); err != nil {
		return nil, fmt.Errorf("failed to parse memory actions JSON: %w", err)
	}

	valid := make([]MemoryActionResponse, 0, len(response.Memory))
	for _, action := range response.Memory {
		action.Event = types.MemoryEvent(strings.ToUpper(strings.TrimSpace(string(action.Event))))
		if !types.IsValidEvent(action.Event) {
			log.Printf("response_parser: skipping action for %q with unknown event %q", action.ID, action.Event)
			continue
		}
		valid = append(valid, action)
	}
	return valid, nil
}
