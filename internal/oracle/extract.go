package oracle

import (
	"strings"

	"github.com/goccy/go-json"
)

// ExtractJSONArray isolates the JSON array in an LLM reply. Code fences are
// stripped and everything outside the first '[' and the last ']' is ignored,
// so prose before or after the array is tolerated. ok is false when no
// non-empty array can be parsed.
func ExtractJSONArray(text string) (items []json.RawMessage, ok bool) {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```JSON", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
		return nil, false
	}
	if len(items) == 0 {
		return nil, false
	}
	return items, true
}
