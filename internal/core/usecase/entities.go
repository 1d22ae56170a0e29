package usecase

import (
	"encoding/json"
	"strings"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

// parseEntityBundle is a fallible parse boundary around free-text model
// output. It never fails the caller: on any parse problem it reports ok=false
// and the empty bundle with all categories present.
func parseEntityBundle(raw string) (domain.EntityBundle, bool) {
	bundle := domain.EmptyEntityBundle()

	raw = extractJSONObject(raw)
	if strings.TrimSpace(raw) == "" {
		return bundle, false
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return bundle, false
	}

	matched := false
	for _, category := range domain.EntityCategories {
		values, ok := decoded[category]
		if !ok {
			continue
		}
		matched = true
		bundle[category] = coerceStringList(values)
	}
	return bundle, matched
}

func coerceStringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

func countEntities(bundle domain.EntityBundle) int {
	total := 0
	for _, values := range bundle {
		total += len(values)
	}
	return total
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
