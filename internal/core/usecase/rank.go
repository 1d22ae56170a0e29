package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ayulabs/ayurag/internal/core/domain"
)

const truncationMarker = "\n\n[... context truncated ...]"

// rankDocuments merges both result lists, drops duplicate ids (first
// occurrence wins, so vector results shade keyword results), stable-sorts by
// score descending and trims to topN. Ties keep concatenation order:
// vector-sourced documents come first.
func rankDocuments(vectorDocs, keywordDocs []domain.RetrievedDocument, topN int) []domain.RetrievedDocument {
	merged := make([]domain.RetrievedDocument, 0, len(vectorDocs)+len(keywordDocs))
	seen := make(map[string]struct{}, len(vectorDocs)+len(keywordDocs))

	add := func(docs []domain.RetrievedDocument) {
		for _, doc := range docs {
			if doc.ID != "" {
				if _, dup := seen[doc.ID]; dup {
					continue
				}
				seen[doc.ID] = struct{}{}
			}
			merged = append(merged, doc)
		}
	}
	add(vectorDocs)
	add(keywordDocs)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if topN > 0 && len(merged) > topN {
		merged = merged[:topN]
	}
	return merged
}

// renderContext groups ranked documents by originating source so the answer
// prompt attributes provenance through section boundaries.
func renderContext(docs []domain.RetrievedDocument) string {
	if len(docs) == 0 {
		return ""
	}

	sections := []struct {
		source domain.DocumentSource
		header string
	}{
		{domain.SourceVector, "=== Semantic matches ==="},
		{domain.SourceKeyword, "=== Keyword matches ==="},
	}

	var b strings.Builder
	for _, section := range sections {
		wrote := false
		for idx, doc := range docs {
			if doc.Source != section.source {
				continue
			}
			if !wrote {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(section.header)
				b.WriteString("\n")
				wrote = true
			}
			title := doc.Title
			if title == "" {
				title = doc.ID
			}
			b.WriteString(fmt.Sprintf("[%d] %s (%s, score=%.3f)\n%s\n", idx+1, title, doc.Category, doc.Score, strings.TrimSpace(doc.Text)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// compressContext enforces the hard context cap. Truncation is always
// signaled through the marker, never silent, and the function is idempotent
// for input already within the cap.
func compressContext(context string, maxChars int) string {
	if maxChars <= 0 || len(context) <= maxChars {
		return context
	}
	return context[:maxChars] + truncationMarker
}

func contextSources(docs []domain.RetrievedDocument) []string {
	present := make(map[domain.DocumentSource]bool, 2)
	for _, doc := range docs {
		present[doc.Source] = true
	}
	out := make([]string, 0, 2)
	if present[domain.SourceVector] {
		out = append(out, string(domain.SourceVector))
	}
	if present[domain.SourceKeyword] {
		out = append(out, string(domain.SourceKeyword))
	}
	return out
}
