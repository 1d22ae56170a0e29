package domain

type DocumentSource string

const (
	SourceVector  DocumentSource = "vector"
	SourceKeyword DocumentSource = "keyword"
)

type RetrievedDocument struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Source   DocumentSource `json:"source"`
	Title    string         `json:"title,omitempty"`
	Category string         `json:"category,omitempty"`
	Text     string         `json:"text"`
}

// EntityBundle maps a category name to the entities extracted for it.
// Best-effort: it may be empty but every known category is always present.
type EntityBundle map[string][]string

// EntityCategories is the fixed set of extraction categories, in render order.
var EntityCategories = []string{"herbs", "conditions", "constitution_types", "symptoms"}

func EmptyEntityBundle() EntityBundle {
	bundle := make(EntityBundle, len(EntityCategories))
	for _, category := range EntityCategories {
		bundle[category] = []string{}
	}
	return bundle
}

func (b EntityBundle) IsEmpty() bool {
	for _, values := range b {
		if len(values) > 0 {
			return false
		}
	}
	return true
}
