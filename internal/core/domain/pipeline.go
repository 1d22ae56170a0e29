package domain

// Mode selects the persona and prompt strategy for a pipeline run.
type Mode string

const (
	ModeGyaan   Mode = "gyaan"
	ModeVaidya  Mode = "vaidya"
	ModeDrishti Mode = "drishti"
	ModeLegacy  Mode = "legacy"
)

func NormalizeMode(raw string) Mode {
	switch Mode(raw) {
	case ModeGyaan, ModeVaidya, ModeDrishti:
		return Mode(raw)
	default:
		return ModeLegacy
	}
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PipelineRequest is immutable per run. History is most-recent-last; only a
// bounded suffix is ever rendered into prompts.
type PipelineRequest struct {
	Query   string        `json:"query"`
	History []ChatMessage `json:"history,omitempty"`
	Mode    Mode          `json:"mode,omitempty"`
	// RunID lets callers correlate progress events published out-of-band.
	// Assigned when empty.
	RunID string `json:"run_id,omitempty"`
}

type ResultMetadata struct {
	OnTopic        bool         `json:"on_topic"`
	RewrittenQuery string       `json:"rewritten_query,omitempty"`
	Entities       EntityBundle `json:"entities,omitempty"`
	ContextSources []string     `json:"context_sources,omitempty"`
	// AnswerGrounded carries the hallucination-check verdict. It is
	// informational only: nil means the check itself could not run.
	AnswerGrounded *bool `json:"answer_grounded,omitempty"`
}

// PipelineResult is the terminal output of one run. Steps holds the terminal
// progress event of every stage that executed, in stage order.
type PipelineResult struct {
	RunID           string          `json:"run_id"`
	Answer          string          `json:"answer"`
	Steps           []ProgressEvent `json:"steps"`
	TotalDurationMs int64           `json:"total_duration_ms"`
	Metadata        ResultMetadata  `json:"metadata"`
}
