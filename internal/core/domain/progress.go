package domain

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// ProgressEvent describes one stage transition. Each stage emits exactly one
// running event, optionally followed by one terminal completed/failed event.
type ProgressEvent struct {
	StepIndex  int            `json:"step_index"`
	Name       string         `json:"name"`
	Status     StepStatus     `json:"status"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Message    string         `json:"message,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ProgressObserver receives stage transitions in strict stage order for a
// single run. It is injected per call, never global.
type ProgressObserver func(ProgressEvent)
