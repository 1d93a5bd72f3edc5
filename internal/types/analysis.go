package types

import "time"

type KeyPoint struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type Keyword struct {
	Term    string `json:"term"`
	Context string `json:"context"`
}

// AnalysisOutput is the structured report produced for one episode. Every
// field holds a safe placeholder or empty value when the model response
// cannot be parsed; consumers never see a nil slice.
type AnalysisOutput struct {
	Summary   string     `json:"summary"`
	KeyPoints []KeyPoint `json:"keyPoints"`
	Keywords  []Keyword  `json:"keywords"`
	Recap     string     `json:"recap"`
}

// TaskKind labels one orchestration run in the audit log.
type TaskKind string

const (
	TaskFullRun       TaskKind = "full_run"
	TaskSingleFeed    TaskKind = "single_feed"
	TaskSingleEpisode TaskKind = "single_episode"
	TaskRetryFailed   TaskKind = "retry_failed"
)

// TaskLog is a coarse audit record of one run. Created at start, finalized
// once at completion, append-only otherwise.
type TaskLog struct {
	ID          int64      `json:"id"`
	Kind        TaskKind   `json:"kind"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
