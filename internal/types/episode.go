package types

import "time"

// ProcessingStatus is the per-episode job state machine:
// pending -> processing -> completed | failed.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

type Feed struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

type Episode struct {
	ID           int64            `json:"id"`
	FeedID       int64            `json:"feed_id"`
	FeedTitle    string           `json:"feed_title,omitempty"`
	Title        string           `json:"title"`
	AudioURL     string           `json:"audio_url"`
	DurationSecs int              `json:"duration_secs,omitempty"`
	PublishedAt  time.Time        `json:"published_at"`
	Status       ProcessingStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`
}

// TranscriptionResult lives only inside a single job invocation.
type TranscriptionResult struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration_secs,omitempty"`
}
