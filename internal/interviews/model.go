package interviews

import "time"

// Status is the lifecycle state of an interview.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusFailed       Status = "failed"
	StatusCompleted    Status = "completed"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusTranscribing,
	StatusAnalyzing,
	StatusFailed,
	StatusCompleted,
}

// ActiveStatuses are the in-flight states owned by the processing pipeline.
var ActiveStatuses = []Status{StatusProcessing, StatusTranscribing, StatusAnalyzing}

// Interview tracks one voice interview through processing.
type Interview struct {
	ID              string     `json:"id" validate:"required"`
	OwnerRef        string     `json:"owner_ref" validate:"required"`
	Platform        string     `json:"platform,omitempty" validate:"omitempty,max=32"`
	SourceMessageID string     `json:"source_message_id" validate:"required"`
	MediaID         string     `json:"media_id,omitempty"`
	Status          Status     `json:"status" validate:"required,oneof=pending processing transcribing analyzing failed completed"`
	RetryCount      int        `json:"retry_count" validate:"gte=0"`
	LastRetryAt     *time.Time `json:"last_retry_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
	ChunksTotal     int        `json:"chunks_total" validate:"gte=0"`
	ChunksProcessed int        `json:"chunks_processed" validate:"gte=0"`
	AudioSizeBytes  int64      `json:"audio_size_bytes" validate:"gte=0"`
	TranscriptKey   string     `json:"transcript_key,omitempty"`
	AnalysisKey     string     `json:"analysis_key,omitempty"`
	CreatedAt       time.Time  `json:"created_at" validate:"required"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsActive reports whether s is one of the in-flight statuses.
func IsActive(s Status) bool {
	switch s {
	case StatusProcessing, StatusTranscribing, StatusAnalyzing:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// PermanentlyFailed reports whether the interview exhausted its retries and was finalized.
func (i Interview) PermanentlyFailed() bool {
	return i.Status == StatusFailed && i.CompletedAt != nil
}

// Terminal reports whether no further transition is allowed.
func (i Interview) Terminal() bool {
	return i.Status == StatusCompleted || i.PermanentlyFailed()
}

// RetryClock is the timestamp the retry delay is measured from.
// Units that failed explicitly before any retry fall back to their last update.
func (i Interview) RetryClock() time.Time {
	if i.LastRetryAt != nil {
		return *i.LastRetryAt
	}
	return i.UpdatedAt
}

// ProcessingMinutes returns how long the interview has been in flight.
func (i Interview) ProcessingMinutes(now time.Time) float64 {
	if i.StartedAt == nil {
		return 0
	}
	return now.Sub(*i.StartedAt).Minutes()
}
