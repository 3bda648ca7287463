package interviews

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/telemetry"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(lifecycleInvariants, Interview{})
	return v
}

func lifecycleInvariants(sl validator.StructLevel) {
	i, ok := sl.Current().Interface().(Interview)
	if !ok {
		return
	}
	if IsActive(i.Status) && i.StartedAt == nil {
		sl.ReportError(i.StartedAt, "StartedAt", "started_at", "required_when_active", string(i.Status))
	}
	if i.Status == StatusCompleted && i.CompletedAt == nil {
		sl.ReportError(i.CompletedAt, "CompletedAt", "completed_at", "required_when_completed", "")
	}
	if i.Status != StatusCompleted && i.Status != StatusFailed && i.CompletedAt != nil {
		sl.ReportError(i.CompletedAt, "CompletedAt", "completed_at", "excluded_when_open", string(i.Status))
	}
	if i.ChunksTotal > 0 && i.ChunksProcessed > i.ChunksTotal {
		sl.ReportError(i.ChunksProcessed, "ChunksProcessed", "chunks_processed", "ltefield", "ChunksTotal")
	}
}

// Validate checks field constraints and lifecycle invariants.
func Validate(i Interview) error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, i.ID, err)
	}
	return nil
}

// interviewRow is the database shape. Every column is nullable here so that
// a damaged row is reported by validation instead of failing the whole scan.
type interviewRow struct {
	ID              sql.NullString `db:"id"`
	OwnerRef        sql.NullString `db:"owner_ref"`
	Platform        sql.NullString `db:"platform"`
	SourceMessageID sql.NullString `db:"source_message_id"`
	MediaID         sql.NullString `db:"media_id"`
	Status          sql.NullString `db:"status"`
	RetryCount      sql.NullInt64  `db:"retry_count"`
	LastRetryAt     sql.NullTime   `db:"last_retry_at"`
	StartedAt       sql.NullTime   `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	Error           sql.NullString `db:"error"`
	ChunksTotal     sql.NullInt64  `db:"chunks_total"`
	ChunksProcessed sql.NullInt64  `db:"chunks_processed"`
	AudioSizeBytes  sql.NullInt64  `db:"audio_size_bytes"`
	TranscriptKey   sql.NullString `db:"transcript_key"`
	AnalysisKey     sql.NullString `db:"analysis_key"`
	CreatedAt       sql.NullTime   `db:"created_at"`
	UpdatedAt       sql.NullTime   `db:"updated_at"`
}

// hydrate converts a row into an Interview, rejecting rows that are missing
// required columns or violate lifecycle invariants. No field is defaulted.
func hydrate(row interviewRow) (Interview, error) {
	if !row.Status.Valid || !row.CreatedAt.Valid || !row.RetryCount.Valid {
		return Interview{}, fmt.Errorf("%w: %s: missing status, created_at or retry_count", ErrMalformed, row.ID.String)
	}
	i := Interview{
		ID:              row.ID.String,
		OwnerRef:        row.OwnerRef.String,
		Platform:        row.Platform.String,
		SourceMessageID: row.SourceMessageID.String,
		MediaID:         row.MediaID.String,
		Status:          Status(row.Status.String),
		RetryCount:      int(row.RetryCount.Int64),
		LastRetryAt:     nullTimePtr(row.LastRetryAt),
		StartedAt:       nullTimePtr(row.StartedAt),
		CompletedAt:     nullTimePtr(row.CompletedAt),
		Error:           row.Error.String,
		ChunksTotal:     int(row.ChunksTotal.Int64),
		ChunksProcessed: int(row.ChunksProcessed.Int64),
		AudioSizeBytes:  row.AudioSizeBytes.Int64,
		TranscriptKey:   row.TranscriptKey.String,
		AnalysisKey:     row.AnalysisKey.String,
		CreatedAt:       row.CreatedAt.Time.UTC(),
		UpdatedAt:       row.CreatedAt.Time.UTC(),
	}
	if row.UpdatedAt.Valid {
		i.UpdatedAt = row.UpdatedAt.Time.UTC()
	}
	if err := Validate(i); err != nil {
		return Interview{}, err
	}
	return i, nil
}

// hydrateAll converts rows, quarantining malformed ones. Quarantined rows are
// logged and counted but never returned to callers.
func hydrateAll(rows []interviewRow) []Interview {
	out := make([]Interview, 0, len(rows))
	for _, row := range rows {
		i, err := hydrate(row)
		if err != nil {
			quarantine(row.ID.String, err)
			continue
		}
		out = append(out, i)
	}
	return out
}

func quarantine(id string, err error) {
	metrics.IncRecordQuarantined()
	telemetry.Warn("interviews.record.quarantined", map[string]any{
		"interview_id": id,
		"error":        err.Error(),
	})
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
