package interviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const table = "interviews"

var columns = []string{
	"id", "owner_ref", "platform", "source_message_id", "media_id", "status",
	"retry_count", "last_retry_at", "started_at", "completed_at", "error",
	"chunks_total", "chunks_processed", "audio_size_bytes", "transcript_key", "analysis_key",
	"created_at", "updated_at",
}

const uniqueViolation = "23505"

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sqlx.DB
	qb sq.StatementBuilderType
}

// NewPGRepo wraps an open pgx-backed *sql.DB.
func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{
		DB: sqlx.NewDb(db, "pgx"),
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Create inserts a new interview.
func (r *PGRepo) Create(ctx context.Context, interview Interview) error {
	if err := Validate(interview); err != nil {
		return err
	}
	if interview.UpdatedAt.IsZero() {
		interview.UpdatedAt = interview.CreatedAt
	}
	query, args, err := r.qb.Insert(table).
		Columns(columns...).
		Values(
			interview.ID,
			interview.OwnerRef,
			nullString(interview.Platform),
			interview.SourceMessageID,
			nullString(interview.MediaID),
			string(interview.Status),
			interview.RetryCount,
			interview.LastRetryAt,
			interview.StartedAt,
			interview.CompletedAt,
			nullString(interview.Error),
			interview.ChunksTotal,
			interview.ChunksProcessed,
			interview.AudioSizeBytes,
			nullString(interview.TranscriptKey),
			nullString(interview.AnalysisKey),
			interview.CreatedAt,
			interview.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.DB.ExecContext(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID returns an interview by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Interview, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

// GetBySourceMessageID returns the interview created for a source message.
func (r *PGRepo) GetBySourceMessageID(ctx context.Context, sourceMessageID string) (Interview, error) {
	return r.getOne(ctx, sq.Eq{"source_message_id": sourceMessageID})
}

func (r *PGRepo) getOne(ctx context.Context, where sq.Sqlizer) (Interview, error) {
	query, args, err := r.qb.Select(columns...).From(table).Where(where).Limit(1).ToSql()
	if err != nil {
		return Interview{}, fmt.Errorf("build select: %w", err)
	}
	var row interviewRow
	if err := r.DB.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Interview{}, ErrNotFound
		}
		return Interview{}, err
	}
	interview, err := hydrate(row)
	if err != nil {
		quarantine(row.ID.String, err)
		return Interview{}, err
	}
	return interview, nil
}

// FindBefore returns matching interviews, oldest first by the filter field.
// Rows that fail validation are quarantined and skipped. With a limit, the
// query pages past skipped rows so they cannot fill the window on every scan.
func (r *PGRepo) FindBefore(ctx context.Context, filter Filter) ([]Interview, error) {
	builder, err := r.applyFilter(r.qb.Select(columns...).From(table), filter)
	if err != nil {
		return nil, err
	}
	if col := fieldColumn(filter.Field); col != "" {
		builder = builder.OrderBy(col+" ASC", "id ASC")
	}
	if filter.Limit <= 0 {
		return r.selectRows(ctx, builder)
	}

	var out []Interview
	for offset := 0; ; offset += filter.Limit {
		page := builder.Limit(uint64(filter.Limit))
		if offset > 0 {
			page = page.Offset(uint64(offset))
		}
		rows, err := r.selectPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, interview := range hydrateAll(rows) {
			if len(out) == filter.Limit {
				break
			}
			out = append(out, interview)
		}
		if len(out) == filter.Limit || len(rows) < filter.Limit {
			return out, nil
		}
	}
}

func (r *PGRepo) selectRows(ctx context.Context, builder sq.SelectBuilder) ([]Interview, error) {
	rows, err := r.selectPage(ctx, builder)
	if err != nil {
		return nil, err
	}
	return hydrateAll(rows), nil
}

func (r *PGRepo) selectPage(ctx context.Context, builder sq.SelectBuilder) ([]interviewRow, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var rows []interviewRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// CountBefore counts matching interviews.
func (r *PGRepo) CountBefore(ctx context.Context, filter Filter) (int, error) {
	builder, err := r.applyFilter(r.qb.Select("COUNT(*)").From(table), filter)
	if err != nil {
		return 0, err
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var count int
	if err := r.DB.GetContext(ctx, &count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus returns the number of interviews per status.
func (r *PGRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query, args, err := r.qb.Select("status", "COUNT(*) AS count").From(table).GroupBy("status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count: %w", err)
	}
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	counts := make(map[Status]int, len(rows))
	for _, row := range rows {
		counts[Status(row.Status)] = row.Count
	}
	return counts, nil
}

// UpdateConditional applies patch in a single UPDATE guarded by the expected state.
func (r *PGRepo) UpdateConditional(ctx context.Context, id string, expect Expect, patch Patch) (bool, error) {
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = time.Now().UTC()
	}
	builder := r.qb.Update(table).SetMap(patchColumns(patch)).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(expect.Status)})
	if expect.RetryCount != nil {
		builder = builder.Where(sq.Eq{"retry_count": *expect.RetryCount})
	}
	if expect.Unfinalized {
		builder = builder.Where(sq.Eq{"completed_at": nil})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteBefore removes interviews in the given statuses created before the cutoff.
func (r *PGRepo) DeleteBefore(ctx context.Context, statuses []Status, createdBefore time.Time) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	query, args, err := r.qb.Delete(table).
		Where(sq.Eq{"status": statusStrings(statuses)}).
		Where(sq.Lt{"created_at": createdBefore}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGRepo) applyFilter(builder sq.SelectBuilder, filter Filter) (sq.SelectBuilder, error) {
	if len(filter.Statuses) > 0 {
		builder = builder.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}
	if filter.Field != "" {
		col := fieldColumn(filter.Field)
		if col == "" {
			return builder, fmt.Errorf("unknown filter field %q", filter.Field)
		}
		builder = builder.Where(sq.Lt{col: filter.Before})
	}
	if filter.RetryCountBelow > 0 {
		builder = builder.Where(sq.Lt{"retry_count": filter.RetryCountBelow})
	}
	if filter.Unfinalized {
		builder = builder.Where(sq.Eq{"completed_at": nil})
	}
	return builder, nil
}

func fieldColumn(field TimeField) string {
	switch field {
	case FieldStartedAt:
		return "started_at"
	case FieldCreatedAt:
		return "created_at"
	case FieldRetryClock:
		return "COALESCE(last_retry_at, updated_at)"
	}
	return ""
}

func patchColumns(p Patch) map[string]any {
	set := map[string]any{"updated_at": p.UpdatedAt}
	if p.Status != nil {
		set["status"] = string(*p.Status)
	}
	if p.RetryCount != nil {
		set["retry_count"] = *p.RetryCount
	}
	if p.LastRetryAt != nil {
		set["last_retry_at"] = *p.LastRetryAt
	}
	if p.ClearStartedAt {
		set["started_at"] = nil
	}
	if p.StartedAt != nil {
		set["started_at"] = *p.StartedAt
	}
	if p.CompletedAt != nil {
		set["completed_at"] = *p.CompletedAt
	}
	if p.Error != nil {
		set["error"] = nullString(*p.Error)
	}
	if p.ChunksTotal != nil {
		set["chunks_total"] = *p.ChunksTotal
	}
	if p.ChunksProcessed != nil {
		set["chunks_processed"] = *p.ChunksProcessed
	}
	if p.AudioSizeBytes != nil {
		set["audio_size_bytes"] = *p.AudioSizeBytes
	}
	if p.TranscriptKey != nil {
		set["transcript_key"] = nullString(*p.TranscriptKey)
	}
	if p.AnalysisKey != nil {
		set["analysis_key"] = nullString(*p.AnalysisKey)
	}
	return set
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

var _ Repo = (*PGRepo)(nil)
