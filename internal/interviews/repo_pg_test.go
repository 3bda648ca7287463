package interviews

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGRepo(db), mock
}

func rowValues(i Interview) []driver.Value {
	var started, completed, lastRetry any
	if i.StartedAt != nil {
		started = *i.StartedAt
	}
	if i.CompletedAt != nil {
		completed = *i.CompletedAt
	}
	if i.LastRetryAt != nil {
		lastRetry = *i.LastRetryAt
	}
	return []driver.Value{
		i.ID, i.OwnerRef, i.Platform, i.SourceMessageID, i.MediaID, string(i.Status),
		int64(i.RetryCount), lastRetry, started, completed, nil,
		int64(i.ChunksTotal), int64(i.ChunksProcessed), i.AudioSizeBytes, nil, nil,
		i.CreatedAt, i.UpdatedAt,
	}
}

func TestPGRepoCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	i := newInterview("int-1", StatusPending)

	mock.ExpectExec("INSERT INTO interviews").
		WithArgs(
			i.ID,
			i.OwnerRef,
			"whatsapp",
			i.SourceMessageID,
			i.MediaID,
			"pending",
			0,
			sqlmock.AnyArg(), // last_retry_at
			sqlmock.AnyArg(), // started_at
			sqlmock.AnyArg(), // completed_at
			nil,              // error
			0,
			0,
			int64(0),
			nil,
			nil,
			i.CreatedAt,
			i.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), i); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO interviews").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), newInterview("int-1", StatusPending))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestPGRepoCreateValidatesBeforeInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	bad := newInterview("int-1", StatusPending)
	bad.Status = "bogus"
	if err := repo.Create(context.Background(), bad); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statement expected: %v", err)
	}
}

func TestPGRepoFindBeforeBuildsStrictFilterAndQuarantines(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := baseTime.Add(-time.Hour)
	good := newInterview("int-good", StatusProcessing)
	bad := newInterview("int-bad", StatusProcessing)
	badValues := rowValues(bad)
	badValues[8] = nil // started_at missing on an active row

	mock.ExpectQuery(`SELECT .* FROM interviews WHERE status IN \(\$1,\$2,\$3\) AND started_at < \$4 ORDER BY started_at ASC, id ASC LIMIT 50`).
		WithArgs("processing", "transcribing", "analyzing", cutoff).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(rowValues(good)...).AddRow(badValues...))

	got, err := repo.FindBefore(context.Background(), Filter{
		Statuses: ActiveStatuses,
		Field:    FieldStartedAt,
		Before:   cutoff,
		Limit:    50,
	})
	if err != nil {
		t.Fatalf("FindBefore: %v", err)
	}
	if len(got) != 1 || got[0].ID != "int-good" {
		t.Fatalf("expected only the valid row, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoFindBeforePagesPastQuarantinedRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := baseTime.Add(-time.Hour)
	stale := func(id string) []driver.Value {
		values := rowValues(newInterview(id, StatusProcessing))
		values[8] = nil
		return values
	}
	good := newInterview("int-good", StatusProcessing)

	mock.ExpectQuery(`SELECT .* FROM interviews WHERE status IN \(\$1,\$2,\$3\) AND started_at < \$4 ORDER BY started_at ASC, id ASC LIMIT 2$`).
		WithArgs("processing", "transcribing", "analyzing", cutoff).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(stale("int-bad-1")...).AddRow(stale("int-bad-2")...))
	mock.ExpectQuery(`ORDER BY started_at ASC, id ASC LIMIT 2 OFFSET 2$`).
		WithArgs("processing", "transcribing", "analyzing", cutoff).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(rowValues(good)...))

	got, err := repo.FindBefore(context.Background(), Filter{
		Statuses: ActiveStatuses,
		Field:    FieldStartedAt,
		Before:   cutoff,
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("FindBefore: %v", err)
	}
	if len(got) != 1 || got[0].ID != "int-good" {
		t.Fatalf("expected the valid row behind the quarantined ones, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCountBeforeRetryClock(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := baseTime.Add(-5 * time.Minute)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM interviews WHERE status IN \(\$1\) AND COALESCE\(last_retry_at, updated_at\) < \$2 AND retry_count < \$3 AND completed_at IS NULL`).
		WithArgs("failed", cutoff, 3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountBefore(context.Background(), Filter{
		Statuses:        []Status{StatusFailed},
		Field:           FieldRetryClock,
		Before:          cutoff,
		RetryCountBelow: 3,
		Unfinalized:     true,
	})
	if err != nil {
		t.Fatalf("CountBefore: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4, got %d", n)
	}
}

func TestPGRepoCountByStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT status, COUNT\(\*\) AS count FROM interviews GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("completed", 2).
			AddRow("processing", 1))

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusCompleted] != 2 || counts[StatusProcessing] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestPGRepoUpdateConditional(t *testing.T) {
	repo, mock := newMockRepo(t)
	i := newInterview("int-1", StatusFailed)
	i.RetryCount = 1
	tr, err := Requeue(i, 3, baseTime)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	const pattern = `UPDATE interviews SET .* WHERE id = \$\d+ AND status = \$\d+ AND retry_count = \$\d+ AND completed_at IS NULL`
	mock.ExpectExec(pattern).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(pattern).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ApplyTransition(context.Background(), repo, tr)
	if err != nil || !ok {
		t.Fatalf("expected first update to apply, got %v %v", ok, err)
	}
	ok, err = ApplyTransition(context.Background(), repo, tr)
	if err != nil || ok {
		t.Fatalf("expected second update to be a no-op, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT .* FROM interviews WHERE id = \$1 LIMIT 1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoDeleteBefore(t *testing.T) {
	repo, mock := newMockRepo(t)
	cutoff := baseTime.Add(-7 * 24 * time.Hour)
	mock.ExpectExec(`DELETE FROM interviews WHERE status IN \(\$1,\$2\) AND created_at < \$3`).
		WithArgs("completed", "failed", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteBefore(context.Background(), []Status{StatusCompleted, StatusFailed}, cutoff)
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 deleted, got %d", n)
	}
}

func TestPatchColumnsClearsStartedAt(t *testing.T) {
	reason := ""
	set := patchColumns(Patch{ClearStartedAt: true, Error: &reason, UpdatedAt: baseTime})
	if v, ok := set["started_at"]; !ok || v != nil {
		t.Fatalf("expected started_at=nil, got %v", set["started_at"])
	}
	if v, ok := set["error"].(sql.NullString); !ok || v.Valid {
		t.Fatalf("expected error cleared to NULL, got %v", set["error"])
	}
}
