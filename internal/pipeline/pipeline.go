package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"interview-backend/internal/interviews"
	"interview-backend/internal/llm"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/requestid"
	"interview-backend/internal/shared/storage/object"
	"interview-backend/internal/shared/telemetry"
)

// DefaultChunkSize keeps each transcription upload under the provider's 25 MB limit.
const DefaultChunkSize = 20 << 20

// ErrStageFailed marks a failure the pipeline already recorded on the
// interview. Queue consumers acknowledge such messages; retries belong to
// the recovery engine.
var ErrStageFailed = errors.New("pipeline stage failed")

// errLostOwnership means another actor moved the interview while we held it,
// typically the recovery engine declaring it orphaned.
var errLostOwnership = errors.New("interview changed by another actor")

// MediaSource downloads the voice message behind a media id.
type MediaSource interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// Notifier sends best-effort text messages to owners.
type Notifier interface {
	Notify(ctx context.Context, to, text string) bool
}

// Processor runs one interview through download, transcription and analysis.
type Processor struct {
	Repo        interviews.Repo
	Media       MediaSource
	Notifier    Notifier
	Transcriber llm.Transcriber
	Analyzer    llm.Analyzer
	Store       object.Store
	ChunkSize   int
	Now         func() time.Time
	NewID       func() string
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

// Process handles one queue message. Interviews that are not pending are
// skipped, so redelivered messages are harmless. Stage failures mark the
// interview failed and are returned; the recovery engine owns retries.
func (p *Processor) Process(ctx context.Context, msg queue.Message) (err error) {
	start := time.Now()
	ctx = requestid.With(ctx, msg.RequestID)
	outcome := "failed"
	defer func() {
		metrics.IncPipelineRun(outcome)
		metrics.ObservePipelineSeconds(time.Since(start).Seconds())
	}()

	interview, err := p.resolve(ctx, msg)
	if err != nil {
		return err
	}
	if interview.Status != interviews.StatusPending {
		outcome = "skipped"
		telemetry.Info("pipeline.skipped", map[string]any{
			"request_id":   msg.RequestID,
			"interview_id": interview.ID,
			"status":       string(interview.Status),
		})
		return nil
	}

	t, err := interviews.StartProcessing(interview, p.now())
	if err != nil {
		return err
	}
	if err := p.apply(ctx, &interview, t); err != nil {
		if errors.Is(err, errLostOwnership) {
			outcome = "skipped"
			return nil
		}
		return err
	}

	if err := p.run(ctx, &interview); err != nil {
		if errors.Is(err, errLostOwnership) {
			outcome = "abandoned"
			telemetry.Warn("pipeline.abandoned", map[string]any{
				"request_id":   msg.RequestID,
				"interview_id": interview.ID,
				"status":       string(interview.Status),
			})
			return nil
		}
		if p.fail(ctx, interview, err) {
			return fmt.Errorf("process interview %s: %w: %w", interview.ID, ErrStageFailed, err)
		}
		return fmt.Errorf("process interview %s: %w", interview.ID, err)
	}
	outcome = "completed"
	return nil
}

// resolve loads the interview named by the message or creates it on first ingest.
func (p *Processor) resolve(ctx context.Context, msg queue.Message) (interviews.Interview, error) {
	if msg.InterviewID != "" {
		return p.Repo.GetByID(ctx, msg.InterviewID)
	}
	existing, err := p.Repo.GetBySourceMessageID(ctx, msg.SourceMessageID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, interviews.ErrNotFound) {
		return interviews.Interview{}, err
	}

	now := p.now()
	fresh := interviews.Interview{
		ID:              p.newID(),
		OwnerRef:        msg.OwnerRef,
		Platform:        msg.Platform,
		SourceMessageID: msg.SourceMessageID,
		MediaID:         msg.MediaID,
		Status:          interviews.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.Repo.Create(ctx, fresh); err != nil {
		if errors.Is(err, interviews.ErrDuplicate) {
			return p.Repo.GetBySourceMessageID(ctx, msg.SourceMessageID)
		}
		return interviews.Interview{}, err
	}
	telemetry.Info("pipeline.interview.created", map[string]any{
		"request_id":   requestid.From(ctx),
		"interview_id": fresh.ID,
		"owner_ref":    fresh.OwnerRef,
	})
	return fresh, nil
}

func (p *Processor) run(ctx context.Context, interview *interviews.Interview) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
	}()

	audio, err := p.Media.DownloadMedia(ctx, interview.MediaID)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	if len(audio) == 0 {
		return errors.New("download media: empty audio")
	}
	chunks := Split(audio, p.chunkSize())

	total, processed, size := len(chunks), 0, int64(len(audio))
	if err := p.progress(ctx, interview, interviews.Patch{ChunksTotal: &total, ChunksProcessed: &processed, AudioSizeBytes: &size}); err != nil {
		return err
	}
	if err := p.advance(ctx, interview, interviews.StatusTranscribing, nil); err != nil {
		return err
	}

	parts := make([]string, 0, len(chunks))
	for n, chunk := range chunks {
		text, err := p.Transcriber.Transcribe(ctx, chunk, fmt.Sprintf("chunk-%03d.ogg", n+1))
		if err != nil {
			return fmt.Errorf("transcribe chunk %d/%d: %w", n+1, total, err)
		}
		parts = append(parts, strings.TrimSpace(text))
		done := n + 1
		if err := p.progress(ctx, interview, interviews.Patch{ChunksProcessed: &done}); err != nil {
			return err
		}
	}
	transcript := strings.Join(parts, "\n\n")

	transcriptKey, err := p.put(ctx, *interview, "transcript.md", transcript)
	if err != nil {
		return err
	}
	if err := p.advance(ctx, interview, interviews.StatusAnalyzing, func(patch *interviews.Patch) {
		patch.TranscriptKey = &transcriptKey
	}); err != nil {
		return err
	}

	report, err := p.Analyzer.Analyze(ctx, transcript)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	analysisKey, err := p.put(ctx, *interview, "analysis.md", report)
	if err != nil {
		return err
	}

	t, err := interviews.Complete(*interview, p.now())
	if err != nil {
		return err
	}
	t.Patch.AnalysisKey = &analysisKey
	if err := p.apply(ctx, interview, t); err != nil {
		return err
	}
	p.notify(ctx, interview.OwnerRef, completedText(interview.ID, total))
	return nil
}

func (p *Processor) advance(ctx context.Context, interview *interviews.Interview, to interviews.Status, edit func(*interviews.Patch)) error {
	t, err := interviews.Advance(*interview, to, p.now())
	if err != nil {
		return err
	}
	if edit != nil {
		edit(&t.Patch)
	}
	return p.apply(ctx, interview, t)
}

func (p *Processor) progress(ctx context.Context, interview *interviews.Interview, patch interviews.Patch) error {
	t, err := interviews.Progress(*interview, patch, p.now())
	if err != nil {
		return err
	}
	return p.apply(ctx, interview, t)
}

// apply runs t and mirrors the patch onto the local copy.
func (p *Processor) apply(ctx context.Context, interview *interviews.Interview, t interviews.Transition) error {
	applied, err := interviews.ApplyTransition(ctx, p.Repo, t)
	if err != nil {
		return fmt.Errorf("apply %s: %w", t.Label(), err)
	}
	if !applied {
		metrics.IncUpdateConflict(t.Label())
		return errLostOwnership
	}
	t.Patch.Apply(interview)
	if t.From != t.To {
		telemetry.Info("pipeline.status", map[string]any{
			"request_id":        requestid.From(ctx),
			"interview_id":      interview.ID,
			"status_transition": t.Label(),
		})
	}
	return nil
}

// fail records the explicit failure path. Owners are not notified here; the
// recovery engine reports the final outcome.
func (p *Processor) fail(ctx context.Context, interview interviews.Interview, cause error) bool {
	fields := map[string]any{
		"request_id":   requestid.From(ctx),
		"interview_id": interview.ID,
		"status":       string(interview.Status),
		"error":        cause.Error(),
	}
	t, err := interviews.Fail(interview, truncate(cause.Error(), 500), p.now())
	if err != nil {
		fields["fail_error"] = err.Error()
		telemetry.Error("pipeline.failed", fields)
		return false
	}
	applied, err := interviews.ApplyTransition(ctx, p.Repo, t)
	switch {
	case err != nil:
		fields["fail_error"] = err.Error()
	case !applied:
		fields["fail_error"] = errLostOwnership.Error()
		metrics.IncUpdateConflict(t.Label())
	}
	telemetry.Error("pipeline.failed", fields)
	return err == nil && applied
}

func (p *Processor) put(ctx context.Context, interview interviews.Interview, name, body string) (string, error) {
	key, err := object.ArtifactKey(interview.OwnerRef, interview.ID, name)
	if err != nil {
		return "", err
	}
	if _, err := p.Store.Put(ctx, key, "text/markdown; charset=utf-8", bytes.NewReader([]byte(body))); err != nil {
		return "", fmt.Errorf("store %s: %w", name, err)
	}
	return key, nil
}

func (p *Processor) notify(ctx context.Context, to, text string) {
	if p.Notifier == nil || to == "" {
		return
	}
	if !p.Notifier.Notify(ctx, to, text) {
		metrics.IncNotificationFailed()
	}
}

func (p *Processor) chunkSize() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return DefaultChunkSize
}

// Split cuts audio into consecutive chunks of at most size bytes.
func Split(audio []byte, size int) [][]byte {
	if size <= 0 || len(audio) == 0 {
		return [][]byte{audio}
	}
	chunks := make([][]byte, 0, (len(audio)+size-1)/size)
	for start := 0; start < len(audio); start += size {
		end := min(start+size, len(audio))
		chunks = append(chunks, audio[start:end])
	}
	return chunks
}

func completedText(id string, chunks int) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("🎉 Processing complete! (ID: %s)\n\n📝 Transcript: %d part(s)\n📄 Analysis report ready", short, chunks)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
