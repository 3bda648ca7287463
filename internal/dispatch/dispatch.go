package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"interview-backend/internal/interviews"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/requestid"
	"interview-backend/internal/shared/telemetry"
)

// Request is the minimal description of an interview's original voice message.
type Request struct {
	InterviewID     string
	OwnerRef        string
	Platform        string
	SourceMessageID string
	MediaID         string
	Reason          string
}

// RequestFor builds a retry request from an interview's source fields.
func RequestFor(i interviews.Interview) Request {
	return Request{
		InterviewID:     i.ID,
		OwnerRef:        i.OwnerRef,
		Platform:        i.Platform,
		SourceMessageID: i.SourceMessageID,
		MediaID:         i.MediaID,
		Reason:          queue.ReasonRetry,
	}
}

// Message converts the request to a queue payload.
func (r Request) Message(requestID string, now time.Time) queue.Message {
	return queue.Message{
		InterviewID:     r.InterviewID,
		OwnerRef:        r.OwnerRef,
		Platform:        r.Platform,
		SourceMessageID: r.SourceMessageID,
		MediaID:         r.MediaID,
		Reason:          r.Reason,
		RequestID:       requestID,
	}.Stamp(now)
}

// Submitter hands a request to the processing pipeline.
type Submitter interface {
	Submit(ctx context.Context, req Request) error
}

// Dispatcher submits requests in the background. Callers never observe the
// outcome. Recovery never scans pending interviews, so a failed submission
// is only logged and the interview stays pending until an operator resubmits
// it to the pipeline.
type Dispatcher struct {
	Submitter Submitter
	// Timeout bounds each submission. Zero means no bound.
	Timeout time.Duration

	wg sync.WaitGroup
}

// Dispatch starts the submission and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) {
	ctx = requestid.Detach(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				telemetry.Error("dispatch.panic", map[string]any{
					"request_id":   requestid.From(ctx),
					"interview_id": req.InterviewID,
					"error":        fmt.Sprint(rec),
				})
			}
		}()
		if d.Submitter == nil {
			telemetry.Error("dispatch.submit.failed", map[string]any{
				"interview_id": req.InterviewID,
				"error":        "no submitter configured",
			})
			return
		}
		if d.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.Timeout)
			defer cancel()
		}
		if err := d.Submitter.Submit(ctx, req); err != nil {
			telemetry.Error("dispatch.submit.failed", map[string]any{
				"request_id":        requestid.From(ctx),
				"interview_id":      req.InterviewID,
				"source_message_id": req.SourceMessageID,
				"error":             err.Error(),
			})
			return
		}
		telemetry.Info("dispatch.submitted", map[string]any{
			"request_id":   requestid.From(ctx),
			"interview_id": req.InterviewID,
			"reason":       req.Reason,
		})
	}()
}

// Wait blocks until every started submission has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
