package dispatch

import (
	"context"
	"time"

	"interview-backend/internal/queue"
	"interview-backend/internal/shared/requestid"
)

// QueueSubmitter publishes requests to a queue consumed by workers.
type QueueSubmitter struct {
	Client queue.Client
	Now    func() time.Time
}

// Submit sends the request as a queue message.
func (s QueueSubmitter) Submit(ctx context.Context, req Request) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	id := requestid.From(ctx)
	if id == "" {
		id = requestid.New()
	}
	return s.Client.Send(ctx, req.Message(id, now()))
}

// MessageProcessor runs the pipeline for one message.
type MessageProcessor interface {
	Process(ctx context.Context, msg queue.Message) error
}

// InlineSubmitter runs the pipeline in the submitting process. It suits
// single-binary deployments without a queue.
type InlineSubmitter struct {
	Processor MessageProcessor
}

// Submit processes the request synchronously.
func (s InlineSubmitter) Submit(ctx context.Context, req Request) error {
	id := requestid.From(ctx)
	if id == "" {
		id = requestid.New()
		ctx = requestid.With(ctx, id)
	}
	return s.Processor.Process(ctx, req.Message(id, time.Now()))
}
