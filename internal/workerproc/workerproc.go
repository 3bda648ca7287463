package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"interview-backend/internal/dispatch"
	"interview-backend/internal/interviews"
	"interview-backend/internal/pipeline"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/requestid"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingSource indicates a message that names neither an interview nor a source message.
type ErrMissingSource struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingSource) Error() string { return "missing interview id and source message id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	InterviewID     string
	SourceMessageID string
	RequestID       string
	Err             error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process interview"
	}
	return "process interview: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Recorded reports whether the pipeline already stored the failure on the
// interview, in which case the message can be acknowledged.
func (e ErrProcess) Recorded() bool {
	return errors.Is(e.Err, pipeline.ErrStageFailed)
}

// Unresolvable reports whether the message names an interview that cannot
// exist: the record was deleted or the payload fails record validation.
// Redelivery would fail the same way.
func (e ErrProcess) Unresolvable() bool {
	return errors.Is(e.Err, interviews.ErrNotFound) || errors.Is(e.Err, interviews.ErrMalformed)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.InterviewID) == "" && strings.TrimSpace(msg.SourceMessageID) == "" {
		return msg, meta, ErrMissingSource{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, processor dispatch.MessageProcessor, body string) error {
	if processor == nil {
		return errors.New("pipeline not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(msg.InterviewID) == "" && strings.TrimSpace(msg.SourceMessageID) == "" {
		return ErrMissingSource{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	if msg.RequestID == "" {
		msg.RequestID = requestid.New()
	}
	if err := processor.Process(requestid.With(ctx, msg.RequestID), msg); err != nil {
		return ErrProcess{
			InterviewID:     msg.InterviewID,
			SourceMessageID: msg.SourceMessageID,
			RequestID:       msg.RequestID,
			Err:             err,
		}
	}
	return nil
}

// Classify maps a HandleMessage result to how the delivery should be settled
// and an outcome label for metrics. Malformed payloads and messages for
// unknown or invalid interviews are dropped; failures already recorded on the interview are acknowledged; anything else is left
// for redelivery.
func Classify(err error) (queue.Disposition, string) {
	if err == nil {
		return queue.Ack, "completed"
	}
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		missing ErrMissingSource
		proc    ErrProcess
	)
	switch {
	case errors.As(err, &empty), errors.As(err, &decode), errors.As(err, &missing):
		return queue.Drop, "unrecoverable"
	case errors.As(err, &proc) && proc.Unresolvable():
		return queue.Drop, "unrecoverable"
	case errors.As(err, &proc) && proc.Recorded():
		return queue.Ack, "failed"
	default:
		return queue.Requeue, "retry"
	}
}
