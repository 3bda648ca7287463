package workerproc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"interview-backend/internal/interviews"
	"interview-backend/internal/pipeline"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/requestid"
)

type stubProcessor struct {
	got       []queue.Message
	requestID string
	err       error
}

func (s *stubProcessor) Process(ctx context.Context, msg queue.Message) error {
	s.got = append(s.got, msg)
	s.requestID = requestid.From(ctx)
	return s.err
}

func TestParseMessageErrors(t *testing.T) {
	_, _, err := ParseMessage("   ")
	require.ErrorAs(t, err, new(ErrEmptyBody))

	_, meta, err := ParseMessage("{not json")
	var decodeErr ErrDecode
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, 9, meta.BodyLen)
	require.Len(t, meta.BodySHA, 64)

	_, _, err = ParseMessage(`{"ownerRef":"1555","requestId":"req-1"}`)
	var missing ErrMissingSource
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "req-1", missing.RequestID)
}

func TestParseMessageAcceptsRetryAndIngest(t *testing.T) {
	msg, _, err := ParseMessage(`{"interviewId":"abc","reason":"retry"}`)
	require.NoError(t, err)
	require.Equal(t, "abc", msg.InterviewID)

	msg, _, err = ParseMessage(`{"sourceMessageId":"wamid.1","mediaId":"m1"}`)
	require.NoError(t, err)
	require.Equal(t, "wamid.1", msg.SourceMessageID)
}

func TestHandleMessagePropagatesRequestID(t *testing.T) {
	proc := &stubProcessor{}
	err := HandleMessage(context.Background(), proc, `{"sourceMessageId":"wamid.1","requestId":"req-7"}`)
	require.NoError(t, err)
	require.Len(t, proc.got, 1)
	require.Equal(t, "req-7", proc.requestID)
}

func TestHandleMessageUsesParsedMessage(t *testing.T) {
	proc := &stubProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.Message{InterviewID: "from-ctx"})
	require.NoError(t, HandleMessage(ctx, proc, "ignored"))
	require.Equal(t, "from-ctx", proc.got[0].InterviewID)
	require.NotEmpty(t, proc.requestID)
}

func TestHandleMessageWrapsProcessErrors(t *testing.T) {
	proc := &stubProcessor{err: fmt.Errorf("x: %w", pipeline.ErrStageFailed)}
	err := HandleMessage(context.Background(), proc, `{"interviewId":"abc","requestId":"r"}`)
	var procErr ErrProcess
	require.ErrorAs(t, err, &procErr)
	require.Equal(t, "abc", procErr.InterviewID)
	require.True(t, procErr.Recorded())

	proc.err = errors.New("database unavailable")
	err = HandleMessage(context.Background(), proc, `{"interviewId":"abc"}`)
	require.ErrorAs(t, err, &procErr)
	require.False(t, procErr.Recorded())
}

func TestHandleMessageWithoutProcessor(t *testing.T) {
	require.Error(t, HandleMessage(context.Background(), nil, `{"interviewId":"abc"}`))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		want  queue.Disposition
		label string
	}{
		{"success", nil, queue.Ack, "completed"},
		{"empty", ErrEmptyBody{}, queue.Drop, "unrecoverable"},
		{"decode", ErrDecode{Err: errors.New("bad")}, queue.Drop, "unrecoverable"},
		{"missing", ErrMissingSource{}, queue.Drop, "unrecoverable"},
		{"recorded", ErrProcess{Err: fmt.Errorf("x: %w", pipeline.ErrStageFailed)}, queue.Ack, "failed"},
		{"transient", ErrProcess{Err: errors.New("db down")}, queue.Requeue, "retry"},
		{"unknown interview", ErrProcess{Err: interviews.ErrNotFound}, queue.Drop, "unrecoverable"},
		{"invalid record", ErrProcess{Err: fmt.Errorf("%w: x", interviews.ErrMalformed)}, queue.Drop, "unrecoverable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, label := Classify(tc.err)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.label, label)
		})
	}
}

func TestHandleMessageDropsIngestWithoutOwner(t *testing.T) {
	proc := &pipeline.Processor{Repo: interviews.NewMemoryRepo()}

	err := HandleMessage(context.Background(), proc, `{"sourceMessageId":"wamid.1","mediaId":"m1"}`)
	require.ErrorIs(t, err, interviews.ErrMalformed)

	disposition, label := Classify(err)
	require.Equal(t, queue.Drop, disposition)
	require.Equal(t, "unrecoverable", label)
}

func TestHandleMessageDropsRetryForDeletedInterview(t *testing.T) {
	proc := &pipeline.Processor{Repo: interviews.NewMemoryRepo()}

	err := HandleMessage(context.Background(), proc, `{"interviewId":"gone","ownerRef":"1555"}`)
	require.ErrorIs(t, err, interviews.ErrNotFound)

	disposition, _ := Classify(err)
	require.Equal(t, queue.Drop, disposition)
}
