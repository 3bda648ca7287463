package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type flaky struct {
	errs  []error
	calls int
}

func (f *flaky) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *flaky) Transcribe(context.Context, []byte, string) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return "text", nil
}

func (f *flaky) Analyze(context.Context, string) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return "report", nil
}

func TestRetryingRetriesTransientOnce(t *testing.T) {
	f := &flaky{errs: []error{errors.New("openai status 503")}}
	r := Retrying{Transcriber: f, Analyzer: f, Delay: time.Millisecond}

	text, err := r.Transcribe(context.Background(), []byte("a"), "chunk-001.ogg")
	if err != nil || text != "text" || f.calls != 2 {
		t.Fatalf("got %q %v after %d calls", text, err, f.calls)
	}
}

func TestRetryingGivesUpAfterSecondFailure(t *testing.T) {
	f := &flaky{errs: []error{errors.New("connection reset by peer"), errors.New("connection reset by peer")}}
	r := Retrying{Transcriber: f, Analyzer: f, Delay: time.Millisecond}

	if _, err := r.Analyze(context.Background(), "t"); err == nil || f.calls != 2 {
		t.Fatalf("expected failure after 2 calls, got %v after %d", err, f.calls)
	}
}

func TestRetryingSkipsPermanentErrors(t *testing.T) {
	f := &flaky{errs: []error{errors.New("openai error: invalid api key")}}
	r := Retrying{Transcriber: f, Analyzer: f, Delay: time.Millisecond}

	if _, err := r.Analyze(context.Background(), "t"); err == nil || f.calls != 1 {
		t.Fatalf("expected single call, got %d", f.calls)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrNotImplemented, false},
		{context.Canceled, false},
		{fmt.Errorf("wrap: %w", context.DeadlineExceeded), true},
		{errors.New("openai request timeout: Client.Timeout exceeded"), true},
		{errors.New("openai status 500"), true},
		{errors.New("status 429 rate limited"), true},
		{errors.New("invalid_request_error"), false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Fatalf("ShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
