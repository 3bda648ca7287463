package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"interview-backend/internal/shared/requestid"
	"interview-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

// Retrying retries each provider call once after a short pause when the
// first attempt fails with a transient error.
type Retrying struct {
	Transcriber Transcriber
	Analyzer    Analyzer
	Delay       time.Duration
}

// Transcribe calls the wrapped transcriber, retrying once on transient errors.
func (r Retrying) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	text, err := r.Transcriber.Transcribe(ctx, audio, filename)
	if err == nil || !ShouldRetry(err) {
		return text, err
	}
	if err := r.pause(ctx, "transcribe", err); err != nil {
		return "", err
	}
	return r.Transcriber.Transcribe(ctx, audio, filename)
}

// Analyze calls the wrapped analyzer, retrying once on transient errors.
func (r Retrying) Analyze(ctx context.Context, transcript string) (string, error) {
	report, err := r.Analyzer.Analyze(ctx, transcript)
	if err == nil || !ShouldRetry(err) {
		return report, err
	}
	if err := r.pause(ctx, "analyze", err); err != nil {
		return "", err
	}
	return r.Analyzer.Analyze(ctx, transcript)
}

func (r Retrying) pause(ctx context.Context, op string, cause error) error {
	delay := r.Delay
	if delay <= 0 {
		delay = retryBaseDelay
	}
	telemetry.Warn("llm.retry", map[string]any{
		"request_id": requestid.From(ctx),
		"op":         op,
		"attempt":    1,
		"error":      cause.Error(),
	})
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShouldRetry reports whether err looks like a transient provider or network failure.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrNotImplemented) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status 5") || strings.Contains(msg, "server_error") || strings.Contains(msg, "status 429") {
		return true
	}
	if strings.Contains(msg, "request timeout") {
		return true
	}
	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "tls handshake timeout", "unexpected eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

var (
	_ Transcriber = Retrying{}
	_ Analyzer    = Retrying{}
)
