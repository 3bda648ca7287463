package llm

import (
	"context"
	"errors"
)

// Transcriber turns an audio chunk into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Analyzer produces a structured report from a full interview transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (string, error)
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is used when no provider is configured. Every call fails,
// which sends the interview down the normal failure and retry path.
type PlaceholderClient struct{}

// Transcribe returns ErrNotImplemented.
func (PlaceholderClient) Transcribe(context.Context, []byte, string) (string, error) {
	return "", ErrNotImplemented
}

// Analyze returns ErrNotImplemented.
func (PlaceholderClient) Analyze(context.Context, string) (string, error) {
	return "", ErrNotImplemented
}

var (
	_ Transcriber = PlaceholderClient{}
	_ Analyzer    = PlaceholderClient{}
)
