package queue

import (
	"reflect"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		InterviewID:     "int-123",
		OwnerRef:        "15550001111",
		Platform:        "whatsapp",
		SourceMessageID: "wamid.abc",
		MediaID:         "media-9",
		Reason:          ReasonRetry,
		RequestID:       "request-456",
		EnqueuedAt:      "2026-01-30T22:00:00Z",
		Version:         1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestStampKeepsExistingValues(t *testing.T) {
	now := time.Date(2026, 1, 30, 22, 0, 0, 0, time.UTC)
	got := Message{}.Stamp(now)
	if got.EnqueuedAt != "2026-01-30T22:00:00Z" || got.Version != MessageVersion {
		t.Fatalf("unexpected stamp: %+v", got)
	}
	kept := Message{EnqueuedAt: "earlier", Version: 7}.Stamp(now)
	if kept.EnqueuedAt != "earlier" || kept.Version != 7 {
		t.Fatalf("expected existing values kept, got %+v", kept)
	}
}
