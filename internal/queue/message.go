package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current payload version.
const MessageVersion = 1

const (
	// ReasonIngest marks the first submission of a freshly received voice message.
	ReasonIngest = "ingest"
	// ReasonRetry marks a resubmission by the recovery engine.
	ReasonRetry = "retry"
)

// Message describes the original voice message the pipeline should process.
type Message struct {
	InterviewID     string `json:"interviewId,omitempty"`
	OwnerRef        string `json:"ownerRef"`
	Platform        string `json:"platform,omitempty"`
	SourceMessageID string `json:"sourceMessageId"`
	MediaID         string `json:"mediaId,omitempty"`
	Reason          string `json:"reason,omitempty"`
	RequestID       string `json:"requestId"`
	EnqueuedAt      string `json:"enqueuedAt"`
	Version         int    `json:"version"`
}

// Stamp fills EnqueuedAt and Version when unset.
func (m Message) Stamp(now time.Time) Message {
	if m.EnqueuedAt == "" {
		m.EnqueuedAt = now.UTC().Format(time.RFC3339)
	}
	if m.Version == 0 {
		m.Version = MessageVersion
	}
	return m
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
