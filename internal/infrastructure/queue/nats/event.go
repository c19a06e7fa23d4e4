package nats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ingestedEvent is the message body on the ingestion subject.
type ingestedEvent struct {
	DocumentID  string    `json:"document_id"`
	PublishedAt time.Time `json:"published_at"`
}

func encodeEvent(documentID string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, errors.New("nats publish: document id is required")
	}
	payload, err := json.Marshal(ingestedEvent{DocumentID: documentID, PublishedAt: at})
	if err != nil {
		return nil, fmt.Errorf("encode ingestion event: %w", err)
	}
	return payload, nil
}

// decodeEvent also accepts a bare document id, as published by older producers.
func decodeEvent(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", errors.New("empty ingestion event")
	}
	if trimmed[0] != '{' {
		return string(trimmed), nil
	}
	var event ingestedEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return "", fmt.Errorf("decode ingestion event: %w", err)
	}
	if strings.TrimSpace(event.DocumentID) == "" {
		return "", errors.New("ingestion event has no document id")
	}
	return event.DocumentID, nil
}
