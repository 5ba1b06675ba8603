// Package queue encodes batches for the work queue. Transport
// implementations live in the rabbitmq, pubsub and memory subpackages.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JakeFAU/cc-text-pipeline/internal/pipeline"
)

var (
	// ErrClosed is returned by Receive after the consumer has shut down.
	ErrClosed = errors.New("queue closed")
	// ErrConnectionLost is returned by Receive when the broker side went
	// away without Close being called.
	ErrConnectionLost = errors.New("queue connection lost")
)

// EncodeBatch renders a batch as the JSON array carried in message bodies.
func EncodeBatch(b pipeline.Batch) ([]byte, error) {
	if b == nil {
		b = pipeline.Batch{}
	}
	body, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}
	return body, nil
}

// DecodeBatch parses a message body. Non-array bodies are rejected.
func DecodeBatch(body []byte) (pipeline.Batch, error) {
	var b pipeline.Batch
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("unmarshal batch: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("unmarshal batch: body is not a JSON array")
	}
	return b, nil
}
