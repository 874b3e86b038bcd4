// Package outbox implements the transactional outbox: events are written
// in the same database transaction as the state change they describe, then
// relayed to Kafka by a background loop.
package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
	CreatedAt     time.Time
}
