// Package outbox records domain events in the same transaction as the state
// change they describe and relays them to Kafka.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope written to outbox_events. The Kafka topic equals
// EventType and the message key is AggregateID.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewJSONEvent marshals payload into an Event.
func NewJSONEvent(aggregateType, aggregateID, eventType string, payload interface{}) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}

// Record is a stored event awaiting or past publication.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}
