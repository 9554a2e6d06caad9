package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type correlationKey struct{}

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	SubmissionID  int64                  `json:"submission_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a fresh ID and correlation ID
func NewEvent(eventType Type, submissionID int64, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, submissionID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, submissionID int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SubmissionID:  submissionID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// FromContext creates an event correlated with the request carried by ctx,
// falling back to a new correlation ID
func FromContext(ctx context.Context, eventType Type, submissionID int64, payload map[string]interface{}) *Event {
	if id := CorrelationID(ctx); id != "" {
		return NewEventWithCorrelation(eventType, submissionID, payload, id)
	}
	return NewEvent(eventType, submissionID, payload)
}

// WithCorrelationID stores a correlation ID (usually the request ID) in ctx
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID stored in ctx, if any
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadStrings retrieves a string slice from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case []string:
			return v
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}
