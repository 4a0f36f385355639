package telemetry

import (
	"context"
	"log"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// LifecycleEmitter publishes connection lifecycle events for fleet-level
// visibility into client sessions.
type LifecycleEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type LifecycleEnvelope struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	OccurredAt    string           `json:"occurred_at"`
	Service       string           `json:"service"`
	Environment   string           `json:"environment"`
	Payload       LifecyclePayload `json:"payload"`
}

type LifecyclePayload struct {
	Event      string `json:"event"`
	GroupID    string `json:"group_id"`
	ConnID     string `json:"conn_id"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

func NewLifecycleEmitter(publisher Publisher, routingKey, service, environment string) *LifecycleEmitter {
	return &LifecycleEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one lifecycle event. Safe on a nil emitter.
func (e *LifecycleEmitter) Emit(ctx context.Context, event, groupID, connID string, duration time.Duration, reason string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := LifecycleEnvelope{
		SchemaVersion: 1,
		EventType:     "ws_events",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Payload: LifecyclePayload{
			Event:      event,
			GroupID:    groupID,
			ConnID:     connID,
			DurationMs: duration.Milliseconds(),
			Reason:     reason,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("lifecycle publish failed: %v", err)
	}
}
