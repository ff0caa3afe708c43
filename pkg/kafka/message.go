package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewline/atlas/pkg/models"
)

// IncomingMessage is a consumed Kafka message plus its parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

// EventType returns the event_type header, falling back to the payload's
// type field
func (m *IncomingMessage) EventType() string {
	if t, ok := m.Headers["event_type"]; ok {
		return t
	}
	var envelope struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(m.Value, &envelope)
	return envelope.Type
}

// ParseEntityEvent decodes the payload as an entity lifecycle event and
// checks the fields the projection cannot proceed without
func (m *IncomingMessage) ParseEntityEvent() (*models.EntityEvent, error) {
	var event models.EntityEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to parse entity event: %w", err)
	}
	if event.Type == "" {
		event.Type = m.Headers["event_type"]
	}
	if event.TenantID == "" || event.EntityID == "" || event.EntityType == "" {
		return nil, fmt.Errorf("entity event missing tenant_id, entity_id or entity_type")
	}
	return &event, nil
}
