package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketDispatched EventType = "ticket_dispatched"
	EventTicketResolved   EventType = "ticket_resolved"
	EventModelRetrained   EventType = "model_retrained"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketDispatchedPayload payload.
type TicketDispatchedPayload struct {
	AgentID         string   `json:"agent_id"`
	PreviousAgentID string   `json:"previous_agent_id,omitempty"`
	DomainID        string   `json:"domain_id"`
	Score           float64  `json:"score"`
	Reasons         []string `json:"reasons,omitempty"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

// ModelRetrainedPayload payload.
type ModelRetrainedPayload struct {
	DomainID string `json:"domain_id"`
	Outcome  string `json:"outcome"`
	Version  int    `json:"version,omitempty"`
}
