package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeAutoDispatch TicketChangeType = "AUTO_DISPATCH"
)

// ChangedByDispatchEngine identifies entries written by the engine rather than a person.
const ChangedByDispatchEngine = "dispatch-engine"

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string           `json:"id"`
	TicketID   string           `json:"ticket_id"`
	ChangedBy  string           `json:"changed_by"`
	ChangeType TicketChangeType `json:"change_type"`
	OldValue   map[string]any   `json:"old_value,omitempty"`
	NewValue   map[string]any   `json:"new_value,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
