package domain

import (
	"errors"
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusFailed     TicketStatus = "FAILED"
)

// TagAIDispatched marks tickets assigned by the dispatching engine.
const TagAIDispatched = "AI-Dispatched"

// IsTerminal reports whether the status ends the ticket lifecycle.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusFailed
}

// ErrEmptyAssignee is returned when assigning a ticket to nobody.
var ErrEmptyAssignee = errors.New("assignee required")

// Ticket is the unit of work routed to agents.
type Ticket struct {
	ID             string
	DomainID       string
	CustomerID     string
	AssigneeID     *string
	Status         TicketStatus
	Description    string
	RequiredSkills []string
	Tags           []string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// Assign sets the assignee and moves pending tickets to ASSIGNED.
// Status and assignee change together so an ASSIGNED ticket always has an agent.
func (t *Ticket) Assign(agentID string) error {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return ErrEmptyAssignee
	}
	t.AssigneeID = &agentID
	if t.Status == "" || t.Status == TicketStatusPending {
		t.Status = TicketStatusAssigned
	}
	return nil
}

// AddTag appends tag unless it is already present.
func (t *Ticket) AddTag(tag string) {
	for _, existing := range t.Tags {
		if strings.EqualFold(existing, tag) {
			return
		}
	}
	t.Tags = append(t.Tags, tag)
}

// Clone returns a copy that shares no slices or pointers with t.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		c.AssigneeID = &id
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	c.RequiredSkills = append([]string(nil), t.RequiredSkills...)
	c.Tags = append([]string(nil), t.Tags...)
	return &c
}
