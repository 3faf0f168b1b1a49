// Package dispatching ranks agents for tickets and maintains the affinity model
// behind that ranking.
package dispatching

import (
	"context"
	"errors"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

var (
	// ErrNotFound is returned by stores when a ticket, customer or agent is missing.
	ErrNotFound = errors.New("not found")
	// ErrModelUnavailable means no trained model is loaded yet.
	ErrModelUnavailable = errors.New("dispatch model unavailable")
	// ErrTicketClosed is returned by UpdateTicket when the ticket was resolved
	// after it was read.
	ErrTicketClosed = errors.New("ticket already resolved")
)

// TicketStore reads and updates tickets for dispatching.
type TicketStore interface {
	// GetTicketWithCustomer returns ErrNotFound when the ticket does not exist.
	// The customer is nil when the requester record is missing.
	GetTicketWithCustomer(ctx context.Context, id string) (*domain.Ticket, *domain.Customer, error)
	// UpdateTicket persists the assignee, status and tags only. It must not
	// touch a ticket that is already COMPLETED or FAILED and reports that case
	// as ErrTicketClosed.
	UpdateTicket(ctx context.Context, ticket *domain.Ticket) error
	ListUnassigned(ctx context.Context, limit int) ([]domain.Ticket, error)
}

// AgentStore lists agents and their resolved assignment history.
type AgentStore interface {
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ListHistoricalAssignments(ctx context.Context) ([]domain.AssignmentRecord, error)
}

// WorkloadSource counts non-terminal tickets per assignee.
type WorkloadSource interface {
	ActiveTicketCounts(ctx context.Context) (map[string]int, error)
}

// ProjectStore reports project-manager history.
type ProjectStore interface {
	ManagerStats(ctx context.Context) (map[string]domain.ManagerStats, error)
}

// DomainConfig exposes per-domain dispatch settings.
type DomainConfig interface {
	DefaultDomainID() string
	DomainIDs() []string
	StrategyName(domainID string) string
	MaxCapacity(domainID string) int
	MinTrainingRecords() int
}
