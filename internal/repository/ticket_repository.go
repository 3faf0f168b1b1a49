package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domain"
)

// TicketRepository encapsulates ticket persistence for dispatching.
type TicketRepository interface {
	dispatching.TicketStore
	dispatching.WorkloadSource
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) GetTicketWithCustomer(ctx context.Context, id string) (*domain.Ticket, *domain.Customer, error) {
	const query = `
        SELECT t.id, t.domain_id, t.customer_id, t.assignee_id, t.status, t.description,
               t.required_skills, t.tags, t.created_at, t.completed_at,
               c.id, c.language, c.region
        FROM tickets t
        LEFT JOIN customers c ON c.id = t.customer_id
        WHERE t.id=$1`

	var (
		ticket         domain.Ticket
		customerID     *string
		customerLang   *string
		customerRegion *string
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.DomainID,
		&ticket.CustomerID,
		&ticket.AssigneeID,
		&ticket.Status,
		&ticket.Description,
		&ticket.RequiredSkills,
		&ticket.Tags,
		&ticket.CreatedAt,
		&ticket.CompletedAt,
		&customerID,
		&customerLang,
		&customerRegion,
	); err != nil {
		return nil, nil, notFound(err)
	}

	if customerID == nil {
		return &ticket, nil, nil
	}
	return &ticket, &domain.Customer{
		ID:       *customerID,
		Language: deref(customerLang),
		Region:   deref(customerRegion),
	}, nil
}

// UpdateTicket writes the dispatch-owned columns. Resolved tickets are never
// reopened, even when the caller read them while they were still open.
func (r *ticketRepository) UpdateTicket(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assignee_id=$1, status=$2, tags=$3, updated_at=NOW()
        WHERE id=$4 AND status NOT IN ('COMPLETED','FAILED')`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.AssigneeID,
		ticket.Status,
		ticket.Tags,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
		return err
	}
	return staleUpdate(ticket.ID, exists)
}

// ListUnassigned returns open tickets without an assignee, oldest first.
func (r *ticketRepository) ListUnassigned(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, domain_id, customer_id, assignee_id, status, description,
               required_skills, tags, created_at, completed_at
        FROM tickets
        WHERE assignee_id IS NULL AND status NOT IN ('COMPLETED','FAILED')
        ORDER BY created_at ASC
        LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ActiveTicketCounts(ctx context.Context) (map[string]int, error) {
	const query = `
        SELECT assignee_id, COUNT(*)
        FROM tickets
        WHERE assignee_id IS NOT NULL AND status NOT IN ('COMPLETED','FAILED')
        GROUP BY assignee_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			agentID string
			count   int
		)
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, err
		}
		counts[agentID] = count
	}
	return counts, rows.Err()
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.DomainID,
			&ticket.CustomerID,
			&ticket.AssigneeID,
			&ticket.Status,
			&ticket.Description,
			&ticket.RequiredSkills,
			&ticket.Tags,
			&ticket.CreatedAt,
			&ticket.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

// staleUpdate explains an UPDATE that matched no row.
func staleUpdate(id string, exists bool) error {
	if !exists {
		return notFound(pgx.ErrNoRows)
	}
	return fmt.Errorf("ticket %s: %w", id, dispatching.ErrTicketClosed)
}

// notFound translates pgx.ErrNoRows into dispatching.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %w", dispatching.ErrNotFound, err)
	}
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
