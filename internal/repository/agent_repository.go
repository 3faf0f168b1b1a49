package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domain"
)

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool) dispatching.AgentStore {
	return &agentRepository{pool: pool}
}

// ListAgents returns active agents ordered by ID.
func (r *agentRepository) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	const query = `
        SELECT id, name, team, languages, region, specializations, max_capacity, can_manage_projects
        FROM agents
        WHERE active
        ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Team,
			&agent.Languages,
			&agent.Region,
			&agent.Specializations,
			&agent.MaxCapacity,
			&agent.CanManageProjects,
		); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}

// ListHistoricalAssignments returns assigned tickets that reached COMPLETED or FAILED.
func (r *agentRepository) ListHistoricalAssignments(ctx context.Context) ([]domain.AssignmentRecord, error) {
	const query = `
        SELECT id, assignee_id, customer_id, status, created_at, completed_at
        FROM tickets
        WHERE assignee_id IS NOT NULL AND status IN ('COMPLETED','FAILED')
        ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AssignmentRecord
	for rows.Next() {
		var rec domain.AssignmentRecord
		if err := rows.Scan(
			&rec.TicketID,
			&rec.AgentID,
			&rec.CustomerID,
			&rec.Status,
			&rec.CreatedAt,
			&rec.CompletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
