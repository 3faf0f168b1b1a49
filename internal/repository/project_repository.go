package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domain"
)

type projectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository instantiates the repository.
func NewProjectRepository(pool *pgxpool.Pool) dispatching.ProjectStore {
	return &projectRepository{pool: pool}
}

func (r *projectRepository) ManagerStats(ctx context.Context) (map[string]domain.ManagerStats, error) {
	const query = `
        SELECT manager_id,
               COUNT(*) FILTER (WHERE status='ACTIVE'),
               COUNT(*) FILTER (WHERE status='COMPLETED'),
               COUNT(*) FILTER (WHERE status='FAILED')
        FROM projects
        WHERE manager_id IS NOT NULL
        GROUP BY manager_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]domain.ManagerStats)
	for rows.Next() {
		var (
			managerID string
			s         domain.ManagerStats
		)
		if err := rows.Scan(&managerID, &s.ActiveProjects, &s.CompletedProjects, &s.FailedProjects); err != nil {
			return nil, err
		}
		stats[managerID] = s
	}
	return stats, rows.Err()
}
