package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domain"
)

// ProjectManagerConfig holds the manager scoring policy.
type ProjectManagerConfig struct {
	MaxProjectsPerManager int
	WorkloadWeight        float64
	SuccessWeight         float64
}

// DefaultProjectManagerConfig returns the 5 projects / 60% workload / 40% success policy.
func DefaultProjectManagerConfig() ProjectManagerConfig {
	return ProjectManagerConfig{MaxProjectsPerManager: 5, WorkloadWeight: 0.6, SuccessWeight: 0.4}
}

const coldStartSuccessRate = 0.5

// ProjectManagerService recommends a project manager from workload and track record.
type ProjectManagerService struct {
	cfg      ProjectManagerConfig
	agents   dispatching.AgentStore
	projects dispatching.ProjectStore
	workload *dispatching.WorkloadTracker
	logger   *zap.Logger
}

// ProjectManagerDependencies bundles collaborators.
type ProjectManagerDependencies struct {
	Agents   dispatching.AgentStore
	Projects dispatching.ProjectStore
	Workload *dispatching.WorkloadTracker
	Logger   *zap.Logger
}

// NewProjectManagerService creates the service.
func NewProjectManagerService(cfg ProjectManagerConfig, deps ProjectManagerDependencies) *ProjectManagerService {
	def := DefaultProjectManagerConfig()
	if cfg.MaxProjectsPerManager <= 0 {
		cfg.MaxProjectsPerManager = def.MaxProjectsPerManager
	}
	if cfg.WorkloadWeight == 0 && cfg.SuccessWeight == 0 {
		cfg.WorkloadWeight, cfg.SuccessWeight = def.WorkloadWeight, def.SuccessWeight
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectManagerService{
		cfg:      cfg,
		agents:   deps.Agents,
		projects: deps.Projects,
		workload: deps.Workload,
		logger:   logger,
	}
}

// Recommend returns the best manager. When every manager is at capacity it
// falls back to the least-loaded agent overall. ok is false only when there
// are no agents at all.
func (s *ProjectManagerService) Recommend(ctx context.Context) (domain.DispatchResult, bool, error) {
	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		return domain.DispatchResult{}, false, fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		s.logger.Warn("no employees found for project manager recommendation")
		return domain.DispatchResult{}, false, nil
	}
	stats, err := s.projects.ManagerStats(ctx)
	if err != nil {
		return domain.DispatchResult{}, false, fmt.Errorf("manager stats: %w", err)
	}

	scored := s.score(managerPool(agents), stats)
	if len(scored) > 0 {
		best := scored[0]
		s.logger.Info("recommended project manager",
			zap.String("agent_id", best.AgentID),
			zap.Float64("score", best.Score))
		return best, true, nil
	}

	s.logger.Warn("all project managers at capacity, using least-loaded agent")
	loads, err := s.workload.ActiveCounts(ctx)
	if err != nil {
		return domain.DispatchResult{}, false, err
	}
	return leastLoaded(agents, loads), true, nil
}

func (s *ProjectManagerService) score(managers []domain.Agent, stats map[string]domain.ManagerStats) []domain.DispatchResult {
	limit := s.cfg.MaxProjectsPerManager
	out := make([]domain.DispatchResult, 0, len(managers))
	for _, m := range managers {
		st := stats[m.ID]
		if st.ActiveProjects >= limit {
			continue
		}
		workloadScore := 1 - float64(st.ActiveProjects)/float64(limit)
		successRate := coldStartSuccessRate
		if resolved := st.CompletedProjects + st.FailedProjects; resolved > 0 {
			successRate = float64(st.CompletedProjects) / float64(resolved)
		}
		score := s.cfg.WorkloadWeight*workloadScore + s.cfg.SuccessWeight*successRate

		s.logger.Debug("scored project manager",
			zap.String("agent_id", m.ID),
			zap.Float64("score", score),
			zap.Float64("workload", workloadScore),
			zap.Float64("success", successRate))

		out = append(out, domain.DispatchResult{
			AgentID: m.ID,
			Score:   score,
			Reasons: []string{
				fmt.Sprintf("active projects: %d/%d", st.ActiveProjects, limit),
				fmt.Sprintf("success rate: %.2f", successRate),
			},
			CurrentLoad: st.ActiveProjects,
			MaxCapacity: limit,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].CurrentLoad != out[j].CurrentLoad {
			return out[i].CurrentLoad < out[j].CurrentLoad
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}

// managerPool returns agents flagged as project managers, or everyone when nobody is flagged.
func managerPool(agents []domain.Agent) []domain.Agent {
	var flagged []domain.Agent
	for _, a := range agents {
		if a.CanManageProjects {
			flagged = append(flagged, a)
		}
	}
	if len(flagged) == 0 {
		return agents
	}
	return flagged
}

func leastLoaded(agents []domain.Agent, loads map[string]int) domain.DispatchResult {
	best := agents[0]
	for _, a := range agents[1:] {
		la, lb := loads[a.ID], loads[best.ID]
		if la < lb || (la == lb && a.ID < best.ID) {
			best = a
		}
	}
	return domain.DispatchResult{
		AgentID:     best.ID,
		Reasons:     []string{"fallback: least-loaded agent", fmt.Sprintf("active tickets: %d", loads[best.ID])},
		CurrentLoad: loads[best.ID],
	}
}
