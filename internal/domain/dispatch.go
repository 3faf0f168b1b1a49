package domain

import "time"

// AssignmentRecord is a historical ticket assignment used to derive training labels.
type AssignmentRecord struct {
	TicketID    string
	AgentID     string
	CustomerID  string
	Status      TicketStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// AffinityRecord is one implicit agent/customer rating in the training corpus.
type AffinityRecord struct {
	AgentID    string
	CustomerID string
	Rating     int
}

// DispatchResult is a ranked agent recommendation.
type DispatchResult struct {
	AgentID     string   `json:"agent_id"`
	Score       float64  `json:"score"`
	Reasons     []string `json:"reasons"`
	Explanation string   `json:"explanation,omitempty"`
	CurrentLoad int      `json:"current_load"`
	MaxCapacity int      `json:"max_capacity"`
}

// ManagerStats aggregates project history for a project manager.
type ManagerStats struct {
	ActiveProjects    int
	CompletedProjects int
	FailedProjects    int
}
