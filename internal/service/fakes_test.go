package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/dispatch-service/internal/dispatching"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/recommender"
)

// memoryTickets is a TicketStore and WorkloadSource over in-memory tickets.
type memoryTickets struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	customers map[string]*domain.Customer
	updateErr error
	updates   int

	// beforeUpdate runs against the stored row ahead of each write, standing
	// in for a concurrent change by another writer.
	beforeUpdate func(stored *domain.Ticket)
}

func newMemoryTickets() *memoryTickets {
	return &memoryTickets{tickets: map[string]*domain.Ticket{}, customers: map[string]*domain.Customer{}}
}

func (m *memoryTickets) add(t domain.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t.Clone()
}

func (m *memoryTickets) addCustomer(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = &c
}

func (m *memoryTickets) get(id string) *domain.Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickets[id].Clone()
}

func (m *memoryTickets) GetTicketWithCustomer(_ context.Context, id string) (*domain.Ticket, *domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, nil, fmt.Errorf("ticket %s: %w", id, dispatching.ErrNotFound)
	}
	var customer *domain.Customer
	if c, ok := m.customers[t.CustomerID]; ok {
		cc := *c
		customer = &cc
	}
	return t.Clone(), customer, nil
}

func (m *memoryTickets) UpdateTicket(_ context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.tickets[t.ID]
	if !ok {
		return dispatching.ErrNotFound
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate(stored)
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("ticket %s: %w", t.ID, dispatching.ErrTicketClosed)
	}
	m.updates++
	next := t.Clone()
	stored.AssigneeID = next.AssigneeID
	stored.Status = next.Status
	stored.Tags = next.Tags
	return nil
}

func (m *memoryTickets) ListUnassigned(_ context.Context, limit int) ([]domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Ticket
	for _, t := range m.tickets {
		if t.AssigneeID == nil && !t.Status.IsTerminal() {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryTickets) ActiveTicketCounts(context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, t := range m.tickets {
		if t.AssigneeID != nil && !t.Status.IsTerminal() {
			counts[*t.AssigneeID]++
		}
	}
	return counts, nil
}

type fakeAgents struct {
	agents  []domain.Agent
	history []domain.AssignmentRecord
}

func (f *fakeAgents) ListAgents(context.Context) ([]domain.Agent, error) { return f.agents, nil }

func (f *fakeAgents) ListHistoricalAssignments(context.Context) ([]domain.AssignmentRecord, error) {
	return f.history, nil
}

type fakeProjects map[string]domain.ManagerStats

func (f fakeProjects) ManagerStats(context.Context) (map[string]domain.ManagerStats, error) {
	return f, nil
}

type fakeDomains struct {
	strategy   string
	max        int
	minRecords int
}

func (f fakeDomains) DefaultDomainID() string    { return "it" }
func (f fakeDomains) DomainIDs() []string        { return []string{"it"} }
func (f fakeDomains) StrategyName(string) string { return f.strategy }
func (f fakeDomains) MaxCapacity(string) int     { return f.max }
func (f fakeDomains) MinTrainingRecords() int    { return f.minRecords }

type flatModel struct {
	Value float64 `json:"value"`
}

func (m flatModel) Predict(string, string) (float64, bool) { return m.Value, true }
func (m flatModel) Encode() ([]byte, error)                { return json.Marshal(m) }

type flatTrainer struct{ value float64 }

func (t flatTrainer) Train(context.Context, []domain.AffinityRecord) (recommender.Model, error) {
	return flatModel{Value: t.value}, nil
}

func (t flatTrainer) Decode(data []byte) (recommender.Model, error) {
	var m flatModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Value == 0 {
		return nil, errors.New("empty model")
	}
	return m, nil
}

func resolvedHistory(n int) []domain.AssignmentRecord {
	created := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	done := created.Add(time.Hour)
	out := make([]domain.AssignmentRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.AssignmentRecord{
			TicketID:    fmt.Sprintf("h%d", i),
			AgentID:     "agent1",
			CustomerID:  fmt.Sprintf("c%d", i),
			Status:      domain.TicketStatusCompleted,
			CreatedAt:   created,
			CompletedAt: &done,
		})
	}
	return out
}
