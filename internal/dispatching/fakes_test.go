package dispatching

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/recommender"
)

type fakeAgents struct {
	mu      sync.Mutex
	agents  []domain.Agent
	history []domain.AssignmentRecord
	err     error
}

func (f *fakeAgents) ListAgents(context.Context) ([]domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Agent(nil), f.agents...), f.err
}

func (f *fakeAgents) ListHistoricalAssignments(context.Context) ([]domain.AssignmentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AssignmentRecord(nil), f.history...), f.err
}

func (f *fakeAgents) setHistory(h []domain.AssignmentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = h
}

type fakeWorkload map[string]int

func (f fakeWorkload) ActiveTicketCounts(context.Context) (map[string]int, error) {
	out := make(map[string]int, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out, nil
}

type fakeDomains struct {
	defaultID  string
	strategies map[string]string
	max        int
	minRecords int
}

func (f fakeDomains) DefaultDomainID() string { return f.defaultID }

func (f fakeDomains) DomainIDs() []string {
	ids := []string{}
	for id := range f.strategies {
		ids = append(ids, id)
	}
	return ids
}

func (f fakeDomains) StrategyName(domainID string) string { return f.strategies[domainID] }
func (f fakeDomains) MaxCapacity(string) int              { return f.max }
func (f fakeDomains) MinTrainingRecords() int             { return f.minRecords }

// constModel predicts the same rating for every known agent.
type constModel struct {
	Value float64         `json:"value"`
	Known map[string]bool `json:"known,omitempty"`
}

func (m constModel) Predict(agentID, _ string) (float64, bool) {
	if m.Known != nil && !m.Known[agentID] {
		return 0, false
	}
	return m.Value, true
}

func (m constModel) Encode() ([]byte, error) { return json.Marshal(m) }

// constTrainer decodes constModel payloads. When started is set, Train signals
// it and then waits for release or cancellation.
type constTrainer struct {
	value   float64
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (t *constTrainer) Train(ctx context.Context, records []domain.AffinityRecord) (recommender.Model, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	if t.started != nil {
		t.started <- struct{}{}
		select {
		case <-t.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return constModel{Value: t.value}, nil
}

func (t *constTrainer) Decode(data []byte) (recommender.Model, error) {
	var m constModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Value == 0 {
		return nil, errors.New("empty model")
	}
	return m, nil
}

func (t *constTrainer) trainCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
