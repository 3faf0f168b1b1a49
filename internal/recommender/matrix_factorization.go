package recommender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// TrainingOptions tunes matrix factorization.
type TrainingOptions struct {
	Rank           int
	Epochs         int
	LearningRate   float64
	Regularization float64
	Seed           int64
}

// DefaultTrainingOptions mirrors the rank/iteration settings the dispatch model shipped with.
func DefaultTrainingOptions() TrainingOptions {
	return TrainingOptions{
		Rank:           10,
		Epochs:         20,
		LearningRate:   0.05,
		Regularization: 0.02,
		Seed:           1,
	}
}

// MatrixFactorizationTrainer fits a biased matrix factorization with SGD.
type MatrixFactorizationTrainer struct {
	opts TrainingOptions
}

// NewMatrixFactorizationTrainer creates a trainer, filling zero options with defaults.
func NewMatrixFactorizationTrainer(opts TrainingOptions) *MatrixFactorizationTrainer {
	def := DefaultTrainingOptions()
	if opts.Rank <= 0 {
		opts.Rank = def.Rank
	}
	if opts.Epochs <= 0 {
		opts.Epochs = def.Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	if opts.Regularization < 0 {
		opts.Regularization = def.Regularization
	}
	return &MatrixFactorizationTrainer{opts: opts}
}

// MatrixFactorization is a trained model. It is never mutated after training.
type MatrixFactorization struct {
	Rank            int            `json:"rank"`
	GlobalMean      float64        `json:"global_mean"`
	AgentIndex      map[string]int `json:"agent_index"`
	CustomerIndex   map[string]int `json:"customer_index"`
	AgentBias       []float64      `json:"agent_bias"`
	CustomerBias    []float64      `json:"customer_bias"`
	AgentFactors    [][]float64    `json:"agent_factors"`
	CustomerFactors [][]float64    `json:"customer_factors"`
}

// Train fits a model. Identical record slices yield identical models.
func (t *MatrixFactorizationTrainer) Train(ctx context.Context, records []domain.AffinityRecord) (Model, error) {
	if len(records) == 0 {
		return nil, ErrEmptyCorpus
	}
	rank := t.opts.Rank
	m := &MatrixFactorization{
		Rank:          rank,
		AgentIndex:    make(map[string]int),
		CustomerIndex: make(map[string]int),
	}

	var sum float64
	for _, r := range records {
		if _, ok := m.AgentIndex[r.AgentID]; !ok {
			m.AgentIndex[r.AgentID] = len(m.AgentIndex)
		}
		if _, ok := m.CustomerIndex[r.CustomerID]; !ok {
			m.CustomerIndex[r.CustomerID] = len(m.CustomerIndex)
		}
		sum += float64(r.Rating)
	}
	m.GlobalMean = sum / float64(len(records))

	rng := rand.New(rand.NewSource(t.opts.Seed))
	m.AgentBias = make([]float64, len(m.AgentIndex))
	m.CustomerBias = make([]float64, len(m.CustomerIndex))
	m.AgentFactors = randomFactors(rng, len(m.AgentIndex), rank)
	m.CustomerFactors = randomFactors(rng, len(m.CustomerIndex), rank)

	lr := t.opts.LearningRate
	reg := t.opts.Regularization
	for epoch := 0; epoch < t.opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, r := range records {
			a := m.AgentIndex[r.AgentID]
			c := m.CustomerIndex[r.CustomerID]
			errTerm := float64(r.Rating) - m.raw(a, c)

			m.AgentBias[a] += lr * (errTerm - reg*m.AgentBias[a])
			m.CustomerBias[c] += lr * (errTerm - reg*m.CustomerBias[c])
			pa := m.AgentFactors[a]
			qc := m.CustomerFactors[c]
			for k := 0; k < rank; k++ {
				p, q := pa[k], qc[k]
				pa[k] += lr * (errTerm*q - reg*p)
				qc[k] += lr * (errTerm*p - reg*q)
			}
		}
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode restores a model produced by Encode.
func (t *MatrixFactorizationTrainer) Decode(data []byte) (Model, error) {
	var m MatrixFactorization
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode matrix factorization: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Predict returns the clamped predicted rating for a known pair.
func (m *MatrixFactorization) Predict(agentID, customerID string) (float64, bool) {
	a, ok := m.AgentIndex[agentID]
	if !ok {
		return 0, false
	}
	c, ok := m.CustomerIndex[customerID]
	if !ok {
		return 0, false
	}
	return clamp(m.raw(a, c), MinRating, MaxRating), true
}

// Encode serializes the model as JSON.
func (m *MatrixFactorization) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func (m *MatrixFactorization) raw(a, c int) float64 {
	pred := m.GlobalMean + m.AgentBias[a] + m.CustomerBias[c]
	pa := m.AgentFactors[a]
	qc := m.CustomerFactors[c]
	for k := 0; k < m.Rank; k++ {
		pred += pa[k] * qc[k]
	}
	return pred
}

func (m *MatrixFactorization) validate() error {
	if m.Rank <= 0 {
		return errors.New("matrix factorization: rank must be positive")
	}
	if len(m.AgentBias) != len(m.AgentIndex) || len(m.AgentFactors) != len(m.AgentIndex) {
		return errors.New("matrix factorization: agent dimensions mismatch")
	}
	if len(m.CustomerBias) != len(m.CustomerIndex) || len(m.CustomerFactors) != len(m.CustomerIndex) {
		return errors.New("matrix factorization: customer dimensions mismatch")
	}
	for _, idx := range m.AgentIndex {
		if idx < 0 || idx >= len(m.AgentFactors) || len(m.AgentFactors[idx]) != m.Rank {
			return errors.New("matrix factorization: agent factor out of range")
		}
	}
	for _, idx := range m.CustomerIndex {
		if idx < 0 || idx >= len(m.CustomerFactors) || len(m.CustomerFactors[idx]) != m.Rank {
			return errors.New("matrix factorization: customer factor out of range")
		}
	}
	if math.IsNaN(m.GlobalMean) || math.IsInf(m.GlobalMean, 0) {
		return errors.New("matrix factorization: diverged")
	}
	rows := append(append([][]float64{m.AgentBias, m.CustomerBias}, m.AgentFactors...), m.CustomerFactors...)
	for _, row := range rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.New("matrix factorization: diverged")
			}
		}
	}
	return nil
}

func randomFactors(rng *rand.Rand, rows, rank int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		row := make([]float64, rank)
		for k := range row {
			row[k] = (rng.Float64() - 0.5) * 0.1
		}
		out[i] = row
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
