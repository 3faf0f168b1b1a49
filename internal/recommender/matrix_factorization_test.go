package recommender

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

func sampleRecords() []domain.AffinityRecord {
	return []domain.AffinityRecord{
		{AgentID: "a1", CustomerID: "c1", Rating: 5},
		{AgentID: "a1", CustomerID: "c2", Rating: 4},
		{AgentID: "a2", CustomerID: "c1", Rating: 1},
		{AgentID: "a2", CustomerID: "c2", Rating: 2},
		{AgentID: "a3", CustomerID: "c3", Rating: 3},
	}
}

func TestTrainIsDeterministic(t *testing.T) {
	trainer := NewMatrixFactorizationTrainer(DefaultTrainingOptions())

	m1, err := trainer.Train(context.Background(), sampleRecords())
	require.NoError(t, err)
	m2, err := trainer.Train(context.Background(), sampleRecords())
	require.NoError(t, err)

	b1, err := m1.Encode()
	require.NoError(t, err)
	b2, err := m2.Encode()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestTrainLearnsPreference(t *testing.T) {
	trainer := NewMatrixFactorizationTrainer(TrainingOptions{Epochs: 200, Seed: 7})
	m, err := trainer.Train(context.Background(), sampleRecords())
	require.NoError(t, err)

	good, ok := m.Predict("a1", "c1")
	require.True(t, ok)
	bad, ok := m.Predict("a2", "c1")
	require.True(t, ok)
	assert.Greater(t, good, bad)
	assert.GreaterOrEqual(t, bad, MinRating)
	assert.LessOrEqual(t, good, MaxRating)
}

func TestPredictUnknownPair(t *testing.T) {
	trainer := NewMatrixFactorizationTrainer(DefaultTrainingOptions())
	m, err := trainer.Train(context.Background(), sampleRecords())
	require.NoError(t, err)

	_, ok := m.Predict("nobody", "c1")
	assert.False(t, ok)
	_, ok = m.Predict("a1", "stranger")
	assert.False(t, ok)
}

func TestTrainEmptyCorpus(t *testing.T) {
	trainer := NewMatrixFactorizationTrainer(DefaultTrainingOptions())
	_, err := trainer.Train(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestTrainHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trainer := NewMatrixFactorizationTrainer(DefaultTrainingOptions())
	_, err := trainer.Train(ctx, sampleRecords())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEncodeDecodeRoundTripPredictions(t *testing.T) {
	trainer := NewMatrixFactorizationTrainer(DefaultTrainingOptions())
	m, err := trainer.Train(context.Background(), sampleRecords())
	require.NoError(t, err)

	data, err := m.Encode()
	require.NoError(t, err)
	restored, err := trainer.Decode(data)
	require.NoError(t, err)

	for _, r := range sampleRecords() {
		want, _ := m.Predict(r.AgentID, r.CustomerID)
		got, ok := restored.Predict(r.AgentID, r.CustomerID)
		require.True(t, ok)
		assert.InDelta(t, want, got, 1e-12)
	}
}

func TestDecodeRejectsInconsistentModel(t *testing.T) {
	trainer := NewMatrixFactorizationTrainer(DefaultTrainingOptions())

	_, err := trainer.Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = trainer.Decode([]byte(`{"rank":2,"agent_index":{"a":0},"customer_index":{},"agent_bias":[],"customer_bias":[],"agent_factors":[],"customer_factors":[]}`))
	assert.Error(t, err)
}
