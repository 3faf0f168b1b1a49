// Package recommender holds the collaborative-filtering model used to predict
// agent/customer affinity, together with its versioned storage.
package recommender

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

const (
	// MinRating and MaxRating bound both training labels and predictions.
	MinRating = 1.0
	MaxRating = 5.0
)

var (
	// ErrModelNotFound is returned when no artifact has been persisted yet.
	ErrModelNotFound = errors.New("model not found")
	// ErrModelCorrupt is returned when the latest artifact cannot be decoded or verified.
	ErrModelCorrupt = errors.New("model artifact corrupt")
	// ErrEmptyCorpus is returned by trainers given no records.
	ErrEmptyCorpus = errors.New("empty training corpus")
)

// Model predicts the affinity of an agent for a customer on the [1,5] scale.
// The bool result is false when either side is unknown to the model.
type Model interface {
	Predict(agentID, customerID string) (float64, bool)
	Encode() ([]byte, error)
}

// Trainer builds models from implicit ratings and restores them from bytes.
type Trainer interface {
	Train(ctx context.Context, records []domain.AffinityRecord) (Model, error)
	Decode(data []byte) (Model, error)
}

// ModelInfo describes a persisted artifact.
type ModelInfo struct {
	DomainID    string    `json:"domain_id"`
	Version     int       `json:"version"`
	TrainedAt   time.Time `json:"trained_at"`
	RecordCount int       `json:"record_count"`
	Fingerprint string    `json:"fingerprint"`
	Checksum    string    `json:"checksum"`
	Path        string    `json:"path,omitempty"`
}

// Artifact is an encoded model plus its metadata.
type Artifact struct {
	Info    ModelInfo
	Payload []byte
}

// Store persists model artifacts per domain.
type Store interface {
	Load(ctx context.Context, domainID string) (Artifact, error)
	Save(ctx context.Context, artifact Artifact) (Artifact, error)
}
