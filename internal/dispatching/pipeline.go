package dispatching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/recommender"
)

// RetrainOutcome reports what a retrain request did.
type RetrainOutcome string

const (
	RetrainTrained                 RetrainOutcome = "trained"
	RetrainUnchanged               RetrainOutcome = "unchanged"
	RetrainSkippedInsufficientData RetrainOutcome = "insufficient_data"
	RetrainSkippedInFlight         RetrainOutcome = "in_flight"
	RetrainNotApplicable           RetrainOutcome = "not_applicable"
	RetrainDisabled                RetrainOutcome = "disabled"
	RetrainFailed                  RetrainOutcome = "failed"
)

// PipelineConfig configures a ModelPipeline.
type PipelineConfig struct {
	DomainID       string
	RetrainTimeout time.Duration
	LockTTL        time.Duration

	// TriggerCooldown spaces out background retrains requested by scoring calls.
	TriggerCooldown time.Duration
}

// PipelineDependencies bundles the pipeline collaborators. Locker and Metrics are optional.
type PipelineDependencies struct {
	History interface {
		ListHistoricalAssignments(ctx context.Context) ([]domain.AssignmentRecord, error)
	}
	Domains DomainConfig
	Trainer recommender.Trainer
	Store   recommender.Store
	Locker  recommender.Locker
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

type loadedModel struct {
	model recommender.Model
	info  recommender.ModelInfo
}

// ModelPipeline owns the affinity model: it derives the corpus, retrains,
// persists and swaps the in-memory snapshot.
type ModelPipeline struct {
	cfg     PipelineConfig
	deps    PipelineDependencies
	logger  *zap.Logger
	sem     *semaphore.Weighted
	current atomic.Pointer[loadedModel]

	lastTrigger atomic.Int64
	baseCtx     context.Context
	cancel      context.CancelFunc

	// mu orders background starts against Close so wg.Add never races wg.Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewModelPipeline creates a pipeline with no model loaded.
func NewModelPipeline(cfg PipelineConfig, deps PipelineDependencies) *ModelPipeline {
	if cfg.RetrainTimeout <= 0 {
		cfg.RetrainTimeout = 10 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.RetrainTimeout
	}
	if cfg.TriggerCooldown <= 0 {
		cfg.TriggerCooldown = time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ModelPipeline{
		cfg:     cfg,
		deps:    deps,
		logger:  logger.With(zap.String("domain_id", cfg.DomainID)),
		sem:     semaphore.NewWeighted(1),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// DomainID is the domain whose model this pipeline maintains.
func (p *ModelPipeline) DomainID() string {
	return p.cfg.DomainID
}

// Model returns the loaded model snapshot.
func (p *ModelPipeline) Model() (recommender.Model, recommender.ModelInfo, bool) {
	cur := p.current.Load()
	if cur == nil {
		return nil, recommender.ModelInfo{}, false
	}
	return cur.model, cur.info, true
}

// Load restores the latest persisted model. A missing or corrupt artifact
// triggers a fresh retrain instead of an error.
func (p *ModelPipeline) Load(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	artifact, err := p.deps.Store.Load(ctx, p.cfg.DomainID)
	if err == nil {
		model, decodeErr := p.deps.Trainer.Decode(artifact.Payload)
		if decodeErr == nil {
			p.current.Store(&loadedModel{model: model, info: artifact.Info})
			p.logger.Info("loaded dispatch model",
				zap.Int("version", artifact.Info.Version),
				zap.Time("trained_at", artifact.Info.TrainedAt))
			return nil
		}
		err = fmt.Errorf("%w: %v", recommender.ErrModelCorrupt, decodeErr)
	}

	switch {
	case errors.Is(err, recommender.ErrModelNotFound):
		p.logger.Info("no persisted dispatch model; training a new one")
	case errors.Is(err, recommender.ErrModelCorrupt):
		p.logger.Warn("persisted dispatch model unreadable; retraining", zap.Error(err))
	default:
		return fmt.Errorf("load dispatch model: %w", err)
	}

	_, err = p.retrainLocked(ctx)
	return err
}

// Retrain rebuilds the model from resolved ticket history. A request made while
// another retrain runs returns RetrainSkippedInFlight without waiting.
func (p *ModelPipeline) Retrain(ctx context.Context) (RetrainOutcome, error) {
	if !p.sem.TryAcquire(1) {
		p.logger.Debug("retrain already in flight")
		p.deps.Metrics.RecordRetrain(string(RetrainSkippedInFlight), 0)
		return RetrainSkippedInFlight, nil
	}
	defer p.sem.Release(1)
	return p.retrainLocked(ctx)
}

// TriggerRetrain starts a background retrain bounded by the configured timeout.
// Calls within the cooldown of the previous trigger are ignored.
func (p *ModelPipeline) TriggerRetrain() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	now := time.Now().UnixNano()
	last := p.lastTrigger.Load()
	if last != 0 && time.Duration(now-last) < p.cfg.TriggerCooldown {
		return false
	}
	if !p.lastTrigger.CompareAndSwap(last, now) {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(p.baseCtx, p.cfg.RetrainTimeout)
		defer cancel()
		if _, err := p.Retrain(ctx); err != nil {
			p.logger.Error("background model retraining failed", zap.Error(err))
		}
	}()
	return true
}

// Close cancels background retrains and waits for them to stop.
func (p *ModelPipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *ModelPipeline) retrainLocked(ctx context.Context) (outcome RetrainOutcome, err error) {
	start := time.Now()
	defer func() {
		recorded := outcome
		if err != nil {
			recorded = RetrainFailed
		}
		var elapsed time.Duration
		if recorded == RetrainTrained {
			elapsed = time.Since(start)
		}
		p.deps.Metrics.RecordRetrain(string(recorded), elapsed)
	}()

	if p.deps.Locker != nil {
		unlock, acquired, lockErr := p.deps.Locker.TryLock(ctx, "dispatch-retrain:"+p.cfg.DomainID, p.cfg.LockTTL)
		switch {
		case lockErr != nil:
			p.logger.Warn("distributed retrain lock unavailable; continuing with local guard", zap.Error(lockErr))
		case !acquired:
			p.logger.Info("retrain running in another process")
			return RetrainSkippedInFlight, nil
		default:
			defer func() {
				if err := unlock(context.Background()); err != nil {
					p.logger.Warn("failed to release retrain lock", zap.Error(err))
				}
			}()
		}
	}

	p.logger.Info("starting model retraining")
	history, err := p.deps.History.ListHistoricalAssignments(ctx)
	if err != nil {
		return "", fmt.Errorf("list historical assignments: %w", err)
	}
	corpus := BuildCorpus(history)

	minRecords := p.deps.Domains.MinTrainingRecords()
	if len(corpus) == 0 || len(corpus) < minRecords {
		p.logger.Warn("insufficient training data, skipping retraining",
			zap.Int("records", len(corpus)),
			zap.Int("min_records", minRecords))
		return RetrainSkippedInsufficientData, nil
	}

	fingerprint := Fingerprint(corpus)
	if cur := p.current.Load(); cur != nil && cur.info.Fingerprint == fingerprint {
		p.logger.Info("training corpus unchanged, keeping current model",
			zap.Int("version", cur.info.Version))
		return RetrainUnchanged, nil
	}

	model, err := p.deps.Trainer.Train(ctx, corpus)
	if err != nil {
		return "", fmt.Errorf("train model: %w", err)
	}
	payload, err := model.Encode()
	if err != nil {
		return "", fmt.Errorf("encode model: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	saved, err := p.deps.Store.Save(ctx, recommender.Artifact{
		Info: recommender.ModelInfo{
			DomainID:    p.cfg.DomainID,
			TrainedAt:   time.Now().UTC(),
			RecordCount: len(corpus),
			Fingerprint: fingerprint,
		},
		Payload: payload,
	})
	if err != nil {
		return "", fmt.Errorf("save model: %w", err)
	}

	p.current.Store(&loadedModel{model: model, info: saved.Info})
	p.logger.Info("model retrained successfully",
		zap.Int("records", len(corpus)),
		zap.Int("version", saved.Info.Version),
		zap.Duration("elapsed", time.Since(start)))
	return RetrainTrained, nil
}
