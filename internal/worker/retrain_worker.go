package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/service"
)

// RetrainWorkerConfig schedules background dispatch work. A zero interval or
// threshold disables that trigger.
type RetrainWorkerConfig struct {
	RetrainInterval         time.Duration
	RetrainAfterResolutions int
	BacklogInterval         time.Duration
	BacklogBatchSize        int
	RetrainTimeout          time.Duration
}

// RetrainWorker retrains the dispatch model periodically and after enough
// ticket resolutions, and optionally sweeps the unassigned backlog.
type RetrainWorker struct {
	cfg        RetrainWorkerConfig
	dispatch   service.DispatchingService
	dispatcher events.Dispatcher
	logger     *zap.Logger

	resolved atomic.Int64
	wake     chan struct{}
}

// NewRetrainWorker creates the worker.
func NewRetrainWorker(cfg RetrainWorkerConfig, dispatch service.DispatchingService, dispatcher events.Dispatcher, logger *zap.Logger) *RetrainWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetrainTimeout <= 0 {
		cfg.RetrainTimeout = 10 * time.Minute
	}
	return &RetrainWorker{
		cfg:        cfg,
		dispatch:   dispatch,
		dispatcher: dispatcher,
		logger:     logger,
		wake:       make(chan struct{}, 1),
	}
}

// RegisterHandlers subscribes to ticket resolutions.
func (w *RetrainWorker) RegisterHandlers() {
	if w.dispatcher == nil || w.cfg.RetrainAfterResolutions <= 0 {
		return
	}
	w.dispatcher.Subscribe(events.EventTicketResolved, w.handleTicketResolved)
}

func (w *RetrainWorker) handleTicketResolved(_ context.Context, event events.Event) error {
	n := w.resolved.Add(1)
	if n < int64(w.cfg.RetrainAfterResolutions) {
		return nil
	}
	// Only the handler that observed the current total resets it; a concurrent
	// increment makes the swap fail and that handler takes over.
	if !w.resolved.CompareAndSwap(n, 0) {
		return nil
	}
	w.logger.Info("resolution threshold reached, scheduling retrain",
		zap.String("ticket_id", event.TicketID),
		zap.Int64("resolved", n))
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run blocks until ctx is done.
func (w *RetrainWorker) Run(ctx context.Context) {
	if !w.dispatch.Enabled() {
		w.logger.Info("dispatching disabled; retrain worker idle")
		<-ctx.Done()
		return
	}

	retrainTick := tickerChan(w.cfg.RetrainInterval)
	backlogTick := tickerChan(w.cfg.BacklogInterval)
	defer retrainTick.stop()
	defer backlogTick.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-retrainTick.c:
			w.retrain(ctx, "schedule")
		case <-w.wake:
			w.retrain(ctx, "resolutions")
		case <-backlogTick.c:
			w.dispatch.DispatchBacklog(ctx, w.cfg.BacklogBatchSize)
		}
	}
}

func (w *RetrainWorker) retrain(ctx context.Context, trigger string) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RetrainTimeout)
	defer cancel()

	outcome, err := w.dispatch.RetrainModel(ctx)
	if err != nil {
		w.logger.Error("scheduled retrain failed", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	w.logger.Info("scheduled retrain finished",
		zap.String("trigger", trigger),
		zap.String("outcome", string(outcome)))
}

type optionalTicker struct {
	c      <-chan time.Time
	ticker *time.Ticker
}

// tickerChan returns a ticker, or a nil channel that never fires when d <= 0.
func tickerChan(d time.Duration) optionalTicker {
	if d <= 0 {
		return optionalTicker{}
	}
	t := time.NewTicker(d)
	return optionalTicker{c: t.C, ticker: t}
}

func (t optionalTicker) stop() {
	if t.ticker != nil {
		t.ticker.Stop()
	}
}
