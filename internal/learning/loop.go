package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/normanking/divan/internal/data"
	"github.com/normanking/divan/internal/logging"
	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FEEDBACK LOOP
// ═══════════════════════════════════════════════════════════════════════════════

// OutcomeStore persists outcomes against their decisions.
type OutcomeStore interface {
	GetDecision(ctx context.Context, id string) (*types.DecisionRecord, error)
	GetOutcome(ctx context.Context, decisionID string) (*types.OutcomeRecord, error)
	UpsertOutcome(ctx context.Context, rec *types.OutcomeRecord) error
}

// Memory receives reinforcement write-backs for the knowledge a decision
// used. Typically the knowledge library.
type Memory interface {
	Reinforce(ctx context.Context, id string) error
	Penalize(ctx context.Context, id string) error
}

// Events receives loop notifications for the audit stream. Implementations
// must not block; they are called inline.
type Events interface {
	OutcomeRecorded(rec *types.OutcomeRecord)
	Trained(report *TrainingReport)
}

// LoopConfig configures the background feedback loop.
type LoopConfig struct {
	// TrainInterval is how often the worker checks for pending outcomes
	// and retrains.
	TrainInterval time.Duration
}

// DefaultLoopConfig returns the standard loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{TrainInterval: 5 * time.Minute}
}

// Loop feeds observed outcomes back into the system: it persists them,
// reinforces or penalizes the knowledge the decision used, and retrains
// the priors in the background.
type Loop struct {
	trainer *Trainer
	store   OutcomeStore
	memory  Memory
	events  Events
	cfg     LoopConfig
	log     *logging.Logger

	mu      sync.Mutex
	running bool
	pending int
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop creates a feedback loop. memory and events may be nil.
func NewLoop(trainer *Trainer, store OutcomeStore, memory Memory, events Events, cfg LoopConfig) *Loop {
	if cfg.TrainInterval <= 0 {
		cfg.TrainInterval = DefaultLoopConfig().TrainInterval
	}

	return &Loop{
		trainer: trainer,
		store:   store,
		memory:  memory,
		events:  events,
		cfg:     cfg,
		log:     logging.Global().WithComponent("learning"),
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// RECORDING
// ═══════════════════════════════════════════════════════════════════════════════

// RecordOutcome validates, persists, and feeds back one observed outcome.
// Recording the same decision again replaces the stored outcome in place;
// the memory write-back runs only on the first recording, so a correction
// never double-counts reinforcement.
func (l *Loop) RecordOutcome(ctx context.Context, rec *types.OutcomeRecord) error {
	dec, err := l.store.GetDecision(ctx, rec.DecisionID)
	if err != nil {
		return fmt.Errorf("outcome for decision %s: %w", rec.DecisionID, err)
	}

	_, err = l.store.GetOutcome(ctx, rec.DecisionID)
	first := errors.Is(err, data.ErrNotFound)
	if err != nil && !first {
		return fmt.Errorf("check existing outcome: %w", err)
	}

	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	if err := l.store.UpsertOutcome(ctx, rec); err != nil {
		return fmt.Errorf("persist outcome: %w", err)
	}

	if first {
		// Memory reinforcement happens after the outcome row is committed;
		// don't let a caller that hangs up right then lose the write-back.
		wbCtx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
		l.writeBack(wbCtx, dec, rec.Success)
		cancel()
	} else {
		l.log.Debug("outcome for %s re-recorded, memory untouched", rec.DecisionID)
	}

	if l.events != nil {
		l.events.OutcomeRecorded(rec)
	}

	l.mu.Lock()
	l.pending++
	l.mu.Unlock()

	return nil
}

// writeBack reinforces or penalizes every knowledge entry the decision
// used. Failures are logged and skipped; memory is advisory.
func (l *Loop) writeBack(ctx context.Context, dec *types.DecisionRecord, success bool) {
	if l.memory == nil {
		return
	}

	for _, id := range dec.KnowledgeIDs {
		var err error
		if success {
			err = l.memory.Reinforce(ctx, id)
		} else {
			err = l.memory.Penalize(ctx, id)
		}
		if err != nil {
			l.log.Warn("memory write-back for %s failed: %v", id, err)
		}
	}
}

// Pending returns the number of outcomes recorded since the last training
// pass.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRAINING
// ═══════════════════════════════════════════════════════════════════════════════

// TrainNow runs one training pass immediately, outside the ticker.
func (l *Loop) TrainNow(ctx context.Context, force bool) (*TrainingReport, error) {
	report, err := l.trainer.Train(ctx, force)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.pending = 0
	l.mu.Unlock()

	if l.events != nil {
		l.events.Trained(report)
	}
	return report, nil
}

// trainTick retrains when outcomes arrived since the last pass. Outcomes
// recorded while training stay pending for the next tick.
func (l *Loop) trainTick(ctx context.Context) {
	l.mu.Lock()
	pending := l.pending
	l.mu.Unlock()
	if pending == 0 {
		return
	}

	report, err := l.trainer.Train(ctx, false)
	if err != nil {
		l.log.Warn("training pass failed: %v", err)
		return
	}

	l.mu.Lock()
	l.pending -= pending
	if l.pending < 0 {
		l.pending = 0
	}
	l.mu.Unlock()

	if l.events != nil {
		l.events.Trained(report)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// BACKGROUND WORKER
// ═══════════════════════════════════════════════════════════════════════════════

// Start begins the background training worker.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	go l.runWorker(ctx, l.stopCh, l.doneCh)

	l.log.Info("learning loop started (train interval %v)", l.cfg.TrainInterval)
	return nil
}

// Stop stops the background worker and waits for it to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	stopCh, doneCh := l.stopCh, l.doneCh
	l.running = false
	l.mu.Unlock()

	close(stopCh)
	<-doneCh

	l.log.Info("learning loop stopped")
}

// Running reports whether the background worker is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) runWorker(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(l.cfg.TrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.trainTick(ctx)
		}
	}
}
