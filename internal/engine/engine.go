// Package engine orchestrates the full decision pipeline: classification,
// routing, per-minister knowledge retrieval, council consultation, the
// final-authority gate, persistence, and the outcome feedback loop.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/divan/internal/bus"
	"github.com/normanking/divan/internal/classify"
	"github.com/normanking/divan/internal/config"
	"github.com/normanking/divan/internal/council"
	"github.com/normanking/divan/internal/data"
	"github.com/normanking/divan/internal/doctrine"
	"github.com/normanking/divan/internal/gate"
	"github.com/normanking/divan/internal/knowledge"
	"github.com/normanking/divan/internal/learning"
	"github.com/normanking/divan/internal/logging"
	"github.com/normanking/divan/internal/router"
	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ═══════════════════════════════════════════════════════════════════════════════

// Engine wires the decision pipeline together. All of its collaborators are
// either immutable after construction (doctrine, ministers, scorer) or
// internally synchronized (store, library, trainer, bus), so Decide is safe
// to call from concurrent requests.
type Engine struct {
	cfg       *config.Config
	store     *data.Store
	library   *knowledge.Library
	scorer    *knowledge.Scorer
	doctrines *doctrine.Registry
	ministers *council.Registry
	gate      *gate.Gate
	trainer   *learning.Trainer
	loop      *learning.Loop
	bus       *bus.Bus
	snapshots *SnapshotBox
	now       func() time.Time
	log       *logging.Logger
}

// Option overrides an Engine collaborator, mainly for tests.
type Option func(*Engine)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBus substitutes the audit event bus.
func WithBus(b *bus.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// New builds an Engine over an opened store. The knowledge library is
// loaded and learned priors are warmed from storage; both degrade
// gracefully when the store is empty.
func New(ctx context.Context, cfg *config.Config, store *data.Store, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	doctrines, err := loadDoctrines(cfg)
	if err != nil {
		return nil, fmt.Errorf("load doctrines: %w", err)
	}

	ministers, err := council.NewRegistry(doctrines)
	if err != nil {
		return nil, fmt.Errorf("build minister registry: %w", err)
	}

	library := knowledge.NewLibrary(store)
	if err := library.Load(ctx); err != nil {
		return nil, fmt.Errorf("load knowledge library: %w", err)
	}

	trainer := learning.NewTrainer(store, library, learning.TrainerConfig{
		MinSamples: cfg.Learning.MinSamples,
		Disabled:   !cfg.Learning.Enabled,
	})
	if err := trainer.LoadPriors(ctx); err != nil {
		return nil, fmt.Errorf("load learned priors: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		store:     store,
		library:   library,
		doctrines: doctrines,
		ministers: ministers,
		trainer:   trainer,
		bus:       bus.New(),
		snapshots: NewSnapshotBox(),
		now:       time.Now,
		log:       logging.Global().WithComponent("engine"),
		scorer: knowledge.NewScorer(knowledge.ScorerConfig{
			TopK:                cfg.Scoring.TopK,
			RecencyHalfLifeDays: cfg.Scoring.RecencyHalfLifeDays,
		}),
		gate: gate.New(gate.Config{
			RiskThreshold:        cfg.Gate.RiskThreshold,
			RationalizationLimit: cfg.Gate.RationalizationLimit,
			ForbidMoralizing:     doctrines.ForbidsMoralizing(),
		}),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.loop = learning.NewLoop(trainer, store, library, &busEvents{bus: e.bus}, learning.LoopConfig{
		TrainInterval: cfg.Learning.TrainInterval,
	})

	return e, nil
}

func loadDoctrines(cfg *config.Config) (*doctrine.Registry, error) {
	if cfg.Doctrine.Dir != "" {
		return doctrine.LoadDir(cfg.Doctrine.Dir)
	}
	return doctrine.Load()
}

// Bus exposes the audit event bus for observers.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Library exposes the knowledge library for inspection commands.
func (e *Engine) Library() *knowledge.Library { return e.library }

// Ministers exposes the council roster.
func (e *Engine) Ministers() *council.Registry { return e.ministers }

// Doctrines exposes the doctrine registry.
func (e *Engine) Doctrines() *doctrine.Registry { return e.doctrines }

// Snapshots exposes the background analysis snapshot box.
func (e *Engine) Snapshots() *SnapshotBox { return e.snapshots }

// ═══════════════════════════════════════════════════════════════════════════════
// DECIDE
// ═══════════════════════════════════════════════════════════════════════════════

// DecideRequest carries one decision input. Everything except Text is
// optional; missing analysis falls back to local heuristics.
type DecideRequest struct {
	// Text is the raw decision input.
	Text string

	// Mode forces a routing mode; empty selects one from the analysis.
	Mode types.Mode

	// Frame, Domains, and Metrics are upstream analysis. Zero values are
	// replaced by the current snapshot (if any) and then local fallbacks.
	Frame   *types.SituationFrame
	Domains *types.DomainClassification
	Metrics *types.EmotionalMetrics
}

// Decide runs one decision end to end and returns the persisted record.
// A persistence failure still returns the computed record alongside the
// wrapped error so callers can surface both.
func (e *Engine) Decide(ctx context.Context, req DecideRequest) (*types.DecisionRecord, error) {
	defer e.log.Trace("Decide")()

	if req.Text == "" {
		return nil, fmt.Errorf("decide: empty input")
	}

	frame, domains, metrics := e.resolveAnalysis(req)
	features := classify.ExtractFeatures(req.Text, frame)
	mode := req.Mode
	if !types.ValidMode(mode) {
		mode = classify.SelectMode(frame, metrics, domains, features, req.Mode)
	}
	plan := router.Plan(mode, domains.Domains)

	rec := &types.DecisionRecord{
		ID:        uuid.NewString(),
		Input:     req.Text,
		Mode:      plan.Mode,
		Frame:     frame,
		Domains:   domains,
		Features:  features,
		CreatedAt: e.now(),
	}

	if plan.Direct {
		rec.Council = types.CouncilRecommendation{
			Outcome:           types.OutcomeConsensusReached,
			Recommendation:    types.RecommendSupport,
			AvgConfidence:     metrics.Confidence,
			ConsensusStrength: 1.0,
			Reasoning:         "low-stakes input answered directly without convening the council",
			Interpretation:    router.InterpretDirectResponse,
		}
		rec.Gate = types.GateResult{
			FinalOutcome: types.VerdictAccept,
			Reason:       "direct response",
			State:        "skipped",
		}
		return e.persist(ctx, rec)
	}

	bench := e.bench(plan)
	in := council.Input{
		Text:    req.Text,
		Frame:   frame,
		Domains: domains,
		Metrics: metrics,
	}
	in.Retrievals = e.retrieveAll(bench, req.Text, domains, features)

	result := council.Consult(ctx, bench, in, council.ConsultConfig{
		PoolSize:       e.cfg.Council.PoolSize,
		AdvisorTimeout: e.cfg.Council.AdvisorTimeout,
	})

	rec.Council = council.Aggregate(result.Positions, e.cfg.Council.ConsensusThreshold)
	rec.Council.OmittedMinisters = result.Omitted
	rec.Council.Interpretation = router.Interpret(plan.Mode, rec.Council)
	rec.Judges = result.Judges
	rec.Gate = e.gate.Evaluate(rec.Council, result.Positions)
	rec.KnowledgeIDs, rec.CandidateQuality = summarizeRetrievals(in.Retrievals)

	return e.persist(ctx, rec)
}

// resolveAnalysis fills frame, domains, and metrics from the request, the
// latest background snapshot, and finally the local heuristics, in that
// order of preference.
func (e *Engine) resolveAnalysis(req DecideRequest) (types.SituationFrame, types.DomainClassification, types.EmotionalMetrics) {
	snap := e.snapshots.Current()

	frame := types.DefaultSituationFrame()
	if snap != nil {
		frame = snap.Frame
	}
	if req.Frame != nil {
		frame = *req.Frame
	}

	var domains types.DomainClassification
	switch {
	case req.Domains != nil:
		domains = *req.Domains
	case snap != nil && len(snap.Domains.Domains) > 0:
		domains = snap.Domains
	default:
		domains = classify.GuessDomains(req.Text)
	}

	metrics := types.DefaultEmotionalMetrics()
	if snap != nil {
		metrics = snap.Metrics
	}
	if req.Metrics != nil {
		metrics = *req.Metrics
	}

	return frame, domains, metrics
}

// bench resolves the route plan into the concrete ministers to consult.
func (e *Engine) bench(plan router.RoutePlan) []council.Minister {
	var bench []council.Minister
	if plan.All {
		bench = e.ministers.Voting()
	} else {
		for _, domain := range plan.Ministers {
			if m, ok := e.ministers.Get(domain); ok {
				bench = append(bench, m)
			}
		}
	}
	if plan.IncludeJudges {
		bench = append(bench, e.ministers.Judges()...)
	}
	return bench
}

// retrieveAll scores the library once per consulted minister. Each minister
// gets its own domain's entries ranked under its own posture; the learned
// prior snapshot is confidence-gated before it biases anything.
func (e *Engine) retrieveAll(bench []council.Minister, text string, domains types.DomainClassification, features types.SituationFeatures) map[string]*knowledge.Retrieval {
	var priors *types.TypeWeights
	if e.cfg.Learning.Enabled {
		if w, conf := e.trainer.Snapshot().WeightsFor(features); conf >= e.cfg.Learning.ConfidenceThreshold {
			priors = &w
		}
	}

	stakes := learning.Severity(features)
	now := e.now()

	retrievals := make(map[string]*knowledge.Retrieval, len(bench))
	for _, m := range bench {
		in := knowledge.ScoreInput{
			ActiveDomains:    domains.Domains,
			DomainConfidence: domains.Confidence,
			ContextText:      text,
			Posture:          m.Posture(),
			Stakes:           stakes,
			TimePressure:     features.TimePressure,
			Priors:           priors,
			Now:              now,
		}
		entries := e.library.EntriesForDomain(m.Domain())
		retrievals[m.Domain()] = e.scorer.Retrieve(m.Domain(), entries, in, e.cfg.Scoring.TopK)
	}
	return retrievals
}

// summarizeRetrievals collects the distinct knowledge IDs the council saw
// and the mean candidate quality across consulted domains.
func summarizeRetrievals(retrievals map[string]*knowledge.Retrieval) ([]string, float64) {
	if len(retrievals) == 0 {
		return nil, 0
	}

	seen := make(map[string]bool)
	var ids []string
	var quality float64
	for _, r := range retrievals {
		quality += r.Quality
		for _, se := range r.Entries {
			if !seen[se.Entry.ID] {
				seen[se.Entry.ID] = true
				ids = append(ids, se.Entry.ID)
			}
		}
	}
	return ids, quality / float64(len(retrievals))
}

// persist stores the record and publishes the audit events. The computed
// record is returned even when the write fails.
func (e *Engine) persist(ctx context.Context, rec *types.DecisionRecord) (*types.DecisionRecord, error) {
	if err := e.store.CreateDecision(ctx, rec); err != nil {
		return rec, fmt.Errorf("persist decision %s: %w", rec.ID, err)
	}

	e.publishDecision(rec)
	return rec, nil
}

func (e *Engine) publishDecision(rec *types.DecisionRecord) {
	ev := bus.NewEvent(bus.EventDecisionRecorded)
	ev.DecisionID = rec.ID
	ev.Detail = fmt.Sprintf("%s via %s: %s", rec.Gate.FinalOutcome, rec.Mode, rec.Council.Interpretation)
	ev.Payload = rec
	e.publish(ev)

	if len(rec.Council.RedLineConcerns) > 0 {
		red := bus.NewEvent(bus.EventCouncilRedLine)
		red.DecisionID = rec.ID
		red.Detail = rec.Council.RedLineConcerns[0]
		red.Payload = rec.Council.RedLineConcerns
		e.publish(red)
	}

	for _, omitted := range rec.Council.OmittedMinisters {
		ev := bus.NewEvent(bus.EventAdvisorOmitted)
		ev.DecisionID = rec.ID
		ev.Detail = omitted
		e.publish(ev)
	}
}

func (e *Engine) publish(ev bus.Event) {
	if err := e.bus.Publish(ev); err != nil {
		e.log.Debug("audit publish dropped: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// OUTCOMES AND LEARNING
// ═══════════════════════════════════════════════════════════════════════════════

// RecordOutcome records the observed result of a past decision and feeds
// it into the learning loop. Recording the same decision again updates the
// stored outcome in place.
func (e *Engine) RecordOutcome(ctx context.Context, rec *types.OutcomeRecord) error {
	return e.loop.RecordOutcome(ctx, rec)
}

// Train runs one training pass immediately.
func (e *Engine) Train(ctx context.Context, force bool) (*learning.TrainingReport, error) {
	return e.loop.TrainNow(ctx, force)
}

// StartLearning launches the background training worker.
func (e *Engine) StartLearning(ctx context.Context) error {
	return e.loop.Start(ctx)
}

// StopLearning stops the background training worker.
func (e *Engine) StopLearning() {
	e.loop.Stop()
}

// Priors returns the current learned prior snapshot.
func (e *Engine) Priors() *learning.PriorCache {
	return e.trainer.Snapshot()
}

// Stats returns the persisted store counters.
func (e *Engine) Stats(ctx context.Context) (*data.StoreStats, error) {
	return e.store.Stats(ctx)
}

// Close releases the bus. The store is owned by the caller.
func (e *Engine) Close() {
	e.loop.Stop()
	e.bus.Close()
}

// busEvents bridges loop notifications onto the audit bus.
type busEvents struct {
	bus *bus.Bus
}

func (b *busEvents) OutcomeRecorded(rec *types.OutcomeRecord) {
	ev := bus.NewEvent(bus.EventOutcomeRecorded)
	ev.DecisionID = rec.DecisionID
	if rec.Success {
		ev.Detail = "success"
	} else {
		ev.Detail = fmt.Sprintf("failure, regret %.2f", rec.RegretScore)
	}
	ev.Payload = rec
	_ = b.bus.Publish(ev)
}

func (b *busEvents) Trained(report *learning.TrainingReport) {
	ev := bus.NewEvent(bus.EventLearningTrained)
	ev.Detail = fmt.Sprintf("%d buckets from %d samples", report.TrainedBuckets, report.Samples)
	ev.Payload = report
	_ = b.bus.Publish(ev)
}
