package learning

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/divan/internal/data"
	"github.com/normanking/divan/internal/logging"
	"github.com/normanking/divan/pkg/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRIOR CACHE
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// missConfidence is served for buckets with no learned data.
	missConfidence = 0.3

	// maxConfidence caps what any sample count can earn.
	maxConfidence = 0.95
)

// Prior is one bucket's learned type weights.
type Prior struct {
	Weights     types.TypeWeights `json:"weights"`
	Confidence  float64           `json:"confidence"`
	SampleCount int               `json:"sample_count"`
}

// PriorCache is an immutable snapshot of learned priors. Readers share one
// snapshot; training builds a replacement and swaps it in whole, so no
// lock is ever taken on the read path.
type PriorCache struct {
	buckets  map[string]Prior
	disabled bool
}

// WeightsFor returns the learned weights and confidence for a situation's
// bucket. Misses return neutral weights at the miss confidence; a disabled
// cache returns neutral at zero so no threshold can pass it.
func (c *PriorCache) WeightsFor(f types.SituationFeatures) (types.TypeWeights, float64) {
	if c == nil {
		return types.NeutralTypeWeights(), missConfidence
	}
	if c.disabled {
		return types.NeutralTypeWeights(), 0
	}
	if p, ok := c.buckets[SituationHash(f)]; ok {
		return p.Weights, p.Confidence
	}
	return types.NeutralTypeWeights(), missConfidence
}

// ApplyBias multiplies each knowledge type's score by its learned weight
// when the situation's bucket clears the confidence threshold. Otherwise
// the scores pass through untouched.
func (c *PriorCache) ApplyBias(scores map[types.KnowledgeType]float64, f types.SituationFeatures, confidenceThreshold float64) map[types.KnowledgeType]float64 {
	weights, conf := c.WeightsFor(f)
	if conf < confidenceThreshold {
		return scores
	}

	adjusted := make(map[types.KnowledgeType]float64, len(scores))
	for t, s := range scores {
		adjusted[t] = s * weights.For(t)
	}
	return adjusted
}

// Bucket returns the prior stored under a bucket key.
func (c *PriorCache) Bucket(key string) (Prior, bool) {
	if c == nil {
		return Prior{}, false
	}
	p, ok := c.buckets[key]
	return p, ok
}

// Buckets returns the trained bucket keys, sorted.
func (c *PriorCache) Buckets() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.buckets))
	for k := range c.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of trained buckets.
func (c *PriorCache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.buckets)
}

// BucketConfidence maps a bucket's sample count to its confidence. Growth
// is logarithmic and capped.
func BucketConfidence(n int) float64 {
	return math.Min(maxConfidence, 0.5+0.1*math.Log(1+float64(n)))
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRAINER
// ═══════════════════════════════════════════════════════════════════════════════

// TrainingStore is the persistence surface the trainer reads from and
// writes to.
type TrainingStore interface {
	ListDecisionOutcomePairs(ctx context.Context) ([]data.DecisionOutcome, error)
	UpsertPrior(ctx context.Context, prior *data.LearnedPrior) error
	ListPriors(ctx context.Context) ([]*data.LearnedPrior, error)
}

// TypeResolver maps a knowledge entry ID to its type, for reconstructing
// usage flags from a persisted decision. Unknown IDs are skipped.
type TypeResolver interface {
	TypeOf(id string) (types.KnowledgeType, bool)
}

// TrainerConfig bounds a training pass.
type TrainerConfig struct {
	// MinSamples is the bucket size below which training skips the
	// bucket, unless the pass is forced.
	MinSamples int

	// Disabled serves every lookup as a zero-confidence miss, for
	// ablation runs.
	Disabled bool
}

// DefaultTrainerConfig returns the standard training bounds.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{MinSamples: 5}
}

// Trainer owns the prior cache. Training is a full idempotent replay of
// the decision/outcome history; there is exactly one writer at a time.
type Trainer struct {
	store    TrainingStore
	resolver TypeResolver
	cfg      TrainerConfig
	log      *logging.Logger

	mu    sync.Mutex // serializes Train and LoadPriors
	cache atomic.Pointer[PriorCache]
}

// NewTrainer creates a trainer with an empty cache. resolver may be nil;
// usage flags then degrade to low-information.
func NewTrainer(store TrainingStore, resolver TypeResolver, cfg TrainerConfig) *Trainer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}

	t := &Trainer{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		log:      logging.Global().WithComponent("learning"),
	}
	t.cache.Store(&PriorCache{buckets: map[string]Prior{}, disabled: cfg.Disabled})
	return t
}

// Snapshot returns the current prior cache. Safe for any number of
// concurrent readers.
func (t *Trainer) Snapshot() *PriorCache {
	return t.cache.Load()
}

// LoadPriors rebuilds the cache from the persisted rows, so training done
// before a restart keeps serving.
func (t *Trainer) LoadPriors(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows, err := t.store.ListPriors(ctx)
	if err != nil {
		return fmt.Errorf("load priors: %w", err)
	}

	buckets := make(map[string]Prior, len(rows))
	for _, row := range rows {
		w := row.Weights
		w.Clamp()
		buckets[row.Bucket] = Prior{
			Weights:     w,
			Confidence:  row.Confidence,
			SampleCount: row.SampleCount,
		}
	}

	t.cache.Store(&PriorCache{buckets: buckets, disabled: t.cfg.Disabled})
	t.log.Debug("loaded %d learned priors", len(buckets))
	return nil
}

// TrainingReport summarizes one training pass.
type TrainingReport struct {
	Samples        int       `json:"samples"`
	TrainedBuckets int       `json:"trained_buckets"`
	SkippedBuckets int       `json:"skipped_buckets"`
	Forced         bool      `json:"forced"`
	TrainedAt      time.Time `json:"trained_at"`
}

// Sample is one labeled training observation.
type Sample struct {
	Bucket  string
	Weights types.TypeWeights
}

// SampleFromRecords labels one decision/outcome pair.
func SampleFromRecords(dec *types.DecisionRecord, out *types.OutcomeRecord, resolver TypeResolver) Sample {
	return Sample{
		Bucket:  SituationHash(dec.Features),
		Weights: GenerateTypeWeights(dec.Features, usageFor(resolver, dec.KnowledgeIDs), *out),
	}
}

// Train replays every decision that has an outcome, averages the labeled
// weights per situation bucket, persists each trained bucket, and swaps a
// fresh cache into place. Buckets under MinSamples are skipped unless the
// pass is forced.
func (t *Trainer) Train(ctx context.Context, force bool) (*TrainingReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pairs, err := t.store.ListDecisionOutcomePairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list training pairs: %w", err)
	}

	type bucketSum struct {
		principle, rule, warning, claim, advice float64
		n                                       int
	}
	sums := make(map[string]*bucketSum)
	for _, p := range pairs {
		s := SampleFromRecords(p.Decision, p.Outcome, t.resolver)
		b := sums[s.Bucket]
		if b == nil {
			b = &bucketSum{}
			sums[s.Bucket] = b
		}
		b.principle += s.Weights.Principle
		b.rule += s.Weights.Rule
		b.warning += s.Weights.Warning
		b.claim += s.Weights.Claim
		b.advice += s.Weights.Advice
		b.n++
	}

	report := &TrainingReport{Samples: len(pairs), Forced: force, TrainedAt: time.Now()}
	buckets := make(map[string]Prior, len(sums))
	for key, b := range sums {
		if b.n < t.cfg.MinSamples && !force {
			report.SkippedBuckets++
			continue
		}

		n := float64(b.n)
		w := types.TypeWeights{
			Principle: b.principle / n,
			Rule:      b.rule / n,
			Warning:   b.warning / n,
			Claim:     b.claim / n,
			Advice:    b.advice / n,
		}
		w.Clamp()
		conf := BucketConfidence(b.n)

		prior := &data.LearnedPrior{
			Bucket:      key,
			Weights:     w,
			SampleCount: b.n,
			Confidence:  conf,
		}
		if err := t.store.UpsertPrior(ctx, prior); err != nil {
			return nil, fmt.Errorf("persist prior %s: %w", key, err)
		}

		buckets[key] = Prior{Weights: w, Confidence: conf, SampleCount: b.n}
		report.TrainedBuckets++
	}

	t.cache.Store(&PriorCache{buckets: buckets, disabled: t.cfg.Disabled})
	t.log.Info("trained %d buckets from %d samples (%d skipped)",
		report.TrainedBuckets, report.Samples, report.SkippedBuckets)
	return report, nil
}

// usageFor reconstructs the usage flags behind a decision's knowledge IDs.
func usageFor(resolver TypeResolver, ids []string) types.KnowledgeUsage {
	if resolver == nil || len(ids) == 0 {
		return types.KnowledgeUsage{LowInformation: true}
	}

	counts := make(map[types.KnowledgeType]int, 4)
	for _, id := range ids {
		if kt, ok := resolver.TypeOf(id); ok {
			counts[kt]++
		}
	}
	return UsageFromTypes(counts)
}
