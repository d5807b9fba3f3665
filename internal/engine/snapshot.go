package engine

import (
	"sync/atomic"
	"time"

	"github.com/normanking/divan/internal/classify"
	"github.com/normanking/divan/pkg/types"
)

// AnalysisSnapshot is one immutable, versioned view of the situation
// analysis. Decisions read whichever version is current when they start
// and keep it for their whole run; a newer version never mutates an
// in-flight decision.
type AnalysisSnapshot struct {
	Version   uint64                     `json:"version"`
	Frame     types.SituationFrame       `json:"frame"`
	Domains   types.DomainClassification `json:"domains"`
	Metrics   types.EmotionalMetrics     `json:"metrics"`
	CreatedAt time.Time                  `json:"created_at"`
}

// SnapshotBox publishes analysis snapshots behind an atomic pointer.
// Writers replace the whole snapshot; readers load it without locking.
type SnapshotBox struct {
	current atomic.Pointer[AnalysisSnapshot]
	version atomic.Uint64
}

// NewSnapshotBox returns an empty box. Current returns nil until the
// first Publish.
func NewSnapshotBox() *SnapshotBox {
	return &SnapshotBox{}
}

// Current returns the latest published snapshot, or nil when none exists.
func (b *SnapshotBox) Current() *AnalysisSnapshot {
	return b.current.Load()
}

// Publish stamps the snapshot with the next version and makes it current.
// The published copy is returned.
func (b *SnapshotBox) Publish(snap AnalysisSnapshot) *AnalysisSnapshot {
	snap.Version = b.version.Add(1)
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	b.current.Store(&snap)
	return &snap
}

// Analyze runs the local heuristics over text and publishes the result.
// Cheap enough to call inline; callers that prefer fire-and-forget can
// run it in a goroutine, since Publish is the only shared write.
func (b *SnapshotBox) Analyze(text string) *AnalysisSnapshot {
	return b.Publish(AnalysisSnapshot{
		Frame:   classify.DefaultFrame(),
		Domains: classify.GuessDomains(text),
		Metrics: types.DefaultEmotionalMetrics(),
	})
}

// Version returns the version of the latest published snapshot, zero when
// nothing has been published.
func (b *SnapshotBox) Version() uint64 {
	return b.version.Load()
}
