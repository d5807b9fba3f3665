package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/divan/pkg/types"
)

func TestSnapshotBoxEmptyUntilPublished(t *testing.T) {
	box := NewSnapshotBox()

	assert.Nil(t, box.Current())
	assert.Zero(t, box.Version())
}

func TestSnapshotBoxVersionsMonotonically(t *testing.T) {
	box := NewSnapshotBox()

	first := box.Publish(AnalysisSnapshot{Frame: types.DefaultSituationFrame()})
	second := box.Publish(AnalysisSnapshot{Frame: types.DefaultSituationFrame()})

	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, uint64(2), second.Version)
	assert.Equal(t, second, box.Current())
	assert.False(t, first.CreatedAt.IsZero())
}

func TestSnapshotBoxInFlightReadersKeepTheirVersion(t *testing.T) {
	box := NewSnapshotBox()
	box.Publish(AnalysisSnapshot{
		Domains: types.DomainClassification{Domains: []string{"finance"}, Confidence: 0.8},
	})

	held := box.Current()
	require.NotNil(t, held)

	box.Publish(AnalysisSnapshot{
		Domains: types.DomainClassification{Domains: []string{"legal"}, Confidence: 0.9},
	})

	// A newer publish never mutates the snapshot a reader already loaded.
	assert.Equal(t, []string{"finance"}, held.Domains.Domains)
	assert.Equal(t, []string{"legal"}, box.Current().Domains.Domains)
}

func TestSnapshotBoxAnalyzeClassifiesText(t *testing.T) {
	box := NewSnapshotBox()

	snap := box.Analyze("the lawsuit over the breached contract is escalating")
	require.NotNil(t, snap)
	assert.Contains(t, snap.Domains.Domains, "legal")
	assert.Equal(t, snap, box.Current())
}

func TestSnapshotBoxConcurrentPublish(t *testing.T) {
	box := NewSnapshotBox()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			box.Publish(AnalysisSnapshot{Frame: types.DefaultSituationFrame()})
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(16), box.Version())
	require.NotNil(t, box.Current())
	assert.LessOrEqual(t, box.Current().Version, uint64(16))
}
