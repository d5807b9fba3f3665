package council

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/normanking/divan/internal/logging"
	"github.com/normanking/divan/pkg/types"
)

var consultLog = logging.Global().WithComponent("council")

// ConsultConfig bounds the fan-out.
type ConsultConfig struct {
	// PoolSize caps how many ministers analyze concurrently.
	PoolSize int

	// AdvisorTimeout is the per-minister deadline. A minister that blows
	// it is omitted, not waited on.
	AdvisorTimeout time.Duration
}

// DefaultConsultConfig returns the standing fan-out bounds.
func DefaultConsultConfig() ConsultConfig {
	return ConsultConfig{
		PoolSize:       8,
		AdvisorTimeout: 10 * time.Second,
	}
}

// ConsultResult separates what aggregation consumes from what is recorded
// for audit. Positions holds voting ministers only; judge positions never
// enter the vote count.
type ConsultResult struct {
	Positions map[string]types.Position
	Judges    []types.Position
	Omitted   []string
}

type consultOutcome struct {
	domain string
	voting bool
	pos    types.Position
	err    error
}

// Consult fans the input out to the given ministers under a bounded pool.
// A minister that errs, times out, or panics is dropped from the result and
// listed in Omitted; a failing minister never aborts the consultation.
func Consult(ctx context.Context, ministers []Minister, in Input, cfg ConsultConfig) ConsultResult {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConsultConfig().PoolSize
	}
	if cfg.AdvisorTimeout <= 0 {
		cfg.AdvisorTimeout = DefaultConsultConfig().AdvisorTimeout
	}

	// Workers swallow their own failures into outcomes, so the group never
	// cancels siblings; it supplies the pool bound and the join.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.PoolSize)

	outcomes := make(chan consultOutcome, len(ministers))
	for _, m := range ministers {
		m := m
		g.Go(func() error {
			outcomes <- analyzeWithTimeout(gctx, m, in, cfg.AdvisorTimeout)
			return nil
		})
	}
	// Workers never return errors; Wait is just the join.
	_ = g.Wait()
	close(outcomes)

	result := ConsultResult{Positions: make(map[string]types.Position, len(ministers))}
	for out := range outcomes {
		if out.err != nil {
			consultLog.Warn("minister %s omitted: %v", out.domain, out.err)
			result.Omitted = append(result.Omitted, out.domain)
			continue
		}
		if out.voting {
			result.Positions[out.domain] = out.pos
		} else {
			result.Judges = append(result.Judges, out.pos)
		}
	}

	// Channel drain order is scheduling-dependent; sort for stable records.
	sort.Strings(result.Omitted)
	sort.Slice(result.Judges, func(i, j int) bool {
		return result.Judges[i].Domain < result.Judges[j].Domain
	})

	return result
}

// analyzeWithTimeout runs one minister under its own deadline, converting
// panics and expiry into omission errors. Analyze runs in an inner goroutine
// so a stuck minister cannot stall the council past its deadline.
func analyzeWithTimeout(ctx context.Context, m Minister, in Input, timeout time.Duration) consultOutcome {
	// Input is a per-goroutine copy; resolving the minister's own bundle
	// here never races with the sibling workers.
	if in.Retrievals != nil {
		in.Retrieval = in.Retrievals[m.Domain()]
	}

	mctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Already cancelled or expired: don't bother the minister.
	if err := mctx.Err(); err != nil {
		return consultOutcome{domain: m.Domain(), voting: m.Voting(), err: err}
	}

	done := make(chan consultOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- consultOutcome{domain: m.Domain(), voting: m.Voting(), err: fmt.Errorf("panic: %v", r)}
			}
		}()

		pos, err := m.Analyze(mctx, in)
		done <- consultOutcome{domain: m.Domain(), voting: m.Voting(), pos: pos, err: err}
	}()

	select {
	case out := <-done:
		return out
	case <-mctx.Done():
		return consultOutcome{domain: m.Domain(), voting: m.Voting(), err: mctx.Err()}
	}
}
