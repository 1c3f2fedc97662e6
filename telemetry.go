package taskpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-microbatch"
)

// This file wires two domain-adjacent dependencies for scheduling trace
// output: go-microbatch coalesces the individual scheduling events into
// periodic batches, and go-catrate throttles how often the per-pool summary
// of those batches may be emitted as a DEBUG log line, so a task yielding
// thousands of times produces a handful of log lines instead of thousands.

// traceEvent is one scheduling occurrence: a resume or a migration.
type traceEvent struct {
	poolID uint64
	kind   string // "resume", "migrate"
}

// traceSink batches traceEvents and periodically emits one aggregated log
// Entry per pool via the configured Logger. A nil *traceSink is valid and
// simply drops events (used when WithTrace is not enabled).
type traceSink struct {
	batcher *microbatch.Batcher[traceEvent]
	limiter *catrate.Limiter
	logger  Logger
	counts  map[uint64]map[string]*atomic.Int64
}

// newTraceSink builds a traceSink that flushes at most once per flushEvery,
// or after maxBatch events, whichever comes first, and rate-limits the
// resulting log emission to at most one line per pool per rateWindow.
func newTraceSink(logger Logger, flushEvery time.Duration, maxBatch int, rateWindow time.Duration) *traceSink {
	ts := &traceSink{
		logger: logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			rateWindow: 1,
		}),
		counts: make(map[uint64]map[string]*atomic.Int64),
	}
	ts.batcher = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:       maxBatch,
		FlushInterval: flushEvery,
	}, ts.process)
	return ts
}

func (ts *traceSink) counterFor(poolID uint64, kind string) *atomic.Int64 {
	byKind, ok := ts.counts[poolID]
	if !ok {
		byKind = make(map[string]*atomic.Int64)
		ts.counts[poolID] = byKind
	}
	c, ok := byKind[kind]
	if !ok {
		c = new(atomic.Int64)
		byKind[kind] = c
	}
	return c
}

// process is the microbatch.BatchProcessor: it just tallies, the actual
// emission happens lazily whenever the rate limiter next allows it, so a
// burst of flushes during a quiet period doesn't itself spam the logger.
func (ts *traceSink) process(_ context.Context, jobs []traceEvent) error {
	for _, j := range jobs {
		ts.counterFor(j.poolID, j.kind).Add(1)
	}
	for poolID, byKind := range ts.counts {
		if _, ok := ts.limiter.Allow(poolID); !ok {
			continue
		}
		fields := make(map[string]any, len(byKind))
		for kind, c := range byKind {
			if n := c.Swap(0); n > 0 {
				fields[kind] = n
			}
		}
		if len(fields) == 0 {
			continue
		}
		ts.logger.Log(Entry{
			Level:    LevelDebug,
			Category: "trace",
			PoolID:   poolID,
			Message:  "scheduling activity summary",
			Fields:   fields,
		})
	}
	return nil
}

// record submits an event, blocking the scheduling path on the batcher's
// internal handshake for at most 10ms; submission failures (e.g. the sink is
// closed, or the 10ms elapse) are silently dropped since tracing must never
// affect scheduling correctness.
func (ts *traceSink) record(poolID uint64, kind string) {
	if ts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _ = ts.batcher.Submit(ctx, traceEvent{poolID: poolID, kind: kind})
}

func (ts *traceSink) close() {
	if ts == nil {
		return
	}
	_ = ts.batcher.Close()
}
