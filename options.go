package taskpool

import "time"

// Options holds Pool construction configuration, populated via the
// functional-options pattern.
type Options struct {
	workers          int
	defaultStackSize int
	metrics          bool
	trace            bool
	logger           Logger
	traceFlush       time.Duration
	traceBatch       int
	traceRateWindow  time.Duration
}

func defaultOptions() *Options {
	return &Options{
		workers:          0,
		defaultStackSize: 64 * 1024,
		traceFlush:       50 * time.Millisecond,
		traceBatch:       256,
		traceRateWindow:  time.Second,
	}
}

// Option configures a Pool at construction time.
type Option interface {
	apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) apply(o *Options) { f(o) }

// WithWorkers starts n workers immediately as part of PoolCreate, in
// addition to any later (*Pool).Start calls.
func WithWorkers(n int) Option {
	return optionFunc(func(o *Options) { o.workers = n })
}

// WithDefaultStackSize sets the stack-size reservation used by TaskCreate
// when called with size <= 0. Defaults to 64KiB.
func WithDefaultStackSize(n int) Option {
	return optionFunc(func(o *Options) { o.defaultStackSize = n })
}

// WithMetrics enables per-pool scheduling metrics, readable via
// (*Pool).Metrics.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *Options) { o.metrics = enabled })
}

// WithLogger overrides the package-level logger for a single pool.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *Options) { o.logger = l })
}

// WithTrace enables batched scheduling-event tracing (resumes and
// migrations) for the pool, coalesced and rate-limited before it reaches the
// log. Wakes are not traced; they are counted only by WithMetrics.
func WithTrace(enabled bool) Option {
	return optionFunc(func(o *Options) { o.trace = enabled })
}

// WithTraceFlush overrides the trace batcher's flush interval/batch size.
func WithTraceFlush(interval time.Duration, maxBatch int) Option {
	return optionFunc(func(o *Options) {
		o.traceFlush = interval
		o.traceBatch = maxBatch
	})
}

// WithTraceRateWindow overrides how often the trace sink may emit a summary
// log line per pool.
func WithTraceRateWindow(window time.Duration) Option {
	return optionFunc(func(o *Options) { o.traceRateWindow = window })
}
