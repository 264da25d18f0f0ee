// Package profiler keeps rolling timing and counter statistics for the
// detection pipeline and reports them periodically.
package profiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operation names recorded by the pipeline.
const (
	OpConvert   = "convert"
	OpInference = "inference"
)

// Counter names recorded by the pipeline.
const (
	CounterAdmitted  = "frames_admitted"
	CounterDropped   = "frames_dropped"
	CounterPublished = "results_published"
	CounterFailed    = "frames_failed"
)

// Recorder is the subset of the profiler used by instrumented code.
type Recorder interface {
	StartOperation(name string) func()
	Increment(name string)
}

// Nop is a Recorder that records nothing.
type Nop struct{}

func (Nop) StartOperation(string) func() { return func() {} }
func (Nop) Increment(string)             {}

// MetricsCollector is polled on every sample for gauge values.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler tracks operation timings, counters and gauges, and logs a
// status report on a fixed interval. It is safe for concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	log            *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	startTime  time.Time
	running    bool
	memStats   runtime.MemStats
	gauges     map[string]*MetricTracker
	counters   map[string]uint64
	collectors []MetricsCollector
	operations map[string]*TimeTracker
}

// MetricTracker keeps a rolling window of gauge samples.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
}

// TimeTracker keeps a rolling window of operation durations.
type TimeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log a status report (default: 2s)
	ReportInterval time.Duration `json:"reportInterval" yaml:"reportInterval"`
	// SampleInterval specifies how often to poll collectors (default: 100ms)
	SampleInterval time.Duration `json:"sampleInterval" yaml:"sampleInterval"`
	// MaxSamples bounds every rolling window (default: 600)
	MaxSamples int `json:"maxSamples" yaml:"maxSamples"`
	// Logger receives the status reports.
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// NewRuntimeProfiler creates a profiler. Call Start to begin reporting;
// recording works whether or not it is running.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 100 * time.Millisecond
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		log:            logger.Sugar().Named("profiler"),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		gauges:         make(map[string]*MetricTracker),
		counters:       make(map[string]uint64),
		operations:     make(map[string]*TimeTracker),
	}
}

// Start begins sampling and reporting. Calling it more than once is a no-op.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	rp.startTime = time.Now()

	rp.wg.Add(2)
	go rp.every(rp.sampleInterval, rp.sample)
	go rp.every(rp.reportInterval, rp.report)
}

// Stop halts reporting and waits for the background goroutines. A stopped
// profiler cannot be restarted.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

func (rp *RuntimeProfiler) every(interval time.Duration, fn func()) {
	defer rp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// AddMetricsCollector registers a gauge source polled on every sample.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records one gauge sample.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, ok := rp.gauges[name]
	if !ok {
		tracker = &MetricTracker{min: value, max: value}
		rp.gauges[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// Increment adds one to a named counter.
func (rp *RuntimeProfiler) Increment(name string) {
	rp.mu.Lock()
	rp.counters[name]++
	rp.mu.Unlock()
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.recordOperationTime(name, time.Since(start))
	}
}

func (rp *RuntimeProfiler) recordOperationTime(name string, d time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, ok := rp.operations[name]
	if !ok {
		tracker = &TimeTracker{min: d, max: d}
		rp.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, d)
	tracker.total += d
	if len(tracker.durations) > rp.maxSamples {
		tracker.total -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++
	tracker.min = min(tracker.min, d)
	tracker.max = max(tracker.max, d)
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	// Collectors may take their own locks, so poll them outside ours.
	polled := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		polled = append(polled, c.CollectMetrics())
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	runtime.ReadMemStats(&rp.memStats)
	for _, metrics := range polled {
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
	}
}

// OperationStats summarizes the rolling window of one operation.
type OperationStats struct {
	Count int64
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Stats is a point-in-time copy of everything recorded.
type Stats struct {
	Uptime     time.Duration
	Goroutines int
	HeapAlloc  uint64
	Counters   map[string]uint64
	Operations map[string]OperationStats
	Gauges     map[string]float64
}

// Snapshot returns a copy of the current statistics. Gauges report the
// window average.
func (rp *RuntimeProfiler) Snapshot() Stats {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	s := Stats{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  rp.memStats.HeapAlloc,
		Counters:   make(map[string]uint64, len(rp.counters)),
		Operations: make(map[string]OperationStats, len(rp.operations)),
		Gauges:     make(map[string]float64, len(rp.gauges)),
	}
	for name, n := range rp.counters {
		s.Counters[name] = n
	}
	for name, t := range rp.operations {
		if len(t.durations) == 0 {
			continue
		}
		s.Operations[name] = OperationStats{
			Count: t.count,
			Avg:   t.total / time.Duration(len(t.durations)),
			Min:   t.min,
			Max:   t.max,
		}
	}
	for name, t := range rp.gauges {
		if len(t.values) > 0 {
			s.Gauges[name] = t.sum / float64(len(t.values))
		}
	}
	return s
}

func (rp *RuntimeProfiler) report() {
	s := rp.Snapshot()

	fields := []interface{}{
		"uptime", s.Uptime.Truncate(time.Millisecond),
		"goroutines", s.Goroutines,
		"heap", formatBytes(s.HeapAlloc),
	}
	for _, name := range sortedKeys(s.Counters) {
		fields = append(fields, name, s.Counters[name])
	}
	for _, name := range sortedKeys(s.Operations) {
		op := s.Operations[name]
		fields = append(fields, name, fmt.Sprintf("avg=%v max=%v n=%d",
			op.Avg.Truncate(time.Microsecond), op.Max.Truncate(time.Microsecond), op.Count))
	}
	for _, name := range sortedKeys(s.Gauges) {
		fields = append(fields, name, s.Gauges[name])
	}
	rp.log.Infow("status", fields...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
