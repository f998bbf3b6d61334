package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxSamples bounds the rolling window kept per metric name.
	DefaultMaxSamples = 100
)

// Sample is one recorded metric observation.
type Sample struct {
	Name      string
	Value     float64
	Timestamp time.Time
}

// Aggregate summarizes the retained samples for one metric name. It is
// computed when read, not maintained incrementally.
type Aggregate struct {
	Count int
	Mean  float64
	Min   float64
	Max   float64
}

// Operation is a handle for one in-flight timed operation. Handles are
// created by StartOperation and consumed by EndOperation; the monitor keeps
// no registry of outstanding handles.
type Operation struct {
	ID    string
	Name  string
	start time.Time
}

// Monitor collects operation timings and arbitrary metrics with a small
// rolling sample window per metric name. It is safe for concurrent use.
type Monitor struct {
	mu         sync.Mutex
	maxSamples int
	samples    map[string][]Sample
}

// New creates a monitor retaining up to maxSamples observations per metric.
// Values <= 0 select DefaultMaxSamples.
func New(maxSamples int) *Monitor {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Monitor{
		maxSamples: maxSamples,
		samples:    make(map[string][]Sample),
	}
}

// StartOperation begins timing a named operation and returns its handle.
func (m *Monitor) StartOperation(name string) *Operation {
	return &Operation{
		ID:    uuid.NewString(),
		Name:  name,
		start: time.Now(),
	}
}

// EndOperation stops the clock on op, records the duration under
// "<name>.duration_ms", and returns the duration in milliseconds.
func (m *Monitor) EndOperation(op *Operation) float64 {
	if op == nil {
		return 0
	}
	ms := float64(time.Since(op.start)) / float64(time.Millisecond)
	m.RecordMetric(op.Name+".duration_ms", ms)
	return ms
}

// Measure times fn under the given operation name and passes through its
// error. The duration is recorded whether or not fn fails.
func (m *Monitor) Measure(name string, fn func() error) error {
	op := m.StartOperation(name)
	err := fn()
	m.EndOperation(op)
	return err
}

// RecordMetric appends one observation for name, dropping the oldest sample
// once the rolling window is full.
func (m *Monitor) RecordMetric(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := append(m.samples[name], Sample{Name: name, Value: value, Timestamp: time.Now()})
	if len(samples) > m.maxSamples {
		samples = samples[len(samples)-m.maxSamples:]
	}
	m.samples[name] = samples
}

// Samples returns a copy of the retained window for one metric name.
func (m *Monitor) Samples(name string) []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, len(m.samples[name]))
	copy(out, m.samples[name])
	return out
}

// Metrics computes count, mean, min, and max for every metric name with at
// least one retained sample.
func (m *Monitor) Metrics() map[string]Aggregate {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Aggregate, len(m.samples))
	for name, samples := range m.samples {
		if len(samples) == 0 {
			continue
		}
		agg := Aggregate{
			Count: len(samples),
			Min:   samples[0].Value,
			Max:   samples[0].Value,
		}
		sum := 0.0
		for _, s := range samples {
			sum += s.Value
			if s.Value < agg.Min {
				agg.Min = s.Value
			}
			if s.Value > agg.Max {
				agg.Max = s.Value
			}
		}
		agg.Mean = sum / float64(len(samples))
		out[name] = agg
	}
	return out
}

// MetricNames returns the known metric names in sorted order.
func (m *Monitor) MetricNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.samples))
	for name := range m.samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset discards every retained sample.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = make(map[string][]Sample)
}
