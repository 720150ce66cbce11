package carml

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector receives timing and progress events from the pipeline.
// Implementations must be safe for concurrent use.
type MetricsCollector interface {
	// RecordStage is called once per pipeline stage.
	RecordStage(stage string, duration time.Duration, err error)

	// RecordDataset is called after a dataset is registered or resolved.
	RecordDataset(name string, version uint64, registered bool)

	// RecordEpoch is called after every training epoch.
	RecordEpoch(epoch int, loss, acc float64, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

// RecordStage does nothing.
func (NoopMetricsCollector) RecordStage(string, time.Duration, error) {}

// RecordDataset does nothing.
func (NoopMetricsCollector) RecordDataset(string, uint64, bool) {}

// RecordEpoch does nothing.
func (NoopMetricsCollector) RecordEpoch(int, float64, float64, time.Duration) {}

// BasicMetricsCollector keeps counters and per-stage durations in memory.
type BasicMetricsCollector struct {
	stagesRun      atomic.Int64
	stageErrors    atomic.Int64
	datasetsFound  atomic.Int64
	datasetsAdded  atomic.Int64
	epochs         atomic.Int64
	trainingNanos  atomic.Int64
	lastLossBits   atomic.Uint64
	lastAccBits    atomic.Uint64
	mu             sync.Mutex
	stageDurations map[string]time.Duration
}

// NewBasicMetricsCollector creates an empty collector.
func NewBasicMetricsCollector() *BasicMetricsCollector {
	return &BasicMetricsCollector{
		stageDurations: make(map[string]time.Duration),
	}
}

// RecordStage implements MetricsCollector.
func (c *BasicMetricsCollector) RecordStage(stage string, duration time.Duration, err error) {
	c.stagesRun.Add(1)
	if err != nil {
		c.stageErrors.Add(1)
	}

	c.mu.Lock()
	c.stageDurations[stage] += duration
	c.mu.Unlock()
}

// RecordDataset implements MetricsCollector.
func (c *BasicMetricsCollector) RecordDataset(_ string, _ uint64, registered bool) {
	if registered {
		c.datasetsAdded.Add(1)
	} else {
		c.datasetsFound.Add(1)
	}
}

// RecordEpoch implements MetricsCollector.
func (c *BasicMetricsCollector) RecordEpoch(_ int, loss, acc float64, duration time.Duration) {
	c.epochs.Add(1)
	c.trainingNanos.Add(int64(duration))
	c.lastLossBits.Store(math.Float64bits(loss))
	c.lastAccBits.Store(math.Float64bits(acc))
}

// BasicMetricsStats is a snapshot of a BasicMetricsCollector.
type BasicMetricsStats struct {
	StagesRun        int64
	StageErrors      int64
	DatasetsResolved int64
	DatasetsAdded    int64
	Epochs           int64
	TrainingTime     time.Duration
	LastLoss         float64
	LastAcc          float64
	StageDurations   map[string]time.Duration
}

// GetStats returns a snapshot of the collected values.
func (c *BasicMetricsCollector) GetStats() BasicMetricsStats {
	c.mu.Lock()
	durations := make(map[string]time.Duration, len(c.stageDurations))
	for k, v := range c.stageDurations {
		durations[k] = v
	}
	c.mu.Unlock()

	return BasicMetricsStats{
		StagesRun:        c.stagesRun.Load(),
		StageErrors:      c.stageErrors.Load(),
		DatasetsResolved: c.datasetsFound.Load(),
		DatasetsAdded:    c.datasetsAdded.Load(),
		Epochs:           c.epochs.Load(),
		TrainingTime:     time.Duration(c.trainingNanos.Load()),
		LastLoss:         math.Float64frombits(c.lastLossBits.Load()),
		LastAcc:          math.Float64frombits(c.lastAccBits.Load()),
		StageDurations:   durations,
	}
}
