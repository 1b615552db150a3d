// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Bytes touched by the operation (segment size for parse, delete, move)
	TotalBytes int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Op          string  `yaml:"op"`
	Count       int64   `yaml:"count"`
	TotalTimeMs int64   `yaml:"total_ms"`
	AvgTimeMs   float64 `yaml:"avg_ms"`
	MinTimeMs   int64   `yaml:"min_ms"`
	MaxTimeMs   int64   `yaml:"max_ms"`
	TotalBytes  int64   `yaml:"bytes,omitempty"`
}

// Snapshot represents the statistics of a run at a point in time.
type Snapshot struct {
	ElapsedSeconds float64             `yaml:"elapsed_seconds"`
	Operations     []OperationSnapshot `yaml:"operations"`
}

// Operation names for the collector.
const (
	OpParse   = "parse"
	OpScan    = "scan_range"
	OpResolve = "resolve"
	OpDelete  = "delete"
	OpRename  = "rename"
	OpMove    = "move"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe. A nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.Record(op, duration, 0)
}

// Record records timing and bytes for an operation.
func (c *Collector) Record(op string, duration time.Duration, bytes int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration
	m.TotalBytes += bytes

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Time starts a timer for op. Call the returned func when the operation ends.
//
//	done := c.Time(metrics.OpParse)
//	defer done(size)
func (c *Collector) Time(op string) func(bytes int64) {
	start := time.Now()
	return func(bytes int64) {
		c.Record(op, time.Since(start), bytes)
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(op string, m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Op:          op,
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
		TotalBytes:  m.TotalBytes,
	}
}

// Snapshot returns a point-in-time snapshot of all metrics, sorted by
// operation name.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{ElapsedSeconds: time.Since(c.startTime).Seconds()}
	for op, m := range c.ops {
		if s := snapshotOp(op, m); s != nil {
			snap.Operations = append(snap.Operations, *s)
		}
	}
	sort.Slice(snap.Operations, func(i, j int) bool {
		return snap.Operations[i].Op < snap.Operations[j].Op
	})
	return snap
}

// Get returns the snapshot for a single operation, or nil.
func (c *Collector) Get(op string) *OperationSnapshot {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return snapshotOp(op, c.ops[op])
}
