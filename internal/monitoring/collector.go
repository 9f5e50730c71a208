// Package monitoring aggregates in-process counters for parse and
// workflow activity. The collector plugs into the parser and session
// manager as an observer and exposes point-in-time snapshots for the
// metrics endpoint and CLI summaries.
package monitoring

import (
	"sync"
	"time"

	"github.com/marketlens/marketlens-cli/internal/model"
)

// MetricsSnapshot holds a point-in-time view of system activity.
type MetricsSnapshot struct {
	// Parse metrics.
	ParseTotal        int            `json:"parse_total"`
	ParseByType       map[string]int `json:"parse_by_type"`
	ParseByConfidence map[string]int `json:"parse_by_confidence"`
	ParseFailed       int            `json:"parse_failed"`
	ParseAvgTimeMS    float64        `json:"parse_avg_time_ms"`
	FieldHits         map[string]int `json:"field_hits"`

	// Workflow metrics.
	TransitionTotal   int            `json:"transition_total"`
	TransitionByEvent map[string]int `json:"transition_by_event"`
	TransitionFailed  int            `json:"transition_failed"`
	EmergencyResets   int            `json:"emergency_resets"`
	ErrorsEntered     int            `json:"errors_entered"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector accumulates counters. Safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	parseTotal        int
	parseByType       map[string]int
	parseByConfidence map[string]int
	parseFailed       int
	parseTimeMSTotal  int64
	fieldHits         map[string]int

	transitionTotal   int
	transitionByEvent map[string]int
	transitionFailed  int
	emergencyResets   int
	errorsEntered     int
}

// NewCollector creates an empty metrics collector.
func NewCollector() *Collector {
	return &Collector{
		parseByType:       make(map[string]int),
		parseByConfidence: make(map[string]int),
		fieldHits:         make(map[string]int),
		transitionByEvent: make(map[string]int),
	}
}

// ObserveParse records a completed parse result.
func (c *Collector) ObserveParse(res *model.ParseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.parseTotal++
	c.parseByType[string(res.DataType)]++
	c.parseByConfidence[string(res.Confidence)]++
	c.parseTimeMSTotal += res.ParseTimeMS
	if res.Confidence == model.ConfidenceFailed {
		c.parseFailed++
	}
	for field := range res.ParsedData {
		c.fieldHits[field]++
	}
}

// ObserveTransition records an executed workflow transition.
func (c *Collector) ObserveTransition(_ string, rec model.TransitionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.transitionTotal++
	c.transitionByEvent[rec.Event]++
	if !rec.Success {
		c.transitionFailed++
	}
	if rec.Event == "emergency_reset" {
		c.emergencyResets++
	}
	if rec.To == model.StateError {
		c.errorsEntered++
	}
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &MetricsSnapshot{
		ParseTotal:        c.parseTotal,
		ParseByType:       copyCounts(c.parseByType),
		ParseByConfidence: copyCounts(c.parseByConfidence),
		ParseFailed:       c.parseFailed,
		FieldHits:         copyCounts(c.fieldHits),
		TransitionTotal:   c.transitionTotal,
		TransitionByEvent: copyCounts(c.transitionByEvent),
		TransitionFailed:  c.transitionFailed,
		EmergencyResets:   c.emergencyResets,
		ErrorsEntered:     c.errorsEntered,
		CollectedAt:       time.Now().UTC(),
	}
	if c.parseTotal > 0 {
		snap.ParseAvgTimeMS = float64(c.parseTimeMSTotal) / float64(c.parseTotal)
	}
	return snap
}

// Reset zeroes all counters.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.parseTotal = 0
	c.parseByType = make(map[string]int)
	c.parseByConfidence = make(map[string]int)
	c.parseFailed = 0
	c.parseTimeMSTotal = 0
	c.fieldHits = make(map[string]int)
	c.transitionTotal = 0
	c.transitionByEvent = make(map[string]int)
	c.transitionFailed = 0
	c.emergencyResets = 0
	c.errorsEntered = 0
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
