package orchestrator

import (
	"sync"

	"github.com/Iron-Ham/workcrew/internal/event"
)

// WarningThresholds are the capacity ratios that emit a warning, each at
// most once per run.
var WarningThresholds = []float64{0.80, 0.90, 0.95}

// DefaultHaltRatio is the share of the ceiling above which a run halts.
const DefaultHaltRatio = 0.95

// capacityTracker monitors the estimated token size of a run's accumulated
// context against a ceiling.
type capacityTracker struct {
	mu          sync.RWMutex
	executionID string
	ceiling     int
	haltRatio   float64
	used        int
	fired       []bool
	sink        event.Sink
}

func newCapacityTracker(executionID string, ceiling int, haltRatio float64, sink event.Sink) *capacityTracker {
	if haltRatio <= 0 || haltRatio > 1 {
		haltRatio = DefaultHaltRatio
	}
	return &capacityTracker{
		executionID: executionID,
		ceiling:     ceiling,
		haltRatio:   haltRatio,
		fired:       make([]bool, len(WarningThresholds)),
		sink:        sink,
	}
}

// Update sets the current context size and reports whether it exceeds the
// halt ratio. Warnings for newly crossed thresholds are emitted outside the
// lock. A tracker without a ceiling never halts.
func (ct *capacityTracker) Update(used int) bool {
	ct.mu.Lock()
	ct.used = used
	if ct.ceiling <= 0 {
		ct.mu.Unlock()
		return false
	}
	ratio := float64(used) / float64(ct.ceiling)
	var crossed []float64
	for i, th := range WarningThresholds {
		if !ct.fired[i] && ratio >= th {
			ct.fired[i] = true
			crossed = append(crossed, th)
		}
	}
	exceeded := ratio > ct.haltRatio
	ct.mu.Unlock()

	for _, th := range crossed {
		ct.sink.Emit(event.NewCapacityWarningEvent(ct.executionID, used, ct.ceiling, th))
	}
	return exceeded
}

// Exceeds reports whether used would exceed the halt ratio without
// recording it.
func (ct *capacityTracker) Exceeds(used int) bool {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.ceiling > 0 && float64(used)/float64(ct.ceiling) > ct.haltRatio
}

// Used returns the last recorded context size.
func (ct *capacityTracker) Used() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.used
}

// Ceiling returns the configured ceiling.
func (ct *capacityTracker) Ceiling() int {
	return ct.ceiling
}
