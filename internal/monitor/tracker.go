package monitor

import (
	"sync"
	"time"
)

// ServiceCall is one recorded outbound call (LLM or external service).
type ServiceCall struct {
	ServiceName string
	Operation   string
	Start       time.Time
	End         time.Time
	Duration    time.Duration
	Success     bool
	Error       string
	Metadata    map[string]any
}

// ServiceAggregate is the per-service rollup the Tracker maintains.
type ServiceAggregate struct {
	Count         int
	TotalDuration time.Duration
	AvgDuration   time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
	TokensUsed    int64
}

// Tracker records outbound service calls and keeps per-service
// aggregates, safe for concurrent appends.
type Tracker struct {
	mu         sync.Mutex
	calls      []ServiceCall
	aggregates map[string]*ServiceAggregate
}

// NewTracker constructs an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{aggregates: make(map[string]*ServiceAggregate)}
}

// Record appends call and folds it into the per-service aggregate.
func (t *Tracker) Record(call ServiceCall) {
	if call.Duration == 0 {
		call.Duration = call.End.Sub(call.Start)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, call)

	agg, ok := t.aggregates[call.ServiceName]
	if !ok {
		agg = &ServiceAggregate{MinDuration: call.Duration, MaxDuration: call.Duration}
		t.aggregates[call.ServiceName] = agg
	}

	agg.Count++
	agg.TotalDuration += call.Duration
	agg.AvgDuration = t.aggregates[call.ServiceName].TotalDuration / time.Duration(agg.Count)
	if call.Duration < agg.MinDuration {
		agg.MinDuration = call.Duration
	}
	if call.Duration > agg.MaxDuration {
		agg.MaxDuration = call.Duration
	}
	if tokens, ok := call.Metadata["tokens_used"]; ok {
		switch v := tokens.(type) {
		case int:
			agg.TokensUsed += int64(v)
		case int64:
			agg.TokensUsed += v
		}
	}

	publishCall(call)
}

// Aggregate returns a copy of the aggregate for serviceName, if any
// calls have been recorded for it.
func (t *Tracker) Aggregate(serviceName string) (ServiceAggregate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg, ok := t.aggregates[serviceName]
	if !ok {
		return ServiceAggregate{}, false
	}
	return *agg, true
}

// Calls returns a defensive copy of every recorded call.
func (t *Tracker) Calls() []ServiceCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ServiceCall, len(t.calls))
	copy(out, t.calls)
	return out
}
