package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Stages recorded for every generation.
const (
	StageBackendCall = "backend_call"
	StageGenerate    = "generate_total"
)

// LatencyStats summarizes one stage over the most recent generations.
type LatencyStats struct {
	Stage   string  `json:"stage"`
	Samples int     `json:"samples"`
	LastMS  float64 `json:"last_ms"`
	AvgMS   float64 `json:"avg_ms"`
	P50MS   float64 `json:"p50_ms"`
	P95MS   float64 `json:"p95_ms"`
	MaxMS   float64 `json:"max_ms"`
	// BudgetMS is the stage's allowance; OverBudget counts samples past it.
	BudgetMS   float64 `json:"budget_ms,omitempty"`
	OverBudget int     `json:"over_budget,omitempty"`
}

// LatencySnapshot is served by /v1/perf/latency.
type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []LatencyStats `json:"stages"`
	Outcomes    map[string]int `json:"outcomes,omitempty"`
}

// ring holds the last len(vals) samples of one stage.
type ring struct {
	vals []float64
	pos  int
	n    int
	last float64
}

func (r *ring) add(v float64) {
	r.vals[r.pos] = v
	r.pos = (r.pos + 1) % len(r.vals)
	if r.n < len(r.vals) {
		r.n++
	}
	r.last = v
}

func (r *ring) sorted() []float64 {
	out := make([]float64, r.n)
	copy(out, r.vals[:r.n])
	sort.Float64s(out)
	return out
}

// latencyWindow keeps rolling per-stage samples and outcome counts for the
// operator latency view. Prometheus histograms cover long-term trends.
type latencyWindow struct {
	mu       sync.Mutex
	size     int
	stages   map[string]*ring
	budgets  map[string]float64
	outcomes map[string]int
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{
		size:     size,
		stages:   make(map[string]*ring),
		budgets:  make(map[string]float64),
		outcomes: make(map[string]int),
	}
}

func (w *latencyWindow) setBudget(stage string, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d <= 0 {
		delete(w.budgets, stage)
		return
	}
	w.budgets[stage] = float64(d.Milliseconds())
}

func (w *latencyWindow) observe(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.stages[stage]
	if !ok {
		r = &ring{vals: make([]float64, w.size)}
		w.stages[stage] = r
	}
	r.add(float64(d.Microseconds()) / 1000)
}

func (w *latencyWindow) countOutcome(outcome string) {
	if outcome == "" {
		return
	}
	w.mu.Lock()
	w.outcomes[outcome]++
	w.mu.Unlock()
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stages = make(map[string]*ring)
	w.outcomes = make(map[string]int)
}

func (w *latencyWindow) snapshot() LatencySnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.stages))
	for name, r := range w.stages {
		if r.n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	stages := make([]LatencyStats, 0, len(names))
	for _, name := range names {
		r := w.stages[name]
		vals := r.sorted()
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		st := LatencyStats{
			Stage:   name,
			Samples: len(vals),
			LastMS:  round2(r.last),
			AvgMS:   round2(sum / float64(len(vals))),
			P50MS:   round2(nearestRank(vals, 50)),
			P95MS:   round2(nearestRank(vals, 95)),
			MaxMS:   round2(vals[len(vals)-1]),
		}
		if budget, ok := w.budgets[name]; ok {
			st.BudgetMS = budget
			idx := sort.SearchFloat64s(vals, budget)
			for idx < len(vals) && vals[idx] == budget {
				idx++
			}
			st.OverBudget = len(vals) - idx
		}
		stages = append(stages, st)
	}

	var outcomes map[string]int
	if len(w.outcomes) > 0 {
		outcomes = make(map[string]int, len(w.outcomes))
		for k, v := range w.outcomes {
			outcomes[k] = v
		}
	}

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      stages,
		Outcomes:    outcomes,
	}
}

// nearestRank returns the p-th percentile of sorted values.
func nearestRank(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
