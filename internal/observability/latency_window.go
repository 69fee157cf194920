package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Latency stages recorded per voice turn.
const (
	StageCommitToFirstAudio = "commit_to_first_audio"
	StageIntentClassify     = "intent_classify"
	StageToolPrefix         = "tool:"
	StageConfigApply        = "config_apply"
)

type LatencyStats struct {
	Stage     string  `json:"stage"`
	Samples   int     `json:"samples"`
	LastMS    float64 `json:"last_ms"`
	AvgMS     float64 `json:"avg_ms"`
	P50MS     float64 `json:"p50_ms"`
	P95MS     float64 `json:"p95_ms"`
	BudgetMS  float64 `json:"budget_ms,omitempty"`
	OverCount int     `json:"over_budget,omitempty"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	WindowSize  int            `json:"window_size"`
	Stages      []LatencyStats `json:"stages"`
}

// LatencyWindow keeps a ring of recent samples per stage so the HTTP layer
// can report rolling percentiles without scraping Prometheus.
type LatencyWindow struct {
	mu     sync.RWMutex
	size   int
	stages map[string]*latencyRing
}

type latencyRing struct {
	values []float64
	next   int
	filled bool
	last   float64
	over   int
}

func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 128
	}
	return &LatencyWindow{size: size, stages: make(map[string]*latencyRing)}
}

func (w *LatencyWindow) Observe(stage string, d time.Duration) {
	if w == nil {
		return
	}
	stage = strings.TrimSpace(stage)
	if stage == "" || d < 0 {
		return
	}
	ms := float64(d.Microseconds()) / 1000

	w.mu.Lock()
	defer w.mu.Unlock()
	ring, ok := w.stages[stage]
	if !ok {
		ring = &latencyRing{values: make([]float64, w.size)}
		w.stages[stage] = ring
	}
	ring.values[ring.next] = ms
	ring.last = ms
	if budget := stageBudgetMS(stage); budget > 0 && ms > budget {
		ring.over++
	}
	ring.next++
	if ring.next >= len(ring.values) {
		ring.next = 0
		ring.filled = true
	}
}

func (w *LatencyWindow) Snapshot() LatencySnapshot {
	snap := LatencySnapshot{GeneratedAt: time.Now().UTC()}
	if w == nil {
		return snap
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap.WindowSize = w.size

	keys := make([]string, 0, len(w.stages))
	for k := range w.stages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snap.Stages = make([]LatencyStats, 0, len(keys))
	for _, stage := range keys {
		ring := w.stages[stage]
		n := ring.next
		if ring.filled {
			n = len(ring.values)
		}
		if n == 0 {
			continue
		}
		samples := append([]float64(nil), ring.values[:n]...)
		sort.Float64s(samples)
		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		snap.Stages = append(snap.Stages, LatencyStats{
			Stage:     stage,
			Samples:   n,
			LastMS:    round2(ring.last),
			AvgMS:     round2(sum / float64(n)),
			P50MS:     round2(quantile(samples, 0.50)),
			P95MS:     round2(quantile(samples, 0.95)),
			BudgetMS:  stageBudgetMS(stage),
			OverCount: ring.over,
		})
	}
	return snap
}

func (w *LatencyWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.stages = make(map[string]*latencyRing)
	w.mu.Unlock()
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func stageBudgetMS(stage string) float64 {
	switch {
	case stage == StageCommitToFirstAudio:
		return 1400
	case stage == StageIntentClassify:
		return 300
	case stage == StageConfigApply:
		return 250
	case strings.HasPrefix(stage, StageToolPrefix):
		return 5000
	default:
		return 0
	}
}
