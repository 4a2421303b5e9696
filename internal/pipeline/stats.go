package pipeline

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Timing is the wall time one conversion spent in each phase. A job built
// from a session has no trace time.
type Timing struct {
	Trace       time.Duration
	Reconstruct time.Duration
	Export      time.Duration
}

// Total returns the sum of all phases.
func (t Timing) Total() time.Duration {
	return t.Trace + t.Reconstruct + t.Export
}

// RunRecord is what a worker reports when a conversion finishes.
type RunRecord struct {
	Timing    Timing
	Status    JobStatus
	Regions   int
	Discarded int
}

// PhaseStats summarizes one phase's durations in milliseconds.
type PhaseStats struct {
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	MaxMs float64 `json:"max_ms"`
}

// StatsSnapshot aggregates the runs inside the window.
type StatsSnapshot struct {
	Runs        int        `json:"runs"`
	Failed      int        `json:"failed"`
	Partial     int        `json:"partial"`
	Regions     int        `json:"regions"`
	Discarded   int        `json:"discarded"`
	Trace       PhaseStats `json:"trace"`
	Reconstruct PhaseStats `json:"reconstruct"`
	Export      PhaseStats `json:"export"`
	Total       PhaseStats `json:"total"`
}

type stamped struct {
	at time.Time
	RunRecord
}

// RunStats keeps the most recent conversions in a fixed ring and reports
// per-phase latency for those younger than the window.
type RunStats struct {
	mu     sync.Mutex
	ring   []stamped
	next   int
	filled bool
	window time.Duration
}

const runStatsCapacity = 1024

func NewRunStats(window time.Duration) *RunStats {
	if window <= 0 {
		window = time.Hour
	}
	return &RunStats{
		ring:   make([]stamped, runStatsCapacity),
		window: window,
	}
}

// Record adds one finished conversion, overwriting the oldest when full.
func (s *RunStats) Record(rec RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = stamped{at: time.Now(), RunRecord: rec}
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.filled = true
	}
}

func (s *RunStats) recent() []RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.filled {
		n = len(s.ring)
	}
	cutoff := time.Now().Add(-s.window)
	out := make([]RunRecord, 0, n)
	for _, r := range s.ring[:n] {
		if !r.at.Before(cutoff) {
			out = append(out, r.RunRecord)
		}
	}
	return out
}

// Snapshot aggregates the runs recorded within the window.
func (s *RunStats) Snapshot() StatsSnapshot {
	runs := s.recent()
	snap := StatsSnapshot{Runs: len(runs)}
	if len(runs) == 0 {
		return snap
	}

	var trace, rebuild, export, total []time.Duration
	for _, r := range runs {
		switch r.Status {
		case StatusFailed:
			snap.Failed++
		case StatusPartial:
			snap.Partial++
		}
		snap.Regions += r.Regions
		snap.Discarded += r.Discarded
		trace = appendPositive(trace, r.Timing.Trace)
		rebuild = appendPositive(rebuild, r.Timing.Reconstruct)
		export = appendPositive(export, r.Timing.Export)
		total = append(total, r.Timing.Total())
	}
	snap.Trace = phaseStats(trace)
	snap.Reconstruct = phaseStats(rebuild)
	snap.Export = phaseStats(export)
	snap.Total = phaseStats(total)
	return snap
}

// appendPositive skips phases a run never reached.
func appendPositive(d []time.Duration, v time.Duration) []time.Duration {
	if v > 0 {
		return append(d, v)
	}
	return d
}

func phaseStats(d []time.Duration) PhaseStats {
	if len(d) == 0 {
		return PhaseStats{}
	}
	slices.Sort(d)
	return PhaseStats{
		P50Ms: ms(nearestRank(d, 50)),
		P95Ms: ms(nearestRank(d, 95)),
		MaxMs: ms(d[len(d)-1]),
	}
}

// nearestRank returns the smallest sample with at least pct percent of
// the sorted samples at or below it.
func nearestRank(sorted []time.Duration, pct float64) time.Duration {
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	return sorted[max(rank-1, 0)]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
