package engine

import "time"

// frameBudget is one frame at 60 Hz.
const frameBudget = 16667 * time.Microsecond

// FrameSample describes one Step. Durations are measured on the loop's
// clock, so a fake clock yields exact values.
type FrameSample struct {
	Frame      int     `json:"frame"`
	At         int64   `json:"at"`
	Ms         float64 `json:"ms"`
	Dispatched int     `json:"dispatched"`
	Timers     int     `json:"timers"`
	Idle       bool    `json:"idle,omitempty"`
}

// FrameTimeline is the traced frames of a Loop, oldest first. OverBudget
// counts every traced frame that took longer than the budget, including
// frames no longer held.
type FrameTimeline struct {
	Samples    []FrameSample `json:"samples"`
	OverBudget int           `json:"overBudget"`
	BudgetMs   float64       `json:"budgetMs"`
}

// frameRing holds the last cap(samples) samples. Until it is full, samples
// grows; after that next marks the oldest entry, which is overwritten.
type frameRing struct {
	samples    []FrameSample
	next       int
	overBudget int
	budget     time.Duration
}

// TraceFrames makes the loop keep a sample of each of the last n frames.
// Frames slower than budget count as over budget; a non-positive budget
// selects one 60 Hz frame. n <= 0 stops tracing and drops the samples.
// Calling it again restarts the trace.
func (l *Loop) TraceFrames(n int, budget time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 {
		l.ring = nil
		return
	}
	if budget <= 0 {
		budget = frameBudget
	}
	l.ring = &frameRing{samples: make([]FrameSample, 0, n), budget: budget}
}

// Tracing reports whether TraceFrames is active.
func (l *Loop) Tracing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring != nil
}

// Frames returns a copy of the traced frames. Without tracing the timeline
// is empty.
func (l *Loop) Frames() FrameTimeline {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.ring
	if r == nil {
		return FrameTimeline{}
	}
	out := make([]FrameSample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return FrameTimeline{
		Samples:    out,
		OverBudget: r.overBudget,
		BudgetMs:   millis(r.budget),
	}
}

// record stores s, taking d as the frame's duration. The owning loop's
// mutex must be held.
func (r *frameRing) record(s FrameSample, d time.Duration) {
	if d > r.budget {
		r.overBudget++
	}
	if len(r.samples) < cap(r.samples) {
		r.samples = append(r.samples, s)
		return
	}
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
