// Package progress accounts elapsed time per pipeline stage and produces a
// dynamic estimate of the time remaining for the whole run.
package progress

import (
	"sync"
	"time"
)

// Granularity classifies how a stage consumes its inputs. Observed
// per-unit timings only inform estimates for stages of the same kind.
type Granularity int

const (
	// PerFile stages run one tool invocation per input tile.
	PerFile Granularity = iota
	// Aggregate stages run a fixed plan of invocations over the whole set.
	Aggregate
)

// StagePlan describes one stage for estimation purposes. Span bounds come
// from the fixed percent layout of the six-stage workflow; DefaultUnitSeconds
// seeds the estimate before any sample of the same granularity exists.
type StagePlan struct {
	Index              int
	Name               string
	Granularity        Granularity
	Units              int
	SpanStart          float64
	SpanEnd            float64
	DefaultUnitSeconds float64
}

type sample struct {
	seconds float64
	units   int
}

// Estimator maintains a rolling record of completed-stage durations and
// recalculates the remaining-time figure after every stage transition. It is
// purely an accounting component: it never sleeps or polls.
type Estimator struct {
	mu        sync.Mutex
	plan      []StagePlan // ordered by Index
	samples   map[Granularity]sample
	completed map[int]bool
	current   int // 0 when no stage is running
	unitsDone int
	finished  bool
}

// NewEstimator creates an Estimator for the given stage plan.
func NewEstimator(plan []StagePlan) *Estimator {
	return &Estimator{
		plan:      plan,
		samples:   make(map[Granularity]sample),
		completed: make(map[int]bool),
	}
}

// SetUnits records the actual unit count for a stage once its inputs have
// been enumerated.
func (e *Estimator) SetUnits(index, units int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.plan {
		if e.plan[i].Index == index {
			e.plan[i].Units = units
			return
		}
	}
}

// OnStageStart marks a stage as the in-flight stage.
func (e *Estimator) OnStageStart(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = index
	e.unitsDone = 0
}

// OnUnitDone advances the in-flight stage by one completed unit.
func (e *Estimator) OnUnitDone(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == index {
		e.unitsDone++
	}
}

// OnStageEnd records the observed duration of a completed stage, feeding the
// per-granularity seconds-per-unit average used for all remaining stages.
func (e *Estimator) OnStageEnd(index int, elapsed time.Duration, units int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed[index] = true
	e.current = 0
	e.unitsDone = 0
	if units <= 0 {
		units = 1
	}
	g := e.granularityOf(index)
	s := e.samples[g]
	s.seconds += elapsed.Seconds()
	s.units += units
	e.samples[g] = s
}

// MarkSkipped records a stage that ran no work at all. It contributes no
// timing sample.
func (e *Estimator) MarkSkipped(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed[index] = true
}

// Finish pins the estimate at zero; only the controller calls this, once the
// run has actually completed.
func (e *Estimator) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
}

// EstimateRemaining returns the dynamic remaining-time figure: the sum over
// not-yet-completed stages of unit count times the observed average
// seconds-per-unit of completed stages with the same granularity, falling
// back to the stage's fixed default before any sample exists. It never
// reports zero before Finish and never reports a negative duration.
func (e *Estimator) EstimateRemaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return 0
	}

	var seconds float64
	for _, sp := range e.plan {
		if e.completed[sp.Index] {
			continue
		}
		units := sp.Units
		if units <= 0 {
			units = 1
		}
		if sp.Index == e.current {
			units -= e.unitsDone
			if units < 0 {
				units = 0
			}
		}
		seconds += float64(units) * e.secondsPerUnit(sp)
	}

	d := time.Duration(seconds * float64(time.Second))
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Percent returns overall completion in [0,100], derived from the fixed
// stage spans plus the unit fraction of the in-flight stage. 100 is only
// reported after Finish.
func (e *Estimator) Percent() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.finished {
		return 100
	}

	var pct float64
	for _, sp := range e.plan {
		switch {
		case e.completed[sp.Index]:
			pct = sp.SpanEnd
		case sp.Index == e.current:
			span := sp.SpanEnd - sp.SpanStart
			units := sp.Units
			if units <= 0 {
				units = 1
			}
			frac := float64(e.unitsDone) / float64(units)
			if frac > 1 {
				frac = 1
			}
			pct = sp.SpanStart + span*frac
		}
	}
	if pct > 99 {
		pct = 99
	}
	return pct
}

func (e *Estimator) granularityOf(index int) Granularity {
	for _, sp := range e.plan {
		if sp.Index == index {
			return sp.Granularity
		}
	}
	return PerFile
}

func (e *Estimator) secondsPerUnit(sp StagePlan) float64 {
	if s, ok := e.samples[sp.Granularity]; ok && s.units > 0 {
		return s.seconds / float64(s.units)
	}
	return sp.DefaultUnitSeconds
}
