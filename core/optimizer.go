package evo

import (
	"log"
	"sort"
	"strings"
	"time"
)

// DefaultThreshold is the execution count at which a fragment becomes a hot spot.
const DefaultThreshold = 10

// HotSpotStats is the execution profile of one program fragment.
type HotSpotStats struct {
	Fingerprint   string
	Source        string
	Count         int
	TotalTime     time.Duration
	LastRun       time.Time
	Compiled      bool
	CompiledAt    time.Time
	OptimizedRuns int
}

// AvgTime is the mean duration of one execution.
func (s HotSpotStats) AvgTime() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Count)
}

// Statistics summarises every fragment the optimizer has seen.
type Statistics struct {
	TotalHotSpots   int
	TotalExecutions int
	CompiledCount   int
	Threshold       int
	Enabled         bool
}

// Optimizer wraps an Evaluator's Execute. It counts executions per
// fingerprint and, once a fragment has run Threshold times, runs a
// constant-folded copy of it from then on. Like the Evaluator it is not
// safe for concurrent use.
type Optimizer struct {
	ev        *Evaluator
	threshold int
	enabled   bool
	logger    *log.Logger

	stats map[string]*HotSpotStats
	cache map[string][]Element
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithThreshold sets the hot-spot threshold. A threshold below 1 disables
// profiling altogether.
func WithThreshold(n int) Option {
	return func(o *Optimizer) {
		if n < 1 {
			o.enabled = false
			return
		}
		o.threshold = n
	}
}

// WithLogger logs a line whenever a fragment is promoted.
func WithLogger(l *log.Logger) Option {
	return func(o *Optimizer) { o.logger = l }
}

// NewOptimizer wraps ev.
func NewOptimizer(ev *Evaluator, opts ...Option) *Optimizer {
	o := &Optimizer{
		ev:        ev,
		threshold: DefaultThreshold,
		enabled:   true,
		stats:     make(map[string]*HotSpotStats),
		cache:     make(map[string][]Element),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Evaluator returns the wrapped evaluator.
func (o *Optimizer) Evaluator() *Evaluator { return o.ev }

// Threshold returns the hot-spot threshold.
func (o *Optimizer) Threshold() int { return o.threshold }

// Enabled reports whether executions are profiled.
func (o *Optimizer) Enabled() bool { return o.enabled }

// SetEnabled turns profiling on or off. While disabled, Execute delegates
// straight to the evaluator and cached variants are not used.
func (o *Optimizer) SetEnabled(enabled bool) { o.enabled = enabled }

// Execute runs a program, substituting the cached optimized variant when
// the fragment is already hot. The fragment is promoted after the run that
// brings its count to the threshold, failed runs included.
func (o *Optimizer) Execute(elems []Element) (Value, error) {
	if !o.enabled {
		return o.ev.Execute(elems)
	}
	fp := Fingerprint(elems)
	st, ok := o.stats[fp]
	if !ok {
		st = &HotSpotStats{Fingerprint: fp, Source: sourceOf(elems)}
		o.stats[fp] = st
	}

	run := elems
	if folded, ok := o.cache[fp]; ok {
		run = folded
		st.OptimizedRuns++
	}

	start := time.Now()
	v, err := o.ev.Execute(run)
	st.Count++
	st.TotalTime += time.Since(start)
	st.LastRun = start

	if st.Count >= o.threshold && !st.Compiled {
		o.compile(st, elems)
	}
	return v, err
}

// ExecuteExpr is Execute for a single expression.
func (o *Optimizer) ExecuteExpr(x *Expr) (Value, error) {
	return o.Execute([]Element{ExprElem(x)})
}

// ExecuteString parses src and runs it through Execute.
func (o *Optimizer) ExecuteString(src string) (Value, error) {
	elems, err := Parse(src)
	if err != nil {
		return Value{}, err
	}
	return o.Execute(elems)
}

// ExecuteWithoutProfiling runs elems on the evaluator without touching any
// counter or cached variant.
func (o *Optimizer) ExecuteWithoutProfiling(elems []Element) (Value, error) {
	return o.ev.Execute(elems)
}

func (o *Optimizer) compile(st *HotSpotStats, elems []Element) {
	o.cache[st.Fingerprint] = Fold(elems)
	st.Compiled = true
	st.CompiledAt = time.Now()
	if o.logger != nil {
		o.logger.Printf("hot spot %s after %d runs (avg %s): %s",
			shortFingerprint(st.Fingerprint), st.Count, st.AvgTime(), st.Source)
	}
}

// Optimized returns the cached folded variant for a fingerprint.
func (o *Optimizer) Optimized(fp string) ([]Element, bool) {
	elems, ok := o.cache[fp]
	return elems, ok
}

// Stats returns a copy of the profile for one fingerprint.
func (o *Optimizer) Stats(fp string) (HotSpotStats, bool) {
	st, ok := o.stats[fp]
	if !ok {
		return HotSpotStats{}, false
	}
	return *st, true
}

// AllStats returns every profile, most executed first.
func (o *Optimizer) AllStats() []HotSpotStats {
	out := make([]HotSpotStats, 0, len(o.stats))
	for _, st := range o.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

// HotSpots returns the profiles that have reached the threshold, most
// executed first.
func (o *Optimizer) HotSpots() []HotSpotStats {
	var out []HotSpotStats
	for _, st := range o.AllStats() {
		if st.Count >= o.threshold {
			out = append(out, st)
		}
	}
	return out
}

// Statistics aggregates the current profiles.
func (o *Optimizer) Statistics() Statistics {
	s := Statistics{
		TotalHotSpots: len(o.stats),
		Threshold:     o.threshold,
		Enabled:       o.enabled,
	}
	for _, st := range o.stats {
		s.TotalExecutions += st.Count
		if st.Compiled {
			s.CompiledCount++
		}
	}
	return s
}

// ClearCache drops every optimized variant and every counter.
func (o *Optimizer) ClearCache() {
	o.stats = make(map[string]*HotSpotStats)
	o.cache = make(map[string][]Element)
}

// Restore seeds counters from previously saved profiles. Restored
// fragments are not compiled until they next run, since the folded tree
// is not persisted.
func (o *Optimizer) Restore(saved []HotSpotStats) {
	for _, s := range saved {
		if s.Fingerprint == "" {
			continue
		}
		st := s
		st.Compiled = false
		st.CompiledAt = time.Time{}
		o.stats[s.Fingerprint] = &st
		delete(o.cache, s.Fingerprint)
	}
}

func sourceOf(elems []Element) string {
	parts := make([]string, len(elems))
	for i, el := range elems {
		parts[i] = el.String()
	}
	return strings.Join(parts, " ")
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
