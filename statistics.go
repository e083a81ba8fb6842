package dse

import (
	"iter"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// CoverageHook is called when a statement is visited or covered for the
// first time in a run.
type CoverageHook[M, S comparable] func(state *State[M, S], method M, stmt S)

// CoverageStatistics tracks visited and covered statements and visited
// methods over one exploration run. A statement is visited when a state
// executes it and covered when a state whose path contains it terminates.
//
// Each set is guarded by its own mutex.
type CoverageStatistics[M, S comparable] struct {
	graph ApplicationGraph[M, S]

	visitedMu    sync.Mutex
	visitedStmts map[S]struct{}

	coveredMu    sync.Mutex
	coveredStmts map[S]struct{}
	uncovered    map[M]map[S]struct{}
	total        int

	methodsMu      sync.Mutex
	visitedMethods map[M]struct{}

	hooksMu   sync.Mutex
	onVisit   []CoverageHook[M, S]
	onCovered []CoverageHook[M, S]
}

var _ Observer[int, int] = (*CoverageStatistics[int, int])(nil)

// NewCoverageStatistics returns statistics tracking coverage of methods.
func NewCoverageStatistics[M, S comparable](graph ApplicationGraph[M, S], methods ...M) *CoverageStatistics[M, S] {
	s := &CoverageStatistics[M, S]{
		graph:          graph,
		visitedStmts:   make(map[S]struct{}),
		coveredStmts:   make(map[S]struct{}),
		uncovered:      make(map[M]map[S]struct{}),
		visitedMethods: make(map[M]struct{}),
	}
	for _, m := range methods {
		s.AddCoverageZone(m)
	}
	return s
}

// AddCoverageZone adds the statements of method reachable from its entry
// points to the tracked set. Adding a tracked method is a no-op.
func (s *CoverageStatistics[M, S]) AddCoverageZone(method M) {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()

	if _, ok := s.uncovered[method]; ok {
		return
	}

	stmts := make(map[S]struct{})
	for stmt := range methodStatements(s.graph, method) {
		s.total++
		if _, ok := s.coveredStmts[stmt]; !ok {
			stmts[stmt] = struct{}{}
		}
	}
	s.uncovered[method] = stmts
}

// IsTracked returns true if method is part of the coverage zone.
func (s *CoverageStatistics[M, S]) IsTracked(method M) bool {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()
	_, ok := s.uncovered[method]
	return ok
}

// OnVisit registers a hook for newly visited statements.
func (s *CoverageStatistics[M, S]) OnVisit(hook CoverageHook[M, S]) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onVisit = append(s.onVisit, hook)
}

// OnCovered registers a hook for newly covered statements.
func (s *CoverageStatistics[M, S]) OnCovered(hook CoverageHook[M, S]) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onCovered = append(s.onCovered, hook)
}

func (s *CoverageStatistics[M, S]) hooks(covered bool) []CoverageHook[M, S] {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	if covered {
		return s.onCovered
	}
	return s.onVisit
}

// Visit marks stmt, the statement state just executed, and its method
// visited. The statement is counted once however many states the step
// produced.
func (s *CoverageStatistics[M, S]) Visit(state *State[M, S], stmt S) {
	method := s.graph.MethodOf(stmt)

	s.methodsMu.Lock()
	s.visitedMethods[method] = struct{}{}
	s.methodsMu.Unlock()

	s.visitedMu.Lock()
	_, seen := s.visitedStmts[stmt]
	if !seen {
		s.visitedStmts[stmt] = struct{}{}
	}
	s.visitedMu.Unlock()

	if !seen {
		for _, hook := range s.hooks(false) {
			hook(state, method, stmt)
		}
	}
}

// OnState is a no-op. The machine calls Visit with the executed statement
// since the parent has already moved past it.
func (s *CoverageStatistics[M, S]) OnState(parent *State[M, S], forks []*State[M, S]) {}

// OnStateTerminated marks every statement on a reachable state's path
// covered.
func (s *CoverageStatistics[M, S]) OnStateTerminated(state *State[M, S], reachable bool) {
	if !reachable {
		return
	}

	type hit struct {
		method M
		stmt   S
	}
	var hits []hit

	s.coveredMu.Lock()
	for stmt := range state.Path().Backward() {
		if _, ok := s.coveredStmts[stmt]; ok {
			continue
		}
		s.coveredStmts[stmt] = struct{}{}

		method := s.graph.MethodOf(stmt)
		if stmts, ok := s.uncovered[method]; ok {
			if _, ok := stmts[stmt]; ok {
				delete(stmts, stmt)
				hits = append(hits, hit{method, stmt})
			}
		}
	}
	s.coveredMu.Unlock()

	hooks := s.hooks(true)
	for _, h := range hits {
		for _, hook := range hooks {
			hook(state, h.method, h.stmt)
		}
	}
}

func (s *CoverageStatistics[M, S]) OnTargetReached(state *State[M, S], target *Target[M, S]) {}
func (s *CoverageStatistics[M, S]) OnMachineStopped()                                        {}

// IsVisited returns true if stmt has been executed.
func (s *CoverageStatistics[M, S]) IsVisited(stmt S) bool {
	s.visitedMu.Lock()
	defer s.visitedMu.Unlock()
	_, ok := s.visitedStmts[stmt]
	return ok
}

// IsCovered returns true if stmt lies on the path of a terminated state.
func (s *CoverageStatistics[M, S]) IsCovered(stmt S) bool {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()
	_, ok := s.coveredStmts[stmt]
	return ok
}

// VisitedStatements returns the number of distinct visited statements.
func (s *CoverageStatistics[M, S]) VisitedStatements() int {
	s.visitedMu.Lock()
	defer s.visitedMu.Unlock()
	return len(s.visitedStmts)
}

// VisitedMethods returns the number of distinct visited methods.
func (s *CoverageStatistics[M, S]) VisitedMethods() int {
	s.methodsMu.Lock()
	defer s.methodsMu.Unlock()
	return len(s.visitedMethods)
}

// UncoveredStatements returns the tracked statements not yet covered.
func (s *CoverageStatistics[M, S]) UncoveredStatements() []S {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()
	var a []S
	for _, stmts := range s.uncovered {
		for stmt := range stmts {
			a = append(a, stmt)
		}
	}
	return a
}

// UncoveredIn returns the uncovered statements of method.
func (s *CoverageStatistics[M, S]) UncoveredIn(method M) []S {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()
	var a []S
	for stmt := range s.uncovered[method] {
		a = append(a, stmt)
	}
	return a
}

// CoveredStatements returns the number of tracked statements covered.
func (s *CoverageStatistics[M, S]) CoveredStatements() int {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()
	covered := s.total
	for _, stmts := range s.uncovered {
		covered -= len(stmts)
	}
	return covered
}

// TotalStatements returns the number of tracked statements.
func (s *CoverageStatistics[M, S]) TotalStatements() int {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()
	return s.total
}

// Percent returns the share of tracked statements covered, from 0 to 100.
// An empty coverage zone is fully covered.
func (s *CoverageStatistics[M, S]) Percent() float64 {
	s.coveredMu.Lock()
	defer s.coveredMu.Unlock()
	if s.total == 0 {
		return 100
	}
	var uncovered int
	for _, stmts := range s.uncovered {
		uncovered += len(stmts)
	}
	return float64(s.total-uncovered) * 100 / float64(s.total)
}

// StepsStatistics counts machine steps in total and since the last step
// that covered a new statement.
type StepsStatistics[M, S comparable] struct {
	total        atomic.Uint64
	sinceCovered atomic.Uint64
}

var _ Observer[int, int] = (*StepsStatistics[int, int])(nil)

// NewStepsStatistics returns step counters. If coverage is non-nil the
// since-covered counter resets whenever a statement is newly covered.
func NewStepsStatistics[M, S comparable](coverage *CoverageStatistics[M, S]) *StepsStatistics[M, S] {
	s := &StepsStatistics[M, S]{}
	if coverage != nil {
		coverage.OnCovered(func(*State[M, S], M, S) { s.sinceCovered.Store(0) })
	}
	return s
}

// Total returns the number of steps taken.
func (s *StepsStatistics[M, S]) Total() uint64 { return s.total.Load() }

// SinceCovered returns the number of steps since new coverage.
func (s *StepsStatistics[M, S]) SinceCovered() uint64 { return s.sinceCovered.Load() }

// OnState counts a step.
func (s *StepsStatistics[M, S]) OnState(parent *State[M, S], forks []*State[M, S]) {
	s.total.Add(1)
	s.sinceCovered.Add(1)
}

func (s *StepsStatistics[M, S]) OnStateTerminated(state *State[M, S], reachable bool)     {}
func (s *StepsStatistics[M, S]) OnTargetReached(state *State[M, S], target *Target[M, S]) {}
func (s *StepsStatistics[M, S]) OnMachineStopped()                                        {}

// TimeStatistics measures the wall-clock duration of a run.
type TimeStatistics struct {
	now   func() time.Time
	start time.Time

	mu      sync.Mutex
	stopped time.Time
}

// NewTimeStatistics starts measuring at the current time. A nil now uses
// time.Now.
func NewTimeStatistics(now func() time.Time) *TimeStatistics {
	if now == nil {
		now = time.Now
	}
	return &TimeStatistics{now: now, start: now()}
}

// Started returns the start time.
func (s *TimeStatistics) Started() time.Time { return s.start }

// Elapsed returns the time since start, or the run duration once stopped.
func (s *TimeStatistics) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped.IsZero() {
		return s.stopped.Sub(s.start)
	}
	return s.now().Sub(s.start)
}

// Stop freezes the elapsed time.
func (s *TimeStatistics) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.IsZero() {
		s.stopped = s.now()
	}
}

// Infinite is the distance between unconnected statements.
const Infinite = math.MaxInt

type distanceKey[S comparable] struct {
	from, to S
}

// DistanceStatistics computes and caches intraprocedural shortest distances
// over the application graph.
type DistanceStatistics[M, S comparable] struct {
	graph ApplicationGraph[M, S]

	mu     sync.Mutex
	dists  map[distanceKey[S]]int
	toExit map[S]int
}

// NewDistanceStatistics returns a distance cache over graph.
func NewDistanceStatistics[M, S comparable](graph ApplicationGraph[M, S]) *DistanceStatistics[M, S] {
	return &DistanceStatistics[M, S]{
		graph:  graph,
		dists:  make(map[distanceKey[S]]int),
		toExit: make(map[S]int),
	}
}

// Distance returns the number of successor edges on the shortest path from
// one statement to another, or Infinite.
func (d *DistanceStatistics[M, S]) Distance(from, to S) int {
	key := distanceKey[S]{from, to}
	d.mu.Lock()
	v, ok := d.dists[key]
	d.mu.Unlock()
	if ok {
		return v
	}

	v = d.bfs(from, func(stmt S) bool { return stmt == to })

	d.mu.Lock()
	d.dists[key] = v
	d.mu.Unlock()
	return v
}

// DistanceToExit returns the shortest distance from stmt to an exit point
// of its method, or Infinite.
func (d *DistanceStatistics[M, S]) DistanceToExit(stmt S) int {
	d.mu.Lock()
	v, ok := d.toExit[stmt]
	d.mu.Unlock()
	if ok {
		return v
	}

	exits := make(map[S]struct{})
	for exit := range d.graph.ExitPoints(d.graph.MethodOf(stmt)) {
		exits[exit] = struct{}{}
	}
	v = d.bfs(stmt, func(s S) bool { _, ok := exits[s]; return ok })

	d.mu.Lock()
	d.toExit[stmt] = v
	d.mu.Unlock()
	return v
}

// Closest returns the smallest distance from stmt to any of targets.
func (d *DistanceStatistics[M, S]) Closest(stmt S, targets []S) int {
	best := Infinite
	for _, t := range targets {
		if v := d.Distance(stmt, t); v < best {
			best = v
		}
	}
	return best
}

func (d *DistanceStatistics[M, S]) bfs(from S, match func(S) bool) int {
	seen := map[S]struct{}{from: {}}
	frontier := []S{from}
	for dist := 0; len(frontier) > 0; dist++ {
		var next []S
		for _, stmt := range frontier {
			if match(stmt) {
				return dist
			}
			for succ := range d.graph.Successors(stmt) {
				if _, ok := seen[succ]; !ok {
					seen[succ] = struct{}{}
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}
	return Infinite
}

// methodStatements iterates the statements of method reachable from its
// entry points over successor edges.
func methodStatements[M, S comparable](graph ApplicationGraph[M, S], method M) iter.Seq[S] {
	return func(yield func(S) bool) {
		seen := make(map[S]struct{})
		var queue []S
		for stmt := range graph.EntryPoints(method) {
			if _, ok := seen[stmt]; !ok {
				seen[stmt] = struct{}{}
				queue = append(queue, stmt)
			}
		}
		for len(queue) > 0 {
			stmt := queue[0]
			queue = queue[1:]
			if !yield(stmt) {
				return
			}
			for succ := range graph.Successors(stmt) {
				if _, ok := seen[succ]; !ok {
					seen[succ] = struct{}{}
					queue = append(queue, succ)
				}
			}
		}
	}
}
