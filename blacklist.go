package dse

import (
	"sync"
)

// ForkBlackList decides whether a forked state positioned at stmt is worth
// exploring.
type ForkBlackList[M, S comparable] interface {
	// Sieve returns false if state should be dropped.
	Sieve(state *State[M, S], stmt S) bool
}

// NoBlackList keeps every state.
type NoBlackList[M, S comparable] struct{}

func (NoBlackList[M, S]) Sieve(*State[M, S], S) bool { return true }

// TargetsReachableBlackList drops states from whose statement none of their
// active targets can be reached in the application graph. States without
// targets are kept.
type TargetsReachableBlackList[M, S comparable] struct {
	graph ApplicationGraph[M, S]

	mu    sync.Mutex
	cache map[distanceKey[S]]bool
}

var _ ForkBlackList[int, int] = (*TargetsReachableBlackList[int, int])(nil)

// NewTargetsReachableBlackList returns a blacklist over graph.
func NewTargetsReachableBlackList[M, S comparable](graph ApplicationGraph[M, S]) *TargetsReachableBlackList[M, S] {
	return &TargetsReachableBlackList[M, S]{
		graph: graph,
		cache: make(map[distanceKey[S]]bool),
	}
}

func (b *TargetsReachableBlackList[M, S]) Sieve(state *State[M, S], stmt S) bool {
	targets := state.Targets().Active()
	if len(targets) == 0 {
		return true
	}
	for _, t := range targets {
		if b.Reachable(stmt, t.Location()) {
			return true
		}
	}
	return false
}

// Reachable returns true if to can be reached from from, following
// successors, calls into callees and returns to callers.
func (b *TargetsReachableBlackList[M, S]) Reachable(from, to S) bool {
	key := distanceKey[S]{from, to}
	b.mu.Lock()
	v, ok := b.cache[key]
	b.mu.Unlock()
	if ok {
		return v
	}

	v = b.search(from, to)

	b.mu.Lock()
	b.cache[key] = v
	b.mu.Unlock()
	return v
}

func (b *TargetsReachableBlackList[M, S]) search(from, to S) bool {
	seen := map[S]struct{}{from: {}}
	returned := make(map[M]struct{})
	queue := []S{from}

	push := func(stmt S) {
		if _, ok := seen[stmt]; !ok {
			seen[stmt] = struct{}{}
			queue = append(queue, stmt)
		}
	}

	for len(queue) > 0 {
		stmt := queue[0]
		queue = queue[1:]
		if stmt == to {
			return true
		}

		for succ := range b.graph.Successors(stmt) {
			push(succ)
		}
		for callee := range b.graph.Callees(stmt) {
			for entry := range b.graph.EntryPoints(callee) {
				push(entry)
			}
		}

		// Leaving the method may resume in any of its callers.
		method := b.graph.MethodOf(stmt)
		if _, ok := returned[method]; ok {
			continue
		}
		for exit := range b.graph.ExitPoints(method) {
			if exit != stmt {
				continue
			}
			returned[method] = struct{}{}
			for caller := range b.graph.Callers(method) {
				for succ := range b.graph.Successors(caller) {
					push(succ)
				}
			}
		}
	}
	return false
}
