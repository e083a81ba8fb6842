package dse

import (
	"fmt"
	"math/rand"

	"github.com/benbjohnson/dse/ps"
)

// NewPathSelector builds the selector described by opts and populates it
// with the initial states.
//
// A single strategy yields its leaf selector directly. With several
// strategies the leaves are combined as opts.CombinationStrategy says. For
// PARALLEL every child receives its own clone of each initial state, so the
// children explore independently from the same starting point.
func NewPathSelector[M, S comparable](opts Options, run *Run[M, S], initial []*State[M, S]) (ps.PathSelector[*State[M, S]], error) {
	children := make([]ps.PathSelector[*State[M, S]], 0, len(opts.PathSelectionStrategies))
	for i, strategy := range opts.PathSelectionStrategies {
		s, err := newLeafSelector(strategy, run, rand.New(rand.NewSource(opts.RandomSeed+int64(i))))
		if err != nil {
			return nil, err
		}
		children = append(children, s)
	}

	if len(children) == 1 {
		children[0].Add(initial...)
		return children[0], nil
	}

	switch opts.CombinationStrategy {
	case Parallel:
		for i, child := range children {
			if i == 0 {
				child.Add(initial...)
				continue
			}
			for _, state := range initial {
				child.Add(state.Clone(nil))
			}
		}
		return ps.NewParallel(children...), nil

	case Interleaved:
		s := ps.NewInterleaved(opts.Independent, children...)
		s.Add(initial...)
		return s, nil

	case Fair:
		s := ps.NewFair(opts.FairQuota, children...)
		s.Add(initial...)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown combination strategy: %q", opts.CombinationStrategy)
	}
}

func newLeafSelector[M, S comparable](strategy PathSelectionStrategy, run *Run[M, S], rand *rand.Rand) (ps.PathSelector[*State[M, S]], error) {
	switch strategy {
	case BFS:
		return ps.NewBFS[*State[M, S]](), nil
	case DFS:
		return ps.NewDFS[*State[M, S]](), nil
	case RandomPath:
		return ps.NewRandom[*State[M, S]](rand), nil
	case Depth:
		return ps.NewWeighted(depthWeight[M, S]), nil
	case DepthRandom:
		return ps.NewRandomWeighted(inverse(depthWeight[M, S]), rand), nil
	case ForkDepth:
		return ps.NewWeighted(forkDepthWeight[M, S]), nil
	case ForkDepthRandom:
		return ps.NewRandomWeighted(inverse(forkDepthWeight[M, S]), rand), nil
	case ClosestToUncovered:
		return ps.NewWeighted(closestToUncoveredWeight(run)), nil
	case ClosestToUncoveredRandom:
		return ps.NewRandomWeighted(inverse(closestToUncoveredWeight(run)), rand), nil
	case ClosestToTargets:
		return ps.NewWeighted(closestToTargetsWeight(run)), nil
	default:
		return nil, fmt.Errorf("unknown path selection strategy: %q", strategy)
	}
}

func depthWeight[M, S comparable](s *State[M, S]) float64 {
	return float64(s.Path().Depth())
}

func forkDepthWeight[M, S comparable](s *State[M, S]) float64 {
	return float64(s.ForkPoints().Depth())
}

// closestToUncoveredWeight weighs a state by the distance from its current
// statement to the nearest uncovered statement of its method.
func closestToUncoveredWeight[M, S comparable](run *Run[M, S]) func(*State[M, S]) float64 {
	return func(s *State[M, S]) float64 {
		stmt, ok := s.CurrentStatement()
		if !ok {
			return float64(Infinite)
		}
		uncovered := run.Coverage.UncoveredIn(s.LastEnteredMethod())
		return float64(run.Distance.Closest(stmt, uncovered))
	}
}

// closestToTargetsWeight weighs a state by the distance from its current
// statement to the nearest of its active targets.
func closestToTargetsWeight[M, S comparable](run *Run[M, S]) func(*State[M, S]) float64 {
	return func(s *State[M, S]) float64 {
		stmt, ok := s.CurrentStatement()
		if !ok {
			return float64(Infinite)
		}
		targets := s.Targets().Active()
		locations := make([]S, len(targets))
		for i, t := range targets {
			locations[i] = t.Location()
		}
		return float64(run.Distance.Closest(stmt, locations))
	}
}

// inverse turns a "lower is better" weight into a sampling weight.
func inverse[T any](weigh func(T) float64) func(T) float64 {
	return func(v T) float64 { return 1 / (1 + weigh(v)) }
}
