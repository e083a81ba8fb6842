package dse

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// PathSelectionStrategy names a leaf path selector.
type PathSelectionStrategy string

const (
	BFS                      PathSelectionStrategy = "BFS"
	DFS                      PathSelectionStrategy = "DFS"
	RandomPath               PathSelectionStrategy = "RANDOM"
	Depth                    PathSelectionStrategy = "DEPTH"
	DepthRandom              PathSelectionStrategy = "DEPTH_RANDOM"
	ForkDepth                PathSelectionStrategy = "FORK_DEPTH"
	ForkDepthRandom          PathSelectionStrategy = "FORK_DEPTH_RANDOM"
	ClosestToUncovered       PathSelectionStrategy = "CLOSEST_TO_UNCOVERED"
	ClosestToUncoveredRandom PathSelectionStrategy = "CLOSEST_TO_UNCOVERED_RANDOM"
	ClosestToTargets         PathSelectionStrategy = "CLOSEST_TO_TARGETS"
)

// CombinationStrategy names how several leaf selectors are combined.
type CombinationStrategy string

const (
	Interleaved CombinationStrategy = "INTERLEAVED"
	Parallel    CombinationStrategy = "PARALLEL"
	Fair        CombinationStrategy = "FAIR"
)

// CoverageZone selects which methods count towards coverage.
type CoverageZone string

const (
	// MethodZone tracks only the methods under test.
	MethodZone CoverageZone = "METHOD"

	// TransitiveZone also tracks every method entered during exploration.
	TransitiveZone CoverageZone = "TRANSITIVE"
)

// StateCollection selects which terminated states are reported.
type StateCollection string

const (
	CollectCoveredNew    StateCollection = "COVERED_NEW"
	CollectReachedTarget StateCollection = "REACHED_TARGET"
	CollectAll           StateCollection = "ALL"
)

// Options configures a Machine.
type Options struct {
	PathSelectionStrategies []PathSelectionStrategy `json:"path_selection_strategies" yaml:"path_selection_strategies" validate:"required,min=1,dive,oneof=BFS DFS RANDOM DEPTH DEPTH_RANDOM FORK_DEPTH FORK_DEPTH_RANDOM CLOSEST_TO_UNCOVERED CLOSEST_TO_UNCOVERED_RANDOM CLOSEST_TO_TARGETS"`
	CombinationStrategy     CombinationStrategy     `json:"combination_strategy" yaml:"combination_strategy" validate:"required,oneof=INTERLEAVED PARALLEL FAIR"`

	// Independent makes interleaved children own disjoint state sets.
	// Otherwise every child sees every state.
	Independent bool `json:"independent" yaml:"independent"`

	// FairQuota is the number of steps a FAIR child runs before the next
	// child takes over.
	FairQuota  int   `json:"fair_quota" yaml:"fair_quota" validate:"gte=1"`
	RandomSeed int64 `json:"random_seed" yaml:"random_seed"`

	// Stop conditions. Zero disables a limit.
	StepLimit            uint64        `json:"step_limit" yaml:"step_limit"`
	StepsFromLastCovered uint64        `json:"steps_from_last_covered" yaml:"steps_from_last_covered"`
	CollectedStatesLimit int           `json:"collected_states_limit" yaml:"collected_states_limit" validate:"gte=0"`
	Timeout              time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
	StopOnCoverage       float64       `json:"stop_on_coverage" yaml:"stop_on_coverage" validate:"gte=0,lte=100"`
	StopOnTargetsReached bool          `json:"stop_on_targets_reached" yaml:"stop_on_targets_reached"`

	SolverTimeout    time.Duration `json:"solver_timeout" yaml:"solver_timeout" validate:"gte=0"`
	UseSolverForFork bool          `json:"use_solver_for_fork" yaml:"use_solver_for_fork"`

	CoverageZone    CoverageZone    `json:"coverage_zone" yaml:"coverage_zone" validate:"required,oneof=METHOD TRANSITIVE"`
	StateCollection StateCollection `json:"state_collection" yaml:"state_collection" validate:"required,oneof=COVERED_NEW REACHED_TARGET ALL"`

	// Workers is the number of goroutines stepping states. Values above one
	// require the PARALLEL combination.
	Workers int `json:"workers" yaml:"workers" validate:"gte=1"`
}

// DefaultOptions returns the default machine options.
func DefaultOptions() Options {
	return Options{
		PathSelectionStrategies: []PathSelectionStrategy{DFS},
		CombinationStrategy:     Interleaved,
		FairQuota:               100,
		StepsFromLastCovered:    3500,
		StopOnCoverage:          100,
		StopOnTargetsReached:    true,
		SolverTimeout:           time.Second,
		UseSolverForFork:        true,
		CoverageZone:            MethodZone,
		StateCollection:         CollectCoveredNew,
		Workers:                 1,
	}
}

var optionsValidate = validator.New()

// Validate checks the options for consistency.
func (o *Options) Validate() error {
	if err := optionsValidate.Struct(o); err != nil {
		return err
	}
	if o.Workers > 1 && o.CombinationStrategy != Parallel {
		return fmt.Errorf("workers=%d requires %s combination", o.Workers, Parallel)
	}
	return nil
}

// ParseOptions decodes YAML data over DefaultOptions and validates the
// result. Fields absent from data keep their default values.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("parse options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

// LoadOptions reads and parses the options file at path.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("load options file: %w", err)
	}
	return ParseOptions(data)
}
