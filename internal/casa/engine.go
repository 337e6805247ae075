package casa

import (
	"runtime"
	"sync"

	"github.com/banshee-data/casa.report/internal/timeutil"
)

// parallelMinTrajectories is the population size below which the worker
// pool is not worth its scheduling overhead.
const parallelMinTrajectories = 64

// EngineConfig configures an Engine. The zero value is usable.
type EngineConfig struct {
	// Workers bounds per-trajectory parallelism. 0 uses GOMAXPROCS,
	// 1 forces the sequential path.
	Workers int
	// Clock times the computation for Report.ProcessingTimeSeconds.
	// Defaults to the real clock.
	Clock timeutil.Clock
}

// Engine computes CASA reports. It holds no per-job state and is safe for
// concurrent use by independent jobs with different Params.
type Engine struct {
	workers int
	clock   timeutil.Clock
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{workers: workers, clock: clock}
}

var defaultEngine = NewEngine(EngineConfig{})

// Compute runs the default engine. See Engine.Compute.
func Compute(trajectories []Trajectory, params Params) (*Report, error) {
	return defaultEngine.Compute(trajectories, params)
}

// Compute validates params and every trajectory, then measures each
// trajectory and aggregates the population. Validation failures abort the
// whole call with a *ParameterError or *TrajectoryError; no partial report
// is ever returned. Input trajectories are not modified.
func (e *Engine) Compute(trajectories []Trajectory, params Params) (*Report, error) {
	start := e.clock.Now()

	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := validateTrajectories(trajectories); err != nil {
		return nil, err
	}
	if err := checkConcentrationRange(len(trajectories), params); err != nil {
		return nil, err
	}

	metrics, err := e.measureAll(trajectories, params)
	if err != nil {
		return nil, err
	}
	report := aggregate(metrics, params)
	report.ProcessingTimeSeconds = e.clock.Since(start).Seconds()
	return report, nil
}

// measureAll scatters per-trajectory work over the worker pool. Each worker
// writes only its own index-aligned slots, so no locking is needed. The
// lowest-index failure is reported regardless of scheduling.
func (e *Engine) measureAll(trajectories []Trajectory, params Params) ([]TrajectoryMetrics, error) {
	metrics := make([]TrajectoryMetrics, len(trajectories))
	errs := make([]error, len(trajectories))
	if e.workers <= 1 || len(trajectories) < parallelMinTrajectories {
		for i, t := range trajectories {
			metrics[i], errs[i] = measureTrajectory(t, params)
		}
		return metrics, firstMeasureError(trajectories, errs)
	}

	workers := min(e.workers, len(trajectories))
	chunk := (len(trajectories) + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < len(trajectories); lo += chunk {
		hi := min(lo+chunk, len(trajectories))
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				metrics[i], errs[i] = measureTrajectory(trajectories[i], params)
			}
		}(lo, hi)
	}
	wg.Wait()
	return metrics, firstMeasureError(trajectories, errs)
}

func firstMeasureError(trajectories []Trajectory, errs []error) error {
	for i, err := range errs {
		if err != nil {
			return &TrajectoryError{Index: i, ID: trajectories[i].ID, Reason: err.Error()}
		}
	}
	return nil
}
