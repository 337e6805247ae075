package casa

import (
	"fmt"
	"math"
)

// validateTrajectories checks the whole population before any computation,
// so a failure never yields a partial report.
func validateTrajectories(trajectories []Trajectory) error {
	seen := make(map[TrackID]int, len(trajectories))
	for i, t := range trajectories {
		fail := func(format string, args ...any) error {
			return &TrajectoryError{Index: i, ID: t.ID, Reason: fmt.Sprintf(format, args...)}
		}

		if t.ID == "" {
			return fail("missing id")
		}
		if prev, dup := seen[t.ID]; dup {
			return fail("duplicate id (first seen at index %d)", prev)
		}
		seen[t.ID] = i

		if len(t.Samples) == 0 {
			return fail("no samples")
		}
		if !t.Morphology.IsValid() {
			return fail("unknown morphology label %q", t.Morphology)
		}

		for j, s := range t.Samples {
			if s.Frame < 0 {
				return fail("negative frame index %d at sample %d", s.Frame, j)
			}
			if !isFinite(s.X) || !isFinite(s.Y) {
				return fail("non-finite position at sample %d", j)
			}
			if j > 0 && s.Frame <= t.Samples[j-1].Frame {
				return fail("frame indices not strictly increasing: %d follows %d at sample %d",
					s.Frame, t.Samples[j-1].Frame, j)
			}
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
