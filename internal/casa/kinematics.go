package casa

import (
	"errors"
	"math"

	"github.com/banshee-data/casa.report/internal/units"
)

// crossingEpsilon is the minimum |cross product| (µm²) treated as a side of
// the average path; smaller offsets lie on it and do not count as crossings.
const crossingEpsilon = 1e-9

type point struct {
	x, y float64
}

func distance(a, b point) float64 {
	return math.Hypot(b.x-a.x, b.y-a.y)
}

// toMicrons converts pixel samples to micron-space points.
func toMicrons(samples []Sample, micronsPerPixel float64) []point {
	pts := make([]point, len(samples))
	for i, s := range samples {
		pts[i] = point{
			x: units.PixelsToMicrons(s.X, micronsPerPixel),
			y: units.PixelsToMicrons(s.Y, micronsPerPixel),
		}
	}
	return pts
}

// pathLength sums the Euclidean distance between consecutive points.
func pathLength(pts []point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += distance(pts[i-1], pts[i])
	}
	return total
}

// smoothPath applies a centred moving average of half-width half. The window
// shrinks symmetrically near the ends, so the endpoints are preserved.
func smoothPath(pts []point, half int) []point {
	out := make([]point, len(pts))
	n := len(pts)
	for i := range pts {
		h := min(half, i, n-1-i)
		var sx, sy float64
		for j := i - h; j <= i+h; j++ {
			sx += pts[j].x
			sy += pts[j].y
		}
		k := float64(2*h + 1)
		out[i] = point{x: sx / k, y: sy / k}
	}
	return out
}

// maxDeviation is the largest distance between a raw point and its
// smoothed counterpart.
func maxDeviation(raw, smooth []point) float64 {
	var worst float64
	for i := range raw {
		worst = max(worst, distance(raw[i], smooth[i]))
	}
	return worst
}

// pathCrossings counts how often the raw path changes side of the average
// path, using the sign of the lateral offset at each interior sample.
func pathCrossings(raw, smooth []point) int {
	crossings := 0
	lastSide := 0
	for i := 1; i < len(raw)-1; i++ {
		dx := smooth[i+1].x - smooth[i-1].x
		dy := smooth[i+1].y - smooth[i-1].y
		ox := raw[i].x - smooth[i].x
		oy := raw[i].y - smooth[i].y
		c := dx*oy - dy*ox
		if math.Abs(c) < crossingEpsilon {
			continue
		}
		side := 1
		if c < 0 {
			side = -1
		}
		if lastSide != 0 && side != lastSide {
			crossings++
		}
		lastSide = side
	}
	return crossings
}

// ratioPercent returns num/den*100 clamped to [0, 100], or 0 when den is 0.
func ratioPercent(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return math.Min(math.Max(num/den*100, 0), 100)
}

// errKinematicsOverflow marks a trajectory whose positions and timing are
// individually finite but whose derived kinematics are not representable.
var errKinematicsOverflow = errors.New("kinematics overflow: derived velocities are not finite; check positions and frame_rate")

// measureTrajectory computes the kinematics and motility class of one
// validated trajectory.
func measureTrajectory(t Trajectory, p Params) (TrajectoryMetrics, error) {
	m := TrajectoryMetrics{
		ID:          t.ID,
		SampleCount: len(t.Samples),
		Morphology:  t.Morphology,
		Class:       ClassIndeterminate,
	}
	if len(t.Samples) < 2 {
		return m, nil
	}

	first, last := t.Samples[0], t.Samples[len(t.Samples)-1]
	duration := float64(last.Frame-first.Frame) / p.FrameRate
	if duration <= 0 {
		return m, nil
	}
	if !isFinite(duration) {
		return m, errKinematicsOverflow
	}
	m.DurationSeconds = duration

	pts := toMicrons(t.Samples, p.MicronsPerPixel)
	smooth := smoothPath(pts, p.smoothingHalfWidth())

	curvilinear := pathLength(pts)
	straight := math.Min(distance(pts[0], pts[len(pts)-1]), curvilinear)
	// VSL <= VAP <= VCL must hold exactly despite rounding.
	average := math.Min(math.Max(pathLength(smooth), straight), curvilinear)

	m.VCL = curvilinear / duration
	m.VSL = straight / duration
	m.VAP = average / duration
	m.LIN = ratioPercent(m.VSL, m.VCL)
	m.STR = ratioPercent(m.VSL, m.VAP)
	m.WOB = ratioPercent(m.VAP, m.VCL)
	m.ALH = 2 * maxDeviation(pts, smooth)
	m.BCF = float64(pathCrossings(pts, smooth)) / duration
	for _, v := range []float64{m.VCL, m.VSL, m.VAP, m.ALH, m.BCF} {
		if !isFinite(v) {
			return m, errKinematicsOverflow
		}
	}
	m.Class = classify(m, p)
	return m, nil
}

// classify applies the motility thresholds. Immotile takes priority over
// linearity: a jittering cell may have a high LIN over a tiny distance.
func classify(m TrajectoryMetrics, p Params) MotilityClass {
	switch {
	case m.VCL < p.ImmotileVCLThreshold:
		return ClassImmotile
	case m.LIN >= p.ProgressiveLINThreshold:
		return ClassProgressive
	default:
		return ClassNonProgressive
	}
}
