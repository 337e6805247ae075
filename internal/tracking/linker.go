package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/casa.report/internal/casa"
)

// Linker defaults. A cell may move at most DefaultMaxLinkDistance pixels
// per frame; a track survives DefaultMaxGapFrames frames without a
// detection before it is closed.
const (
	DefaultMaxLinkDistance = 20.0
	DefaultMaxGapFrames    = 30
)

// ErrInvalidFrames is returned for frame sequences the linker cannot use.
var ErrInvalidFrames = errors.New("invalid frame sequence")

// Detection is one detected cell in one frame, in pixel coordinates.
type Detection struct {
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	Morphology casa.Morphology `json:"morphology,omitempty"`
}

// Frame holds the detections of one video frame.
type Frame struct {
	Index      int64       `json:"frame"`
	Detections []Detection `json:"detections"`
}

// TrajectoryProducer links detections into trajectories.
type TrajectoryProducer interface {
	ProduceTrajectories(ctx context.Context, frames []Frame) ([]casa.Trajectory, error)
}

// NearestNeighbourLinker links detections frame to frame by solving a
// gated minimum-distance assignment between open tracks and the new
// frame's detections. Unmatched detections start new tracks.
type NearestNeighbourLinker struct {
	// MaxLinkDistance is the gate in pixels per elapsed frame.
	MaxLinkDistance float64
	// MaxGapFrames is how many consecutive frames a track may go
	// undetected before it is closed. 0 closes on the first miss.
	MaxGapFrames int64
	// MinSamples drops finished tracks shorter than this. 0 keeps all.
	MinSamples int
}

// NewNearestNeighbourLinker returns a linker with the default gates.
func NewNearestNeighbourLinker() *NearestNeighbourLinker {
	return &NearestNeighbourLinker{
		MaxLinkDistance: DefaultMaxLinkDistance,
		MaxGapFrames:    DefaultMaxGapFrames,
	}
}

var _ TrajectoryProducer = (*NearestNeighbourLinker)(nil)

type openTrack struct {
	seq      int
	samples  []casa.Sample
	normal   int
	abnormal int
}

func (t *openTrack) last() casa.Sample { return t.samples[len(t.samples)-1] }

func (t *openTrack) add(frame int64, d Detection) {
	t.samples = append(t.samples, casa.Sample{Frame: frame, X: d.X, Y: d.Y})
	switch d.Morphology {
	case casa.MorphologyNormal:
		t.normal++
	case casa.MorphologyAbnormal:
		t.abnormal++
	}
}

// morphology is the majority label; ties and unlabelled tracks stay
// unlabelled.
func (t *openTrack) morphology() casa.Morphology {
	switch {
	case t.normal > t.abnormal:
		return casa.MorphologyNormal
	case t.abnormal > t.normal:
		return casa.MorphologyAbnormal
	default:
		return casa.MorphologyUnlabelled
	}
}

// ProduceTrajectories links frames, which must be in strictly increasing
// frame order. Trajectory ids are "1", "2", ... in order of track creation,
// and the result is ordered the same way.
func (l *NearestNeighbourLinker) ProduceTrajectories(ctx context.Context, frames []Frame) ([]casa.Trajectory, error) {
	if l.MaxLinkDistance <= 0 || math.IsNaN(l.MaxLinkDistance) {
		return nil, fmt.Errorf("%w: max link distance must be > 0, got %g", ErrInvalidFrames, l.MaxLinkDistance)
	}
	if l.MaxGapFrames < 0 {
		return nil, fmt.Errorf("%w: max gap frames must be >= 0, got %d", ErrInvalidFrames, l.MaxGapFrames)
	}
	if err := validateFrames(frames); err != nil {
		return nil, err
	}

	var (
		open     []*openTrack
		finished []*openTrack
		nextSeq  = 1
	)

	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Close tracks whose gap is exhausted.
		live := open[:0]
		for _, t := range open {
			if f.Index-t.last().Frame-1 > l.MaxGapFrames {
				finished = append(finished, t)
				continue
			}
			live = append(live, t)
		}
		open = live

		matched := make([]bool, len(f.Detections))
		if len(open) > 0 && len(f.Detections) > 0 {
			cost := make([][]float64, len(f.Detections))
			for i, d := range f.Detections {
				cost[i] = make([]float64, len(open))
				for j, t := range open {
					last := t.last()
					gate := l.MaxLinkDistance * float64(f.Index-last.Frame)
					dist := math.Hypot(d.X-last.X, d.Y-last.Y)
					if dist > gate {
						cost[i][j] = forbiddenCost
					} else {
						cost[i][j] = dist
					}
				}
			}
			for i, j := range assign(cost) {
				if j >= 0 {
					open[j].add(f.Index, f.Detections[i])
					matched[i] = true
				}
			}
		}

		for i, d := range f.Detections {
			if matched[i] {
				continue
			}
			t := &openTrack{seq: nextSeq}
			nextSeq++
			t.add(f.Index, d)
			open = append(open, t)
		}
	}
	finished = append(finished, open...)

	out := make([]casa.Trajectory, 0, len(finished))
	bySeq := make([]*openTrack, nextSeq)
	for _, t := range finished {
		bySeq[t.seq] = t
	}
	for _, t := range bySeq {
		if t == nil || len(t.samples) < l.MinSamples {
			continue
		}
		out = append(out, casa.Trajectory{
			ID:         casa.TrackIDFromInt(t.seq),
			Morphology: t.morphology(),
			Samples:    t.samples,
		})
	}
	return out, nil
}

func validateFrames(frames []Frame) error {
	for i, f := range frames {
		if f.Index < 0 {
			return fmt.Errorf("%w: negative frame index %d at position %d", ErrInvalidFrames, f.Index, i)
		}
		if i > 0 && f.Index <= frames[i-1].Index {
			return fmt.Errorf("%w: frame %d follows frame %d at position %d", ErrInvalidFrames, f.Index, frames[i-1].Index, i)
		}
		for j, d := range f.Detections {
			if math.IsNaN(d.X) || math.IsNaN(d.Y) || math.IsInf(d.X, 0) || math.IsInf(d.Y, 0) {
				return fmt.Errorf("%w: non-finite detection %d in frame %d", ErrInvalidFrames, j, f.Index)
			}
			if !d.Morphology.IsValid() {
				return fmt.Errorf("%w: unknown morphology %q in frame %d", ErrInvalidFrames, d.Morphology, f.Index)
			}
		}
	}
	return nil
}
