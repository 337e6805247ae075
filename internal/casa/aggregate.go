package casa

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/casa.report/internal/units"
)

// aggregate builds the population report from index-aligned per-trajectory
// metrics. It runs single-threaded after the measurement stage.
func aggregate(metrics []TrajectoryMetrics, p Params) *Report {
	r := &Report{
		Count:        len(metrics),
		Trajectories: metrics,
	}

	var vcl, vsl, vap, lin, str, wob, alh, bcf []float64
	var normal, abnormal, unlabelled int
	for _, m := range metrics {
		switch m.Morphology {
		case MorphologyNormal:
			normal++
		case MorphologyAbnormal:
			abnormal++
		default:
			unlabelled++
		}

		switch m.Class {
		case ClassProgressive:
			r.Motility.ProgressiveCount++
		case ClassNonProgressive:
			r.Motility.NonProgressiveCount++
		case ClassImmotile:
			r.Motility.ImmotileCount++
		default:
			r.Motility.IndeterminateCount++
			continue
		}

		vcl = append(vcl, m.VCL)
		vsl = append(vsl, m.VSL)
		vap = append(vap, m.VAP)
		lin = append(lin, m.LIN)
		str = append(str, m.STR)
		wob = append(wob, m.WOB)
		alh = append(alh, m.ALH)
		bcf = append(bcf, m.BCF)
	}

	mot := &r.Motility
	mot.ProgressivePercent = percentOf(mot.ProgressiveCount, r.Count)
	mot.NonProgressivePercent = percentOf(mot.NonProgressiveCount, r.Count)
	mot.ImmotilePercent = percentOf(mot.ImmotileCount, r.Count)
	mot.IndeterminatePercent = percentOf(mot.IndeterminateCount, r.Count)
	mot.TotalMotilityPercent = percentOf(mot.ProgressiveCount+mot.NonProgressiveCount, r.Count)

	r.Velocity = VelocityStats{
		MeanVCL: mean(vcl),
		MeanVSL: mean(vsl),
		MeanVAP: mean(vap),
		P50VCL:  quantile(0.5, vcl),
		P90VCL:  quantile(0.9, vcl),
		MeanSTR: mean(str),
		MeanWOB: mean(wob),
		MeanALH: mean(alh),
		MeanBCF: mean(bcf),
	}
	r.Linearity = mean(lin)

	if normal+abnormal > 0 {
		r.Morphology = MorphologyBreakdown{
			Available:       true,
			NormalCount:     normal,
			AbnormalCount:   abnormal,
			UnlabelledCount: unlabelled,
			NormalPercent:   percentOf(normal, normal+abnormal),
		}
	}

	r.ConcentrationPerML = ConcentrationPerML(r.Count, p)
	r.ConcentrationMillionPerML = units.ConvertConcentration(r.ConcentrationPerML, units.MillionPerML)
	return r
}

// ConcentrationPerML estimates cells per millilitre of undiluted sample:
//
//	volume_ml = chamber_depth * field_area * fields_analyzed / 1e12
//	concentration = count * dilution_factor / volume_ml
//
// p must already be valid.
func ConcentrationPerML(count int, p Params) float64 {
	volume := units.SampledVolumeML(p.ChamberDepthMicrons, p.FieldAreaMicrons2, p.FieldsAnalyzed)
	if volume <= 0 {
		return 0
	}
	return float64(count) * p.DilutionFactor / volume
}

// checkConcentrationRange rejects parameter combinations whose sampled
// volume or concentration cannot be represented for a population of count.
func checkConcentrationRange(count int, p Params) error {
	volume := units.SampledVolumeML(p.ChamberDepthMicrons, p.FieldAreaMicrons2, p.FieldsAnalyzed)
	if volume <= 0 || !isFinite(volume) || !isFinite(ConcentrationPerML(max(count, 1), p)) {
		return &ParameterError{
			Field:  "sampled_volume",
			Reason: fmt.Sprintf("chamber volume %g mL with dilution %g gives no finite concentration", volume, p.DilutionFactor),
		}
	}
	return nil
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	if m := stat.Mean(xs, nil); !math.IsInf(m, 0) {
		return m
	}
	// The running sum overflowed; average pre-divided values instead.
	n := float64(len(xs))
	var m float64
	for _, x := range xs {
		m += x / n
	}
	return m
}

// quantile returns the empirical p-quantile, or 0 for an empty sample.
func quantile(p float64, xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
