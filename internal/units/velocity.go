package units

// CubicMicronsPerML is the number of µm³ in one millilitre (1 cm³).
const CubicMicronsPerML = 1e12

// PixelsToMicrons scales a pixel length by the calibration factor.
func PixelsToMicrons(px, micronsPerPixel float64) float64 {
	return px * micronsPerPixel
}

// ConvertVelocity converts a velocity from µm/s to the target units.
// Reports store velocities in µm/s.
func ConvertVelocity(umps float64, targetUnits string) float64 {
	switch targetUnits {
	case MMPS:
		return umps / 1000
	default:
		return umps
	}
}

// ConvertConcentration converts cells/mL to the target units.
func ConvertConcentration(perML float64, targetUnits string) float64 {
	switch targetUnits {
	case MillionPerML:
		return perML / 1e6
	default:
		return perML
	}
}

// SampledVolumeML is the physical volume observed across fields of a
// counting chamber, in millilitres.
func SampledVolumeML(depthMicrons, fieldAreaMicrons2 float64, fields int) float64 {
	return depthMicrons * fieldAreaMicrons2 * float64(fields) / CubicMicronsPerML
}
