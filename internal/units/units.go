// Package units provides shared constants and conversions for CASA
// velocity, concentration and volume units.
package units

// Velocity unit constants
const (
	UMPS = "um_s" // micrometres per second (report unit)
	MMPS = "mm_s"
)

// Concentration unit constants
const (
	PerML        = "per_ml" // cells per millilitre (report unit)
	MillionPerML = "million_per_ml"
)

// ValidVelocityUnits contains all valid velocity unit values
var ValidVelocityUnits = []string{UMPS, MMPS}

// ValidConcentrationUnits contains all valid concentration unit values
var ValidConcentrationUnits = []string{PerML, MillionPerML}

// IsValidVelocity checks if the given unit is a known velocity unit
func IsValidVelocity(unit string) bool {
	for _, u := range ValidVelocityUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// IsValidConcentration checks if the given unit is a known concentration unit
func IsValidConcentration(unit string) bool {
	for _, u := range ValidConcentrationUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// GetValidVelocityUnitsString returns a comma-separated string of valid velocity units for error messages
func GetValidVelocityUnitsString() string {
	return "um_s, mm_s"
}

// GetValidConcentrationUnitsString returns a comma-separated string of valid concentration units for error messages
func GetValidConcentrationUnitsString() string {
	return "per_ml, million_per_ml"
}
