// ABOUTME: Derived training-load series point (fitness/fatigue/balance).
// ABOUTME: Fully regenerable from stored workouts; carries no independent truth.
package models

// LoadPoint is one day of the derived performance-management series.
type LoadPoint struct {
	Date    string
	Load    float64
	Fitness float64 // long-horizon decayed average
	Fatigue float64 // short-horizon decayed average
	Balance float64 // fitness - fatigue
	// Provisional marks the ramp-up transient: points within the first
	// long time constant of recorded history, where the zero initial
	// state still dominates.
	Provisional bool
}

// FormStatus buckets a balance value into the operator-facing zones.
func FormStatus(balance float64) string {
	switch {
	case balance > 20:
		return "Peak"
	case balance > 10:
		return "Fresh"
	case balance > 0:
		return "Prepared"
	case balance > -10:
		return "Balanced"
	case balance > -30:
		return "Fatigued"
	default:
		return "Overreaching"
	}
}
