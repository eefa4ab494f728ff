// Package settlement implements the contest settlement engine: margin
// monitoring and forced liquidation, position closing, ranking, prize
// distribution, and the atomic finalization of completed contests.
package settlement

import (
	"fmt"
	"time"
)

// Thresholds are the margin-level bands, expressed as percentages and
// strictly ordered safe > warning > call > liquidation.
type Thresholds struct {
	Safe        float64
	Warning     float64
	Call        float64
	Liquidation float64
}

// Validate checks the strict ordering of the threshold bands.
func (t Thresholds) Validate() error {
	if !(t.Safe > t.Warning && t.Warning > t.Call && t.Call > t.Liquidation) {
		return fmt.Errorf("settlement: thresholds must be strictly ordered safe > warning > call > liquidation, got %+v", t)
	}
	if t.Liquidation <= 0 {
		return fmt.Errorf("settlement: liquidation threshold must be positive, got %v", t.Liquidation)
	}
	return nil
}

// MarginClass is the health classification of a participant's margin level.
type MarginClass int

const (
	MarginSafe MarginClass = iota
	MarginWarning
	MarginCall
	MarginLiquidation
)

// Classify buckets a margin level (percentage) against the thresholds.
// Everything between the call and safe thresholds is the warning band; the
// warning threshold splits that band into its quiet and noisy halves (see
// Noisy).
func (t Thresholds) Classify(level float64) MarginClass {
	switch {
	case level <= t.Liquidation:
		return MarginLiquidation
	case level <= t.Call:
		return MarginCall
	case level < t.Safe:
		return MarginWarning
	default:
		return MarginSafe
	}
}

// Noisy reports whether a warning-band margin level has deteriorated past
// the warning threshold and is worth surfacing to operators. Levels in the
// upper half of the band (above warning, below safe) stay quiet.
func (t Thresholds) Noisy(level float64) bool {
	return level <= t.Warning
}

// Config is the settlement configuration snapshot injected into the margin
// monitor and finalizer. It is refreshed on a timer by the application
// rather than read from ambient global state.
type Config struct {
	Thresholds    Thresholds
	CheckInterval time.Duration // margin sub-sweep pacing within one job run
	Precision     int32         // currency rounding, decimal places
}

// ConfigProvider returns the current settlement configuration snapshot.
type ConfigProvider func() Config
