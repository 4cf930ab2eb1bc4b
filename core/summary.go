package core

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/interferometer-simulator/model"
)

// Summary describes a finished intensity series.
type Summary struct {
	Count    int
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
	Baseline float64 // self-pair contribution, 1/PathCount
}

// Summarize computes descriptive statistics for series. pathCount is used
// only to report the self-pair baseline.
func Summarize(series model.IntensitySeries, pathCount int) Summary {
	sum := Summary{Count: len(series)}
	if pathCount > 0 {
		sum.Baseline = 1 / float64(pathCount)
	}
	if len(series) == 0 {
		return sum
	}
	sum.Mean = stat.Mean(series, nil)
	if len(series) > 1 {
		sum.StdDev = stat.StdDev(series, nil)
	}
	sum.Min = floats.Min(series)
	sum.Max = floats.Max(series)
	return sum
}
