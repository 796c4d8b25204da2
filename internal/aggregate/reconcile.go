package aggregate

import (
	"math"
	"sort"

	"poolScope/internal/model"
)

// DefaultThreshold is the relative deviation from the median that marks sources as divergent.
const DefaultThreshold = 0.20

// Reconciliation describes how far each usable APY sits from the median.
type Reconciliation struct {
	Median float64
	// Deviations is keyed by source name and only holds sources with a usable APY.
	Deviations map[string]float64
	Divergent  bool
	Usable     int
}

// Reconcile compares the APY of every snapshot whose status is not unknown.
// A zero median is divergent as soon as any value is non-zero.
func Reconcile(snaps []model.SourceSnapshot, threshold float64) Reconciliation {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	var values []float64
	for _, snap := range snaps {
		if snap.UsableAPY() {
			values = append(values, snap.APYPercent)
		}
	}
	rec := Reconciliation{Deviations: make(map[string]float64), Usable: len(values)}
	if len(values) == 0 {
		return rec
	}
	rec.Median = median(values)

	for _, snap := range snaps {
		if !snap.UsableAPY() {
			continue
		}
		dev := deviation(snap.APYPercent, rec.Median)
		rec.Deviations[snap.Source] = dev
		if dev > threshold {
			rec.Divergent = true
		}
	}
	return rec
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func deviation(value, median float64) float64 {
	if median == 0 {
		if value == 0 {
			return 0
		}
		return 1
	}
	return round(math.Abs(value-median)/math.Abs(median), 6)
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
