// Package report turns gas measurements into summary statistics, CSV files
// and charts.
package report

import (
	"log/slog"
	"sort"
)

// Stats holds descriptive statistics over a set of gas values.
type Stats struct {
	Count int
	Min   uint64
	Max   uint64
	Mean  float64
	P95   float64
	P99   float64
}

// Summarize computes descriptive statistics over gas values.
// Returns the zero Stats for empty input.
func Summarize(gas []uint64) Stats {
	if len(gas) == 0 {
		return Stats{}
	}

	sorted := make([]float64, len(gas))
	var sum float64
	minVal, maxVal := gas[0], gas[0]
	for i, g := range gas {
		sorted[i] = float64(g)
		sum += float64(g)
		if g < minVal {
			minVal = g
		}
		if g > maxVal {
			maxVal = g
		}
	}
	sort.Float64s(sorted)

	return Stats{
		Count: len(gas),
		Min:   minVal,
		Max:   maxVal,
		Mean:  sum / float64(len(gas)),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
	}
}

// percentile computes the p-th percentile of sorted values using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(rank)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

// Log writes the stats as one structured log line.
func (s Stats) Log(logger *slog.Logger, name string) {
	logger.Info("gas stats",
		slog.String("contract", name),
		slog.Int("calls", s.Count),
		slog.Uint64("min", s.Min),
		slog.Uint64("max", s.Max),
		slog.Float64("mean", s.Mean),
		slog.Float64("p95", s.P95),
		slog.Float64("p99", s.P99),
	)
}
