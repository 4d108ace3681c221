package util

import (
	"math"
	"slices"
)

// Number is any integer or float quantity the statistics accept
type Number interface {
	~int | ~int32 | ~int64 | ~uint64 | ~float64
}

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

// Stats summarizes a sample
type Stats struct {
	Count        int     `json:"count"`
	Sum          float64 `json:"sum"`
	Mean         float64 `json:"mean"`
	StdDeviation float64 `json:"std_deviation"` // population
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
}

// NewStats summarizes values. An empty sample yields zero Stats.
func NewStats[T Number](values []T) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{
		Count: len(values),
		Min:   float64(slices.Min(values)),
		Max:   float64(slices.Max(values)),
	}

	// Welford's running variance
	var m2 float64
	for i, v := range values {
		x := float64(v)
		s.Sum += x
		delta := x - s.Mean
		s.Mean += delta / float64(i+1)
		m2 += delta * (x - s.Mean)
	}
	s.StdDeviation = math.Sqrt(m2 / float64(len(values)))

	return s
}

// ----------------------------------------------------------------------------
// Lock grant fairness
// ----------------------------------------------------------------------------

// FairnessStats describes how evenly lock grants were spread over competing
// workers
type FairnessStats struct {
	Stats
	// MinMaxRatio is the grants of the least served worker relative to the
	// most served one (1 when nobody was granted anything)
	MinMaxRatio float64 `json:"min_max_ratio"`
	// Score is 1 for a perfectly even spread and drops toward 0 as workers
	// starve. It averages (1 - coefficient of variation) and MinMaxRatio.
	Score float64 `json:"score"`
}

// NewFairnessStats computes FairnessStats from per worker grant counts
func NewFairnessStats[T Number](grants []T) FairnessStats {
	f := FairnessStats{Stats: NewStats(grants), MinMaxRatio: 1}
	if f.Max > 0 {
		f.MinMaxRatio = f.Min / f.Max
	}

	var cv float64
	if f.Mean > 0 {
		cv = f.StdDeviation / f.Mean
	}
	f.Score = (1-math.Min(1, cv))/2 + f.MinMaxRatio/2

	return f
}
