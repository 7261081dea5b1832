package features

import (
	"math"
	"sort"

	"MarketState/internal/domain/models"
)

// ObservationsFromCandles maps candles to observations using close price and volume.
// Candles with a non-finite close or volume are skipped; the result is sorted by
// bucket and keeps only strictly increasing timestamps.
func ObservationsFromCandles(candles []models.Candle) []models.Observation {
	if len(candles) == 0 {
		return nil
	}
	out := make([]models.Observation, 0, len(candles))
	for _, c := range candles {
		if !IsFinite(c.Close) || !IsFinite(c.Volume) {
			continue
		}
		out = append(out, models.Observation{Timestamp: c.Bucket, Price: c.Close, Volume: c.Volume})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	// drop duplicated buckets, keep the latest row per bucket
	dedup := out[:0]
	for _, o := range out {
		if n := len(dedup); n > 0 && !o.Timestamp.After(dedup[n-1].Timestamp) {
			dedup[n-1] = o
			continue
		}
		dedup = append(dedup, o)
	}
	return dedup
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Ptr returns a pointer to v, or nil when v is not finite.
func Ptr(v float64) *float64 {
	if !IsFinite(v) {
		return nil
	}
	return &v
}
