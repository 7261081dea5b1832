package repository

// Timeframe is the bucket width observations are aggregated to.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// NormalizeTimeframe maps s to a known timeframe. Empty or unknown values
// fall back to 1m.
func NormalizeTimeframe(s string) Timeframe {
	switch tf := Timeframe(s); tf {
	case TF1s, TF1m, TF5m:
		return tf
	default:
		return TF1m
	}
}
