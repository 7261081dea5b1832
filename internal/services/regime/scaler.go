package regime

import (
	"gonum.org/v1/gonum/stat"

	"MarketState/internal/domain/models"
)

func fitScaler(X [][]float64) models.Scaler {
	d := len(X[0])
	s := models.Scaler{Mean: make([]float64, d), Scale: make([]float64, d)}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for t, row := range X {
			col[t] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if !(std > 0) {
			std = 1
		}
		s.Scale[j] = std
	}
	return s
}

func transform(s models.Scaler, X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for t, row := range X {
		z := make([]float64, len(row))
		for j, v := range row {
			z[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[t] = z
	}
	return out
}
