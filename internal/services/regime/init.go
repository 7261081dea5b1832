package regime

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"MarketState/internal/domain/models"
)

const lloydIterations = 25

// kmeansPlusPlus seeds k centres with D² sampling and refines them with a
// few Lloyd iterations. It returns the centres and the assignment of each row.
func kmeansPlusPlus(Z [][]float64, k int, rng *rand.Rand) ([][]float64, []int) {
	T := len(Z)
	centres := make([][]float64, 0, k)
	centres = append(centres, clone(Z[rng.IntN(T)]))

	dist := make([]float64, T)
	for len(centres) < k {
		for t, x := range Z {
			dist[t] = math.Inf(1)
			for _, c := range centres {
				dist[t] = math.Min(dist[t], floats.Distance(x, c, 2))
			}
			dist[t] *= dist[t]
		}
		total := floats.Sum(dist)
		next := rng.IntN(T)
		if total > 0 {
			u := rng.Float64() * total
			for t, d := range dist {
				u -= d
				if u <= 0 {
					next = t
					break
				}
			}
		}
		centres = append(centres, clone(Z[next]))
	}

	assign := make([]int, T)
	counts := make([]int, k)
	for iter := 0; iter < lloydIterations; iter++ {
		changed := iter == 0
		for t, x := range Z {
			if best := nearest(x, centres); assign[t] != best {
				assign[t] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		for j := range counts {
			counts[j] = 0
		}
		sums := make([][]float64, k)
		for j := range sums {
			sums[j] = make([]float64, len(Z[0]))
		}
		for t, x := range Z {
			floats.Add(sums[assign[t]], x)
			counts[assign[t]]++
		}
		for j := range centres {
			if counts[j] > 0 {
				floats.ScaleTo(centres[j], 1/float64(counts[j]), sums[j])
			}
		}
	}
	return centres, assign
}

func nearest(x []float64, centres [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for j, c := range centres {
		if d := floats.Distance(x, c, 2); d < bestD {
			best, bestD = j, d
		}
	}
	return best
}

// initialParameters builds a starting model from a k-means partition.
func initialParameters(Z [][]float64, k, m int, floor float64, rng *rand.Rand) models.RegimeModelParameters {
	d := len(Z[0])
	centres, assign := kmeansPlusPlus(Z, k, rng)
	global := covariance(Z, floor)

	p := models.RegimeModelParameters{
		K:           k,
		M:           m,
		D:           d,
		Initial:     make([]float64, k),
		Transition:  make([][]float64, k),
		Weights:     make([][]float64, k),
		Means:       make([][][]float64, k),
		Covariances: make([][][][]float64, k),
	}
	for j := 0; j < k; j++ {
		p.Initial[j] = 1 / float64(k)
		p.Transition[j] = make([]float64, k)
		for i := 0; i < k; i++ {
			switch {
			case k == 1:
				p.Transition[j][i] = 1
			case i == j:
				p.Transition[j][i] = 0.9
			default:
				p.Transition[j][i] = 0.1 / float64(k-1)
			}
		}

		var members [][]float64
		for t, a := range assign {
			if a == j {
				members = append(members, Z[t])
			}
		}
		cov := global
		if len(members) > d {
			cov = covariance(members, floor)
		}

		p.Weights[j] = make([]float64, m)
		p.Means[j] = make([][]float64, m)
		p.Covariances[j] = make([][][]float64, m)
		for c := 0; c < m; c++ {
			p.Weights[j][c] = 1 / float64(m)
			mean := clone(centres[j])
			if c > 0 {
				for a := range mean {
					mean[a] += 0.5 * math.Sqrt(cov[a][a]) * rng.NormFloat64()
				}
			}
			p.Means[j][c] = mean
			p.Covariances[j][c] = cloneMatrix(cov)
		}
	}
	return p
}

func covariance(rows [][]float64, floor float64) [][]float64 {
	d := len(rows[0])
	data := mat.NewDense(len(rows), d, nil)
	for t, r := range rows {
		data.SetRow(t, r)
	}
	sym := mat.NewSymDense(d, nil)
	if len(rows) > 1 {
		stat.CovarianceMatrix(sym, data, nil)
	}
	out := make([][]float64, d)
	for a := 0; a < d; a++ {
		out[a] = make([]float64, d)
		for b := 0; b < d; b++ {
			out[a][b] = sym.At(a, b)
		}
		out[a][a] += floor
	}
	return out
}

func clone(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}

func cloneMatrix(a [][]float64) [][]float64 {
	out := make([][]float64, len(a))
	for i := range a {
		out[i] = clone(a[i])
	}
	return out
}
