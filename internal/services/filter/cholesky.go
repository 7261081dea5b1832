package filter

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

const symmetryTolerance = 1e-10

// Cholesky returns the lower-triangular factor L with L*Lᵀ = a.
// a must be square, symmetric and positive definite; otherwise the error
// wraps ErrNotPositiveDefinite.
func Cholesky(a [][]float64) (*mat.TriDense, error) {
	n := len(a)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrNotPositiveDefinite)
	}
	for i, row := range a {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrNotPositiveDefinite, i, len(row), n)
		}
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v, w := a[i][j], a[j][i]
			if math.IsNaN(v) || math.IsInf(v, 0) || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: non-finite entry at (%d,%d)", ErrNotPositiveDefinite, i, j)
			}
			if math.Abs(v-w) > symmetryTolerance*math.Max(1, math.Max(math.Abs(v), math.Abs(w))) {
				return nil, fmt.Errorf("%w: not symmetric at (%d,%d)", ErrNotPositiveDefinite, i, j)
			}
			sym.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, ErrNotPositiveDefinite
	}
	var l mat.TriDense
	chol.LTo(&l)
	return &l, nil
}

// MultivariateNormal draws from N(mean, LLᵀ).
type MultivariateNormal struct {
	mean []float64
	l    *mat.TriDense
	z    []float64
}

func NewMultivariateNormal(mean []float64, cov [][]float64) (*MultivariateNormal, error) {
	if len(mean) != len(cov) {
		return nil, fmt.Errorf("%w: mean has %d entries, covariance is %dx%d", ErrInvalidConfig, len(mean), len(cov), len(cov))
	}
	l, err := Cholesky(cov)
	if err != nil {
		return nil, err
	}
	m := make([]float64, len(mean))
	copy(m, mean)
	return &MultivariateNormal{mean: m, l: l, z: make([]float64, len(mean))}, nil
}

// Dim returns the dimension of the distribution.
func (m *MultivariateNormal) Dim() int { return len(m.mean) }

// Sample writes one draw into dst. Not safe for concurrent use.
func (m *MultivariateNormal) Sample(rng *rand.Rand, dst []float64) {
	n := len(m.mean)
	for i := 0; i < n; i++ {
		m.z[i] = rng.NormFloat64()
	}
	for i := 0; i < n; i++ {
		s := m.mean[i]
		for j := 0; j <= i; j++ {
			s += m.l.At(i, j) * m.z[j]
		}
		dst[i] = s
	}
}
