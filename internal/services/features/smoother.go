package features

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Derivatives is the output of a causal polynomial fit evaluated at the newest sample.
type Derivatives struct {
	Value     float64
	First     float64
	Second    float64
	HasSecond bool
}

type coeffKey struct {
	window int
	order  int
}

// CoefficientCache memoises filter taps by (window, order). Entries depend only
// on those structural parameters, so they are never invalidated. Safe for
// concurrent use.
type CoefficientCache struct {
	m sync.Map // coeffKey -> *mat.Dense
}

// DefaultCoefficients is the process-wide cache used by Smoother.
var DefaultCoefficients = &CoefficientCache{}

// Get returns the (order+1) x window tap matrix for the given key, computing it
// on first use.
func (c *CoefficientCache) Get(window, order int) (*mat.Dense, error) {
	key := coeffKey{window: window, order: order}
	if v, ok := c.m.Load(key); ok {
		return v.(*mat.Dense), nil
	}
	h, err := causalTaps(window, order)
	if err != nil {
		return nil, err
	}
	v, _ := c.m.LoadOrStore(key, h)
	return v.(*mat.Dense), nil
}

// causalTaps fits a polynomial over the time indices -(window-1)..0. Row r of
// the result holds the taps that produce the coefficient of t^r when dotted
// with the window. The abscissa is scaled to [-1, 0] for the QR solve and the
// rows are rescaled afterwards.
func causalTaps(window, order int) (*mat.Dense, error) {
	cols := order + 1
	if window < cols {
		return nil, fmt.Errorf("%w: window=%d order=%d: underdetermined", ErrSingularMatrix, window, order)
	}
	span := math.Max(float64(window-1), 1)
	a := mat.NewDense(window, cols, nil)
	for i := 0; i < window; i++ {
		u := float64(i-(window-1)) / span
		v := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, v)
			v *= u
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	ones := make([]float64, window)
	for i := range ones {
		ones[i] = 1
	}
	var h mat.Dense
	if err := qr.SolveTo(&h, false, mat.NewDiagDense(window, ones)); err != nil {
		return nil, fmt.Errorf("%w: window=%d order=%d: %v", ErrSingularMatrix, window, order, err)
	}
	for r := 1; r < cols; r++ {
		floats.Scale(math.Pow(span, -float64(r)), h.RawRowView(r))
	}
	return &h, nil
}

// Smoother is a one-sided local-polynomial differentiator.
type Smoother struct {
	window int
	order  int
	dt     float64
	cache  *CoefficientCache
}

// NewSmoother creates a smoother over the last window samples with the given
// polynomial order. dt is the sampling interval used to scale derivatives.
func NewSmoother(window, order int, dt float64) *Smoother {
	if dt <= 0 {
		dt = 1
	}
	return &Smoother{window: window, order: order, dt: dt, cache: DefaultCoefficients}
}

// Window returns the number of samples the smoother needs.
func (s *Smoother) Window() int { return s.window }

// Differentiate fits the newest Window() samples of xs. It returns
// ErrUnavailable when there are not enough samples or the order does not fit
// the window, and ErrSingularMatrix when the fit cannot be solved.
func (s *Smoother) Differentiate(xs []float64) (Derivatives, error) {
	if s.window <= 0 || s.order < 0 || s.order >= s.window || len(xs) < s.window {
		return Derivatives{}, ErrUnavailable
	}
	h, err := s.cache.Get(s.window, s.order)
	if err != nil {
		return Derivatives{}, err
	}
	tail := xs[len(xs)-s.window:]

	var d Derivatives
	d.Value = floats.Dot(h.RawRowView(0), tail)
	if s.order >= 1 {
		d.First = floats.Dot(h.RawRowView(1), tail) / s.dt
	}
	if s.order >= 2 {
		d.Second = 2 * floats.Dot(h.RawRowView(2), tail) / (s.dt * s.dt)
		d.HasSecond = true
	}
	if !IsFinite(d.Value) || !IsFinite(d.First) || !IsFinite(d.Second) {
		return Derivatives{}, ErrUnavailable
	}
	return d, nil
}

// Differentiate is a convenience wrapper around a unit-interval Smoother.
func Differentiate(xs []float64, window, order int) (Derivatives, error) {
	return NewSmoother(window, order, 1).Differentiate(xs)
}
