package regime

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"MarketState/internal/domain/models"
)

const (
	probFloor   = 1e-12
	weightFloor = 1e-6
	massFloor   = 1e-10
	scaleFloor  = 1e-300
	ridgeTries  = 8
)

// Model is a fitted Gaussian-mixture HMM. It is read-only after construction
// and safe for concurrent use.
type Model struct {
	params models.RegimeModelParameters
	logW   [][]float64
	comps  [][]*distmv.Normal
	floor  float64
}

// NewModel rebuilds a model from persisted parameters.
func NewModel(p models.RegimeModelParameters) (*Model, error) {
	if err := checkShapes(p); err != nil {
		return nil, err
	}
	m := &Model{params: p, floor: 1e-6}
	if err := m.build(); err != nil {
		return nil, err
	}
	return m, nil
}

func checkShapes(p models.RegimeModelParameters) error {
	if p.Version != ModelVersion {
		return fmt.Errorf("%w: %q, want %q", ErrVersion, p.Version, ModelVersion)
	}
	bad := func(what string) error { return fmt.Errorf("%w: %s", ErrDimension, what) }
	if p.K < 1 || p.M < 1 || p.D < 1 {
		return bad("k, m and d must be positive")
	}
	if len(p.Labels) != p.K {
		return bad(fmt.Sprintf("%d labels for k=%d", len(p.Labels), p.K))
	}
	if len(p.Initial) != p.K || len(p.Transition) != p.K || len(p.Weights) != p.K ||
		len(p.Means) != p.K || len(p.Covariances) != p.K {
		return bad("state arrays do not match k")
	}
	if len(p.Scaler.Mean) != p.D || len(p.Scaler.Scale) != p.D {
		return bad("scaler does not match d")
	}
	for j := 0; j < p.K; j++ {
		if len(p.Transition[j]) != p.K || len(p.Weights[j]) != p.M ||
			len(p.Means[j]) != p.M || len(p.Covariances[j]) != p.M {
			return bad(fmt.Sprintf("state %d arrays do not match k or m", j))
		}
		for c := 0; c < p.M; c++ {
			if len(p.Means[j][c]) != p.D || len(p.Covariances[j][c]) != p.D {
				return bad(fmt.Sprintf("component %d/%d does not match d", j, c))
			}
			for _, row := range p.Covariances[j][c] {
				if len(row) != p.D {
					return bad(fmt.Sprintf("component %d/%d covariance is not square", j, c))
				}
			}
		}
	}
	return nil
}

// build refreshes the cached log-weights and Gaussian densities, adding a
// growing ridge to covariances that fail to factorise.
func (m *Model) build() error {
	p := &m.params
	if m.comps == nil {
		m.comps = make([][]*distmv.Normal, p.K)
		m.logW = make([][]float64, p.K)
		for j := range m.comps {
			m.comps[j] = make([]*distmv.Normal, p.M)
			m.logW[j] = make([]float64, p.M)
		}
	}
	for j := 0; j < p.K; j++ {
		for c := 0; c < p.M; c++ {
			m.logW[j][c] = math.Log(math.Max(p.Weights[j][c], probFloor))
			n, err := m.normal(p.Means[j][c], p.Covariances[j][c])
			if err != nil {
				return fmt.Errorf("state %d component %d: %w", j, c, err)
			}
			m.comps[j][c] = n
		}
	}
	return nil
}

func (m *Model) normal(mean []float64, cov [][]float64) (*distmv.Normal, error) {
	d := len(mean)
	ridge := 0.0
	for try := 0; try < ridgeTries; try++ {
		sym := mat.NewSymDense(d, nil)
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				v := 0.5 * (cov[a][b] + cov[b][a])
				if a == b {
					v += ridge
				}
				sym.SetSym(a, b, v)
			}
		}
		if n, ok := distmv.NewNormal(mean, sym, nil); ok {
			if ridge > 0 {
				for a := 0; a < d; a++ {
					cov[a][a] += ridge
				}
			}
			return n, nil
		}
		if ridge == 0 {
			ridge = m.floor
		} else {
			ridge *= 10
		}
	}
	return nil, ErrDegenerate
}

// Parameters returns the fitted parameters. Callers must not modify them.
func (m *Model) Parameters() models.RegimeModelParameters { return m.params }

// Labels returns the state labels, ordered by ascending mean entropy.
func (m *Model) Labels() []string { return m.params.Labels }

func (m *Model) prepare(X [][]float64) ([][]float64, error) {
	if len(X) == 0 {
		return nil, ErrInsufficientData
	}
	for t, row := range X {
		if len(row) != m.params.D {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrDimension, t, len(row), m.params.D)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d is not finite", ErrDimension, t)
			}
		}
	}
	return transform(m.params.Scaler, X), nil
}

// PredictProba returns the posterior state probabilities for every row of X.
func (m *Model) PredictProba(X [][]float64) ([][]float64, error) {
	Z, err := m.prepare(X)
	if err != nil {
		return nil, err
	}
	ws := newWorkspace(len(Z), m.params.K, m.params.M)
	m.estep(Z, ws)

	k := m.params.K
	out := make([][]float64, len(Z))
	for t := range out {
		row := make([]float64, k)
		copy(row, ws.gamma[t*k:(t+1)*k])
		out[t] = row
	}
	return out, nil
}

// LogLikelihood returns log P(X) under the model, in standardised units.
func (m *Model) LogLikelihood(X [][]float64) (float64, error) {
	Z, err := m.prepare(X)
	if err != nil {
		return 0, err
	}
	ws := newWorkspace(len(Z), m.params.K, m.params.M)
	m.emissions(Z, ws)
	return m.forward(ws), nil
}

// permute reorders states so that new state i is old state order[i].
func (m *Model) permute(order []int) error {
	p := &m.params
	k := p.K
	initial := make([]float64, k)
	trans := make([][]float64, k)
	weights := make([][]float64, k)
	means := make([][][]float64, k)
	covs := make([][][][]float64, k)
	for i, oi := range order {
		initial[i] = p.Initial[oi]
		weights[i] = p.Weights[oi]
		means[i] = p.Means[oi]
		covs[i] = p.Covariances[oi]
		trans[i] = make([]float64, k)
		for j, oj := range order {
			trans[i][j] = p.Transition[oi][oj]
		}
	}
	p.Initial, p.Transition, p.Weights, p.Means, p.Covariances = initial, trans, weights, means, covs
	return m.build()
}
