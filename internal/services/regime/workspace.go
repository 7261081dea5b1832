package regime

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// workspace holds every buffer one E-step needs. It is sized once per fit and
// reused across iterations.
type workspace struct {
	T, K, M int

	logc  []float64 // [T][K][M] log(w_jm * N_jm(x_t))
	logb  []float64 // [T][K] log emission
	b     []float64 // [T][K] emission scaled by exp(-shift_t)
	shift []float64 // [T]
	alpha []float64 // [T][K]
	beta  []float64 // [T][K]
	gamma []float64 // [T][K]
	scale []float64 // [T]
	xi    []float64 // [K][K] summed over t
	resp  []float64 // [T] component responsibilities
}

func newWorkspace(T, K, M int) *workspace {
	return &workspace{
		T: T, K: K, M: M,
		logc:  make([]float64, T*K*M),
		logb:  make([]float64, T*K),
		b:     make([]float64, T*K),
		shift: make([]float64, T),
		alpha: make([]float64, T*K),
		beta:  make([]float64, T*K),
		gamma: make([]float64, T*K),
		scale: make([]float64, T),
		xi:    make([]float64, K*K),
		resp:  make([]float64, T),
	}
}

// emissions fills logc, logb and the per-row shifted emissions.
func (m *Model) emissions(Z [][]float64, ws *workspace) {
	K, M := ws.K, ws.M
	for t, x := range Z {
		rowMax := math.Inf(-1)
		for j := 0; j < K; j++ {
			base := (t*K + j) * M
			cmax := math.Inf(-1)
			for c := 0; c < M; c++ {
				v := m.logW[j][c] + m.comps[j][c].LogProb(x)
				if math.IsNaN(v) {
					v = math.Inf(-1)
				}
				ws.logc[base+c] = v
				cmax = math.Max(cmax, v)
			}
			lb := cmax
			if !math.IsInf(cmax, -1) {
				var s float64
				for c := 0; c < M; c++ {
					s += math.Exp(ws.logc[base+c] - cmax)
				}
				lb = cmax + math.Log(s)
			}
			ws.logb[t*K+j] = lb
			rowMax = math.Max(rowMax, lb)
		}
		if math.IsInf(rowMax, -1) {
			rowMax = 0
		}
		ws.shift[t] = rowMax
		for j := 0; j < K; j++ {
			ws.b[t*K+j] = math.Exp(ws.logb[t*K+j] - rowMax)
		}
	}
}

// forward runs the scaled forward pass and returns log P(Z).
func (m *Model) forward(ws *workspace) float64 {
	T, K := ws.T, ws.K
	pi, A := m.params.Initial, m.params.Transition
	var ll float64
	for t := 0; t < T; t++ {
		row := ws.alpha[t*K : (t+1)*K]
		bt := ws.b[t*K : (t+1)*K]
		for j := 0; j < K; j++ {
			var s float64
			if t == 0 {
				s = pi[j]
			} else {
				prev := ws.alpha[(t-1)*K : t*K]
				for i := 0; i < K; i++ {
					s += prev[i] * A[i][j]
				}
			}
			row[j] = s * bt[j]
		}
		c := floats.Sum(row)
		if !(c > scaleFloor) || math.IsInf(c, 0) {
			for j := range row {
				row[j] = 1 / float64(K)
			}
			c = scaleFloor
		} else {
			floats.Scale(1/c, row)
		}
		ws.scale[t] = c
		ll += math.Log(c) + ws.shift[t]
	}
	return ll
}

func (m *Model) backward(ws *workspace) {
	T, K := ws.T, ws.K
	A := m.params.Transition
	last := ws.beta[(T-1)*K : T*K]
	for j := range last {
		last[j] = 1
	}
	for t := T - 2; t >= 0; t-- {
		next := ws.beta[(t+1)*K : (t+2)*K]
		bn := ws.b[(t+1)*K : (t+2)*K]
		cur := ws.beta[t*K : (t+1)*K]
		for i := 0; i < K; i++ {
			var s float64
			for j := 0; j < K; j++ {
				s += A[i][j] * bn[j] * next[j]
			}
			cur[i] = s / ws.scale[t+1]
		}
	}
}

// estep computes state posteriors and the summed transition posteriors.
func (m *Model) estep(Z [][]float64, ws *workspace) float64 {
	m.emissions(Z, ws)
	ll := m.forward(ws)
	m.backward(ws)

	T, K := ws.T, ws.K
	for t := 0; t < T; t++ {
		g := ws.gamma[t*K : (t+1)*K]
		for j := 0; j < K; j++ {
			g[j] = ws.alpha[t*K+j] * ws.beta[t*K+j]
		}
		s := floats.Sum(g)
		if s > 0 && !math.IsInf(s, 0) {
			floats.Scale(1/s, g)
		} else {
			copy(g, ws.alpha[t*K:(t+1)*K])
		}
	}

	A := m.params.Transition
	for i := range ws.xi {
		ws.xi[i] = 0
	}
	for t := 0; t < T-1; t++ {
		for i := 0; i < K; i++ {
			a := ws.alpha[t*K+i]
			if a == 0 {
				continue
			}
			for j := 0; j < K; j++ {
				ws.xi[i*K+j] += a * A[i][j] * ws.b[(t+1)*K+j] * ws.beta[(t+1)*K+j] / ws.scale[t+1]
			}
		}
	}
	return ll
}

// mstep re-estimates all parameters from the current posteriors.
func (m *Model) mstep(Z [][]float64, ws *workspace) error {
	p := &m.params
	T, K, M, D := ws.T, ws.K, ws.M, p.D

	for j := 0; j < K; j++ {
		p.Initial[j] = math.Max(ws.gamma[j], probFloor)
	}
	normalize(p.Initial)

	for i := 0; i < K; i++ {
		row := ws.xi[i*K : (i+1)*K]
		if floats.Sum(row) <= massFloor {
			continue
		}
		for j := 0; j < K; j++ {
			p.Transition[i][j] = math.Max(row[j], probFloor)
		}
		normalize(p.Transition[i])
	}

	mass := make([]float64, M)
	diff := make([]float64, D)
	for j := 0; j < K; j++ {
		for c := 0; c < M; c++ {
			var nk float64
			for t := 0; t < T; t++ {
				r := 0.0
				lb := ws.logb[t*K+j]
				if g := ws.gamma[t*K+j]; g > 0 && !math.IsInf(lb, -1) {
					r = g * math.Exp(ws.logc[(t*K+j)*M+c]-lb)
				}
				ws.resp[t] = r
				nk += r
			}
			mass[c] = nk
			if nk <= massFloor {
				continue
			}

			mean := p.Means[j][c]
			for d := range mean {
				mean[d] = 0
			}
			for t := 0; t < T; t++ {
				if r := ws.resp[t]; r > 0 {
					floats.AddScaled(mean, r, Z[t])
				}
			}
			floats.Scale(1/nk, mean)

			cov := p.Covariances[j][c]
			for a := 0; a < D; a++ {
				for b := range cov[a] {
					cov[a][b] = 0
				}
			}
			for t := 0; t < T; t++ {
				r := ws.resp[t]
				if r == 0 {
					continue
				}
				floats.SubTo(diff, Z[t], mean)
				for a := 0; a < D; a++ {
					for b := a; b < D; b++ {
						cov[a][b] += r * diff[a] * diff[b]
					}
				}
			}
			for a := 0; a < D; a++ {
				for b := a; b < D; b++ {
					v := cov[a][b] / nk
					if a == b {
						v += m.floor
					}
					cov[a][b], cov[b][a] = v, v
				}
			}
		}

		if total := floats.Sum(mass); total > massFloor {
			for c := 0; c < M; c++ {
				p.Weights[j][c] = math.Max(mass[c]/total, weightFloor)
			}
			normalize(p.Weights[j])
		}
	}
	return m.build()
}

func normalize(xs []float64) {
	s := floats.Sum(xs)
	if !(s > 0) {
		for i := range xs {
			xs[i] = 1 / float64(len(xs))
		}
		return
	}
	floats.Scale(1/s, xs)
}
