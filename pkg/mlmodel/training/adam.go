package training

import (
	"math"
)

// Adam implements the Adam optimizer with the usual defaults
// (beta1 0.9, beta2 0.999, epsilon 1e-7)
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	layers []*Dense
	step   int
	m, v   [][]float64 // per parameter tensor, weights then bias for each layer
}

// NewAdam creates an optimizer over the parameters of layers
func NewAdam(learningRate float64, layers []*Dense) *Adam {
	a := &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		layers:       layers,
	}
	for _, l := range layers {
		in, out := l.Dims()
		a.m = append(a.m, make([]float64, in*out), make([]float64, out))
		a.v = append(a.v, make([]float64, in*out), make([]float64, out))
	}
	return a
}

// Step applies the gradients currently stored on each layer
func (a *Adam) Step() {
	a.step++
	t := float64(a.step)
	lr := a.LearningRate * math.Sqrt(1-math.Pow(a.Beta2, t)) / (1 - math.Pow(a.Beta1, t))

	for i, l := range a.layers {
		a.update(l.W.RawMatrix().Data, l.gradW.RawMatrix().Data, a.m[2*i], a.v[2*i], lr)
		a.update(l.B, l.gradB, a.m[2*i+1], a.v[2*i+1], lr)
	}
}

func (a *Adam) update(params, grads, m, v []float64, lr float64) {
	for j, g := range grads {
		m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
		v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g
		params[j] -= lr * m[j] / (math.Sqrt(v[j]) + a.Epsilon)
	}
}
