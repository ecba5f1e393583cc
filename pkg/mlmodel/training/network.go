package training

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/mimir-aip/digitclf/pkg/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrInputSize is returned when features do not match the network's input length
var ErrInputSize = errors.New("feature length does not match network input")

// ErrValidationSplit is returned when a validation split would leave either side empty
var ErrValidationSplit = errors.New("validation split leaves an empty partition")

// Activation is the nonlinearity applied after a dense layer
type Activation string

const (
	ActivationReLU    Activation = "relu"
	ActivationSoftmax Activation = "softmax"
	ActivationLinear  Activation = "linear"
)

// Dense is a fully connected layer computing act(x·W + b)
type Dense struct {
	W          *mat.Dense // in x out
	B          []float64
	Activation Activation

	// forward caches for backprop
	input *mat.Dense
	z     *mat.Dense

	gradW *mat.Dense
	gradB []float64
}

func newDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	// glorot uniform
	limit := math.Sqrt(6 / float64(in+out))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return &Dense{
		W:          mat.NewDense(in, out, w),
		B:          make([]float64, out),
		Activation: act,
		gradW:      mat.NewDense(in, out, nil),
		gradB:      make([]float64, out),
	}
}

// Dims returns the layer's input and output width
func (d *Dense) Dims() (in, out int) {
	return d.W.Dims()
}

func (d *Dense) forward(x *mat.Dense, train bool) *mat.Dense {
	n, _ := x.Dims()
	_, out := d.W.Dims()

	z := mat.NewDense(n, out, nil)
	z.Mul(x, d.W)
	for i := 0; i < n; i++ {
		floats.Add(z.RawRowView(i), d.B)
	}
	if train {
		d.input = x
		d.z = z
	}

	a := mat.NewDense(n, out, nil)
	a.Copy(z)
	switch d.Activation {
	case ActivationReLU:
		a.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, a)
	case ActivationSoftmax:
		for i := 0; i < n; i++ {
			softmaxInPlace(a.RawRowView(i))
		}
	}
	return a
}

// backward takes dL/dA for this layer's output, stores parameter gradients
// and returns dL/dA for the layer's input. For the output layer the caller
// passes dL/dZ directly since softmax and cross-entropy are fused.
func (d *Dense) backward(grad *mat.Dense, fused bool) *mat.Dense {
	dz := grad
	if !fused && d.Activation == ActivationReLU {
		dz = mat.DenseCopyOf(grad)
		dz.Apply(func(i, j int, v float64) float64 {
			if d.z.At(i, j) > 0 {
				return v
			}
			return 0
		}, dz)
	}

	d.gradW.Mul(d.input.T(), dz)
	for j := range d.gradB {
		d.gradB[j] = 0
	}
	n, _ := dz.Dims()
	for i := 0; i < n; i++ {
		floats.Add(d.gradB, dz.RawRowView(i))
	}

	in, _ := d.W.Dims()
	dx := mat.NewDense(n, in, nil)
	dx.Mul(dz, d.W.T())
	return dx
}

func softmaxInPlace(row []float64) {
	m := floats.Max(row)
	for j, v := range row {
		row[j] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(row), row)
}

// Network is a stack of dense layers trained with Adam against sparse
// categorical cross-entropy
type Network struct {
	Layers    []*Dense
	InputSize int
	Classes   int
	// Logits is set when the last layer is linear and the loss applies softmax itself
	Logits bool

	optimizer *Adam
}

// ModelConfig configures BuildModel
type ModelConfig struct {
	InputSize    int
	HiddenUnits  int
	Classes      int
	LearningRate float64
	Seed         int64
	Logits       bool
}

// ModelConfigFor derives a builder config from a training config and variant
func ModelConfigFor(inputSize int, cfg *models.TrainingConfig, variant models.ModelVariant) ModelConfig {
	return ModelConfig{
		InputSize:    inputSize,
		HiddenUnits:  cfg.HiddenUnits,
		Classes:      cfg.Classes,
		LearningRate: cfg.LearningRate,
		Seed:         cfg.RandomSeed,
		Logits:       variant == models.VariantAlternate,
	}
}

// BuildModel constructs an untrained input -> Dense(hidden, relu) -> Dense(classes, softmax)
// network compiled with Adam
func BuildModel(cfg ModelConfig) (*Network, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", cfg.InputSize)
	}
	if cfg.HiddenUnits <= 0 {
		cfg.HiddenUnits = 128
	}
	if cfg.Classes <= 0 {
		cfg.Classes = 10
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	out := ActivationSoftmax
	if cfg.Logits {
		out = ActivationLinear
	}

	net := &Network{
		Layers: []*Dense{
			newDense(cfg.InputSize, cfg.HiddenUnits, ActivationReLU, rng),
			newDense(cfg.HiddenUnits, cfg.Classes, out, rng),
		},
		InputSize: cfg.InputSize,
		Classes:   cfg.Classes,
		Logits:    cfg.Logits,
	}
	net.optimizer = NewAdam(cfg.LearningRate, net.Layers)
	return net, nil
}

// Forward runs a batch through the network. The result holds class
// probabilities, or raw logits when the network is a logits network.
func (n *Network) Forward(x *mat.Dense) (*mat.Dense, error) {
	if _, c := x.Dims(); c != n.InputSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, c, n.InputSize)
	}
	return n.forward(x, false), nil
}

func (n *Network) forward(x *mat.Dense, train bool) *mat.Dense {
	a := x
	for _, l := range n.Layers {
		a = l.forward(a, train)
	}
	return a
}

// Probabilities runs a batch and always returns softmax probabilities
func (n *Network) Probabilities(x *mat.Dense) (*mat.Dense, error) {
	out, err := n.Forward(x)
	if err != nil {
		return nil, err
	}
	if n.Logits {
		r, _ := out.Dims()
		for i := 0; i < r; i++ {
			softmaxInPlace(out.RawRowView(i))
		}
	}
	return out, nil
}

// trainStep does one forward/backward pass and an Adam update. It returns the
// mean loss and the number of correct predictions in the batch.
func (n *Network) trainStep(x *mat.Dense, y []int) (float64, int) {
	loss, correct := n.backprop(x, y)
	n.optimizer.Step()
	return loss, correct
}

// backprop leaves dL/dW and dL/db on every layer for the batch
func (n *Network) backprop(x *mat.Dense, y []int) (float64, int) {
	out := n.forward(x, true)
	probs := out
	if n.Logits {
		probs = mat.DenseCopyOf(out)
		r, _ := probs.Dims()
		for i := 0; i < r; i++ {
			softmaxInPlace(probs.RawRowView(i))
		}
	}

	loss, correct := crossEntropy(probs, y)

	// d(mean CE)/dz for a softmax output is (p - onehot(y)) / batch
	rows, _ := probs.Dims()
	grad := mat.DenseCopyOf(probs)
	for i, label := range y {
		row := grad.RawRowView(i)
		row[label] -= 1
		floats.Scale(1/float64(rows), row)
	}

	last := len(n.Layers) - 1
	g := n.Layers[last].backward(grad, true)
	for i := last - 1; i >= 0; i-- {
		g = n.Layers[i].backward(g, false)
	}
	return loss, correct
}

// crossEntropy returns the mean sparse categorical cross-entropy of probs
// against integer labels, and the count of argmax hits
func crossEntropy(probs *mat.Dense, y []int) (float64, int) {
	const eps = 1e-7
	var loss float64
	correct := 0
	for i, label := range y {
		row := probs.RawRowView(i)
		p := math.Min(math.Max(row[label], eps), 1-eps)
		loss -= math.Log(p)
		if floats.MaxIdx(row) == label {
			correct++
		}
	}
	return loss / float64(len(y)), correct
}
