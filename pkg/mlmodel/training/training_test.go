package training

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/mimir-aip/digitclf/pkg/dataset"
	"github.com/mimir-aip/digitclf/pkg/models"
)

func TestPreprocessNormalize(t *testing.T) {
	train := dataset.Synthetic(30, 28, 28, 10, 1)
	test := dataset.Synthetic(10, 28, 28, 10, 2)

	xTrain, xTest, err := Preprocess(train, test, models.PreprocessNormalize)
	require.NoError(t, err)

	for _, f := range []*Features{xTrain, xTest} {
		assert.Equal(t, 784, f.Width())
		rows, _ := f.X.Dims()
		for i := 0; i < rows; i++ {
			for _, v := range f.X.RawRowView(i) {
				assert.True(t, v >= 0 && v <= 1, "value %g outside [0,1]", v)
			}
		}
	}
	assert.Equal(t, train.Labels, xTrain.Y)
	assert.Equal(t, test.Labels, xTest.Y)
	assert.InDelta(t, train.Images[3].At(2, 5)/255, xTrain.X.At(3, 2*28+5), 1e-12)
}

func TestPreprocessIdempotent(t *testing.T) {
	train := dataset.Synthetic(8, 6, 6, 3, 5)
	test := dataset.Synthetic(4, 6, 6, 3, 6)

	a1, b1, err := Preprocess(train, test, models.PreprocessNormalize)
	require.NoError(t, err)
	a2, b2, err := Preprocess(train, test, models.PreprocessNormalize)
	require.NoError(t, err)

	assert.True(t, mat.Equal(a1.X, a2.X))
	assert.True(t, mat.Equal(b1.X, b2.X))
}

func TestPreprocessPassThrough(t *testing.T) {
	train := dataset.Synthetic(4, 5, 5, 2, 1)
	test := dataset.Synthetic(2, 5, 5, 2, 1)

	xTrain, _, err := Preprocess(train, test, models.PreprocessPassThrough)
	require.NoError(t, err)
	assert.Equal(t, 25, xTrain.Width())
	assert.Equal(t, train.Images[1].At(4, 4), xTrain.X.At(1, 24))
}

func TestPreprocessShapeMismatch(t *testing.T) {
	train := dataset.Synthetic(3, 4, 4, 2, 1)
	train.Images[2] = dataset.NewImage(5, 5)
	test := dataset.Synthetic(2, 4, 4, 2, 1)

	_, _, err := Preprocess(train, test, models.PreprocessNormalize)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = Preprocess(test, test, models.PreprocessMode("filter_avg"))
	assert.Error(t, err)

	// both splits are consistent on their own but differ from each other
	_, _, err = Preprocess(test, dataset.Synthetic(2, 6, 6, 2, 1), models.PreprocessNormalize)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestModeForPrefix(t *testing.T) {
	for _, p := range []string{"original", "filter_avg", "filter_undersample", "filter_oversample"} {
		assert.Equal(t, models.PreprocessNormalize, ModeForPrefix(p), p)
	}
	assert.Equal(t, models.PreprocessPassThrough, ModeForPrefix("augmented"))
}

func TestBuildModelArchitecture(t *testing.T) {
	net, err := BuildModel(ModelConfig{InputSize: 784})
	require.NoError(t, err)
	require.Len(t, net.Layers, 2)

	in, out := net.Layers[0].Dims()
	assert.Equal(t, 784, in)
	assert.Equal(t, 128, out)
	assert.Equal(t, ActivationReLU, net.Layers[0].Activation)

	in, out = net.Layers[1].Dims()
	assert.Equal(t, 128, in)
	assert.Equal(t, 10, out)
	assert.Equal(t, ActivationSoftmax, net.Layers[1].Activation)

	_, err = BuildModel(ModelConfig{InputSize: 0})
	assert.Error(t, err)
}

func TestProbabilitiesSumToOne(t *testing.T) {
	for _, logits := range []bool{false, true} {
		net, err := BuildModel(ModelConfig{InputSize: 12, HiddenUnits: 8, Classes: 4, Seed: 3, Logits: logits})
		require.NoError(t, err)

		x := mat.NewDense(5, 12, nil)
		for i := 0; i < 5; i++ {
			for j := 0; j < 12; j++ {
				x.Set(i, j, float64((i+1)*(j+2)%7)/7)
			}
		}
		probs, err := net.Probabilities(x)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			sum := 0.0
			for _, p := range probs.RawRowView(i) {
				assert.True(t, p >= 0 && p <= 1)
				sum += p
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		}
	}
}

func TestForwardInputSize(t *testing.T) {
	net, err := BuildModel(ModelConfig{InputSize: 10})
	require.NoError(t, err)
	_, err = net.Forward(mat.NewDense(2, 9, nil))
	assert.ErrorIs(t, err, ErrInputSize)
}

// TestGradients compares backprop against central differences on a tiny network
func TestGradients(t *testing.T) {
	for _, logits := range []bool{false, true} {
		net, err := BuildModel(ModelConfig{InputSize: 5, HiddenUnits: 4, Classes: 3, Seed: 11, Logits: logits})
		require.NoError(t, err)

		x := mat.NewDense(4, 5, []float64{
			0.1, 0.5, 0.9, 0.3, 0.7,
			0.8, 0.2, 0.4, 0.6, 0.0,
			0.3, 0.3, 0.1, 0.9, 0.5,
			0.6, 0.7, 0.2, 0.1, 0.4,
		})
		y := []int{0, 2, 1, 2}

		net.backprop(x, y)
		lossAt := func() float64 {
			probs, err := net.Probabilities(x)
			require.NoError(t, err)
			l, _ := crossEntropy(probs, y)
			return l
		}

		const h = 1e-6
		for li, l := range net.Layers {
			w := l.W.RawMatrix().Data
			for _, j := range []int{0, 3, len(w) - 1} {
				orig := w[j]
				w[j] = orig + h
				plus := lossAt()
				w[j] = orig - h
				minus := lossAt()
				w[j] = orig
				numeric := (plus - minus) / (2 * h)
				assert.InDelta(t, numeric, l.gradW.RawMatrix().Data[j], 1e-5, "layer %d weight %d", li, j)
			}
			for j := range l.B {
				orig := l.B[j]
				l.B[j] = orig + h
				plus := lossAt()
				l.B[j] = orig - h
				minus := lossAt()
				l.B[j] = orig
				numeric := (plus - minus) / (2 * h)
				assert.InDelta(t, numeric, l.gradB[j], 1e-5, "layer %d bias %d", li, j)
			}
		}
	}
}

func TestSplitTail(t *testing.T) {
	x := mat.NewDense(10, 2, nil)
	y := make([]int, 10)
	for i := range y {
		x.Set(i, 0, float64(i))
		y[i] = i % 3
	}
	train, val, err := splitTail(&Features{X: x, Y: y}, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, val.Len())
	assert.Equal(t, 8.0, val.X.At(0, 0))
	assert.Equal(t, 9.0, val.X.At(1, 0))

	// one row cannot feed both sides
	one := &Features{X: mat.NewDense(1, 2, nil), Y: []int{0}}
	_, _, err = splitTail(one, 0.2)
	assert.ErrorIs(t, err, ErrValidationSplit)

	// 1-1e-17 rounds to 1, so every row stays on the training side
	_, _, err = splitTail(&Features{X: x, Y: y}, 1e-17)
	assert.ErrorIs(t, err, ErrValidationSplit)

	net, err := BuildModel(ModelConfig{InputSize: 2, Classes: 3})
	require.NoError(t, err)
	_, err = Fit(context.Background(), net, one, FitOptions{Epochs: 1, BatchSize: 32, ValidationSplit: 0.2})
	assert.ErrorIs(t, err, ErrValidationSplit)
}

func smallSplits(t *testing.T) (*Features, *Features) {
	t.Helper()
	train := dataset.Synthetic(200, 10, 10, 5, 21)
	test := dataset.Synthetic(50, 10, 10, 5, 22)
	xTrain, xTest, err := Preprocess(train, test, models.PreprocessNormalize)
	require.NoError(t, err)
	return xTrain, xTest
}

func TestFitLearnsSeparableData(t *testing.T) {
	xTrain, xTest := smallSplits(t)
	net, err := BuildModel(ModelConfig{InputSize: xTrain.Width(), HiddenUnits: 32, Classes: 5, LearningRate: 0.01, Seed: 1})
	require.NoError(t, err)

	history, err := Fit(context.Background(), net, xTrain, FitOptions{
		Epochs:          15,
		BatchSize:       16,
		ValidationSplit: 0.2,
		Shuffle:         true,
		Seed:            1,
	})
	require.NoError(t, err)
	require.Len(t, history.Records, 15)
	assert.True(t, history.HasValidation)

	first, last := history.Records[0], history.Records[14]
	assert.Less(t, last.Loss, first.Loss)
	for _, r := range history.Records {
		assert.False(t, math.IsNaN(r.Loss) || math.IsNaN(r.ValidationLoss))
	}

	_, acc, err := Evaluate(net, xTest)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.8)

	preds, err := PredictClasses(net, xTest.X)
	require.NoError(t, err)
	assert.Len(t, preds, xTest.Len())
}

func TestFitDeterministic(t *testing.T) {
	xTrain, _ := smallSplits(t)
	run := func() []EpochRecord {
		net, err := BuildModel(ModelConfig{InputSize: xTrain.Width(), HiddenUnits: 8, Classes: 5, Seed: 4})
		require.NoError(t, err)
		h, err := Fit(context.Background(), net, xTrain, FitOptions{Epochs: 3, BatchSize: 32, ValidationSplit: 0.2, Shuffle: true, Seed: 9})
		require.NoError(t, err)
		return h.Records
	}
	assert.Equal(t, run(), run())
}

func TestFitErrors(t *testing.T) {
	xTrain, _ := smallSplits(t)

	net, err := BuildModel(ModelConfig{InputSize: 99, Classes: 5})
	require.NoError(t, err)
	_, err = Fit(context.Background(), net, xTrain, FitOptions{Epochs: 1})
	assert.ErrorIs(t, err, ErrInputSize)

	net, err = BuildModel(ModelConfig{InputSize: xTrain.Width(), Classes: 3})
	require.NoError(t, err)
	_, err = Fit(context.Background(), net, xTrain, FitOptions{Epochs: 1})
	assert.Error(t, err, "labels 3 and 4 are outside three classes")

	net, err = BuildModel(ModelConfig{InputSize: xTrain.Width(), Classes: 5})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Fit(ctx, net, xTrain, FitOptions{Epochs: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNeuralNetworkTrainer(t *testing.T) {
	xTrain, xTest := smallSplits(t)
	data := &TrainingData{Train: xTrain, Test: xTest}

	var trainer Trainer = NewNeuralNetworkTrainer(models.VariantAlternate, nil)
	_, err := trainer.Validate(data)
	assert.Error(t, err, "validate before train")

	cfg := models.DefaultTrainingConfig(models.VariantAlternate)
	cfg.Classes = 5
	cfg.HiddenUnits = 16
	result, err := trainer.Train(context.Background(), data, cfg)
	require.NoError(t, err)
	assert.True(t, result.Model.Logits)
	assert.Len(t, result.History.Records, 6)
	assert.True(t, result.History.HasValidation)
	assert.Equal(t, 6, result.TrainingMetrics.Epoch)
	assert.Len(t, result.TrainingMetrics.LearningCurve, 6)

	val, err := trainer.Validate(data)
	require.NoError(t, err)
	assert.Len(t, val.Predictions, xTest.Len())
	assert.True(t, val.Accuracy >= 0 && val.Accuracy <= 1)
}

func TestTrainerBuildThenFit(t *testing.T) {
	xTrain, xTest := smallSplits(t)
	data := &TrainingData{Train: xTrain, Test: xTest}

	trainer := NewNeuralNetworkTrainer(models.VariantPrimary, nil)
	cfg := models.DefaultTrainingConfig(models.VariantPrimary)
	cfg.Classes = 5
	cfg.HiddenUnits = 8
	cfg.Epochs = 2

	_, err := trainer.FitModel(context.Background(), data, cfg)
	assert.Error(t, err, "fit before build")

	net, err := trainer.Build(xTrain.Width(), cfg)
	require.NoError(t, err)
	assert.Same(t, net, trainer.Model())
	assert.False(t, net.Logits)

	result, err := trainer.FitModel(context.Background(), data, cfg)
	require.NoError(t, err)
	assert.Same(t, net, result.Model)
	assert.Len(t, result.History.Records, 2)
	assert.True(t, result.History.HasValidation)

	bad := *cfg
	bad.Epochs = 0
	_, err = trainer.Build(xTrain.Width(), &bad)
	assert.Error(t, err)
}
