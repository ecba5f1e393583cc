package training

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/mimir-aip/digitclf/pkg/models"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FitOptions controls a training loop
type FitOptions struct {
	Epochs    int
	BatchSize int
	// ValidationSplit holds out this fraction of rows from the end of the
	// training data, before any shuffling
	ValidationSplit float64
	// Validation is used instead of ValidationSplit when set
	Validation *Features
	Shuffle    bool
	Seed       int64
	Logger     *slog.Logger
}

// FitOptionsFor builds loop options from a training config
func FitOptionsFor(cfg *models.TrainingConfig) FitOptions {
	return FitOptions{
		Epochs:          cfg.Epochs,
		BatchSize:       cfg.BatchSize,
		ValidationSplit: cfg.ValidationSplit,
		Shuffle:         cfg.Shuffle,
		Seed:            cfg.RandomSeed,
	}
}

// EpochRecord is one row of training history
type EpochRecord struct {
	Epoch              int
	Loss               float64
	Accuracy           float64
	ValidationLoss     float64
	ValidationAccuracy float64
}

// History is the per-epoch record of a Fit call
type History struct {
	Records       []EpochRecord
	HasValidation bool
}

// Losses returns the training and validation loss series
func (h *History) Losses() (train, validation []float64) {
	train = make([]float64, len(h.Records))
	validation = make([]float64, len(h.Records))
	for i, r := range h.Records {
		train[i] = r.Loss
		validation[i] = r.ValidationLoss
	}
	return train, validation
}

// Metrics summarises the history as the last epoch plus the full learning curve
func (h *History) Metrics() *models.TrainingMetrics {
	tm := &models.TrainingMetrics{}
	for _, r := range h.Records {
		tm.LearningCurve = append(tm.LearningCurve, models.LearningCurvePoint{
			Epoch:              r.Epoch,
			TrainingLoss:       r.Loss,
			ValidationLoss:     r.ValidationLoss,
			TrainingAccuracy:   r.Accuracy,
			ValidationAccuracy: r.ValidationAccuracy,
		})
	}
	if len(h.Records) > 0 {
		last := h.Records[len(h.Records)-1]
		tm.Epoch = last.Epoch
		tm.TrainingLoss = last.Loss
		tm.ValidationLoss = last.ValidationLoss
		tm.TrainingAccuracy = last.Accuracy
		tm.ValidationAccuracy = last.ValidationAccuracy
	}
	return tm
}

// Fit trains net in place for a fixed number of epochs. The context is
// checked between batches.
func Fit(ctx context.Context, net *Network, data *Features, opts FitOptions) (*History, error) {
	if opts.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", opts.Epochs)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if err := checkFeatures(net, data); err != nil {
		return nil, fmt.Errorf("invalid training data: %w", err)
	}

	train, validation := data, opts.Validation
	if validation == nil && opts.ValidationSplit > 0 {
		var err error
		if train, validation, err = splitTail(data, opts.ValidationSplit); err != nil {
			return nil, err
		}
	}
	if validation != nil {
		if err := checkFeatures(net, validation); err != nil {
			return nil, fmt.Errorf("invalid validation data: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := make([]int, train.Len())
	for i := range order {
		order[i] = i
	}

	history := &History{HasValidation: validation != nil && validation.Len() > 0}
	width := train.Width()
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		if opts.Shuffle {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var lossSum float64
		correct := 0
		for start := 0; start < len(order); start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return history, err
			}
			end := start + opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			bx, by := gather(train, order[start:end], width)
			loss, hits := net.trainStep(bx, by)
			lossSum += loss * float64(len(by))
			correct += hits
		}

		rec := EpochRecord{
			Epoch:    epoch,
			Loss:     lossSum / float64(train.Len()),
			Accuracy: float64(correct) / float64(train.Len()),
		}
		if history.HasValidation {
			vl, va, err := Evaluate(net, validation)
			if err != nil {
				return history, fmt.Errorf("failed to validate epoch %d: %w", epoch, err)
			}
			rec.ValidationLoss, rec.ValidationAccuracy = vl, va
		}
		history.Records = append(history.Records, rec)

		logger.Info("epoch finished",
			"epoch", epoch,
			"epochs", opts.Epochs,
			"loss", rec.Loss,
			"accuracy", rec.Accuracy,
			"val_loss", rec.ValidationLoss,
			"val_accuracy", rec.ValidationAccuracy)
	}
	return history, nil
}

// Evaluate returns the mean loss and accuracy of net over data
func Evaluate(net *Network, data *Features) (loss, accuracy float64, err error) {
	if err := checkFeatures(net, data); err != nil {
		return 0, 0, err
	}
	probs, err := net.Probabilities(data.X)
	if err != nil {
		return 0, 0, err
	}
	loss, correct := crossEntropy(probs, data.Y)
	return loss, float64(correct) / float64(data.Len()), nil
}

// Predict returns one probability row per sample
func Predict(net *Network, x *mat.Dense) (*mat.Dense, error) {
	return net.Probabilities(x)
}

// PredictClasses returns the argmax class of each sample
func PredictClasses(net *Network, x *mat.Dense) ([]int, error) {
	probs, err := Predict(net, x)
	if err != nil {
		return nil, err
	}
	rows, _ := probs.Dims()
	classes := make([]int, rows)
	for i := range classes {
		classes[i] = floats.MaxIdx(probs.RawRowView(i))
	}
	return classes, nil
}

func checkFeatures(net *Network, f *Features) error {
	if f == nil || f.X == nil || f.Len() == 0 {
		return fmt.Errorf("no samples")
	}
	rows, cols := f.X.Dims()
	if rows != len(f.Y) {
		return fmt.Errorf("%d feature rows but %d labels", rows, len(f.Y))
	}
	if cols != net.InputSize {
		return fmt.Errorf("%w: got %d, want %d", ErrInputSize, cols, net.InputSize)
	}
	for i, l := range f.Y {
		if l < 0 || l >= net.Classes {
			return fmt.Errorf("label %d at row %d outside [0,%d)", l, i, net.Classes)
		}
	}
	return nil
}

// splitTail holds out the last fraction of rows. The split is order-based,
// it does not look at labels. Both sides must keep at least one row.
func splitTail(f *Features, fraction float64) (*Features, *Features, error) {
	n := f.Len()
	at := int(float64(n) * (1 - fraction))
	if at <= 0 || at >= n {
		return nil, nil, fmt.Errorf("%w: %d samples with validation split %g leaves %d for training and %d for validation",
			ErrValidationSplit, n, fraction, max(at, 0), n-max(at, 0))
	}
	_, c := f.X.Dims()
	train := &Features{X: f.X.Slice(0, at, 0, c).(*mat.Dense), Y: f.Y[:at]}
	val := &Features{X: f.X.Slice(at, n, 0, c).(*mat.Dense), Y: f.Y[at:]}
	return train, val, nil
}

func gather(f *Features, idx []int, width int) (*mat.Dense, []int) {
	x := mat.NewDense(len(idx), width, nil)
	y := make([]int, len(idx))
	for i, j := range idx {
		copy(x.RawRowView(i), f.X.RawRowView(j))
		y[i] = f.Y[j]
	}
	return x, y
}
