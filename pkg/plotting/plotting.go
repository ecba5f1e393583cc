// Package plotting renders training-loss curves and confusion matrices to image files
package plotting

import (
	"fmt"
	"image/color"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/mimir-aip/digitclf/pkg/mlmodel/evaluation"
)

const (
	lossWidth     = 6 * vg.Inch
	lossHeight    = 4 * vg.Inch
	matrixSize    = 6 * vg.Inch
	paletteLevels = 64
)

// LossCurve plots training loss per epoch, plus validation loss when present.
// The image format follows the extension of path.
func LossCurve(train, validation []float64, path string) error {
	if len(train) == 0 {
		return fmt.Errorf("no loss values to plot")
	}

	p := plot.New()
	p.Title.Text = "Model loss"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Loss"
	p.Add(plotter.NewGrid())

	lines := []interface{}{"Training loss", series(train)}
	if len(validation) == len(train) {
		lines = append(lines, "Validation loss", series(validation))
	}
	if err := plotutil.AddLinePoints(p, lines...); err != nil {
		return fmt.Errorf("failed to add loss lines: %w", err)
	}
	p.Legend.Top = true

	if err := p.Save(lossWidth, lossHeight, path); err != nil {
		return fmt.Errorf("failed to save loss plot %s: %w", path, err)
	}
	return nil
}

func series(values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	return pts
}

// matrixGrid adapts a confusion matrix to plotter.GridXYZ. Row 0 of the
// matrix is drawn at the top.
type matrixGrid struct {
	cm *evaluation.ConfusionMatrix
}

func (g matrixGrid) Dims() (c, r int) {
	n := len(g.cm.Classes)
	return n, n
}

func (g matrixGrid) Z(c, r int) float64 {
	n := len(g.cm.Classes)
	return float64(g.cm.Counts[n-1-r][c])
}

func (g matrixGrid) X(c int) float64 { return float64(c) }
func (g matrixGrid) Y(r int) float64 { return float64(r) }

// ConfusionMatrix renders cm as a heat map with the count in every cell,
// true classes on the Y axis and predicted classes on the X axis.
func ConfusionMatrix(cm *evaluation.ConfusionMatrix, classes []string, title, path string) error {
	n := len(cm.Classes)
	if n == 0 {
		return fmt.Errorf("empty confusion matrix")
	}
	if len(classes) != n {
		return fmt.Errorf("got %d class labels for a %dx%d matrix", len(classes), n, n)
	}

	grid := matrixGrid{cm: cm}
	heat := plotter.NewHeatMap(grid, palette.Heat(paletteLevels, 1))
	heat.Min = 0
	heat.Max = float64(cm.Max())
	if heat.Max == 0 {
		heat.Max = 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"
	p.Add(heat)

	cells := plotter.XYLabels{
		XYs:    make(plotter.XYs, 0, n*n),
		Labels: make([]string, 0, n*n),
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			cells.XYs = append(cells.XYs, plotter.XY{X: float64(c), Y: float64(r)})
			cells.Labels = append(cells.Labels, strconv.Itoa(int(grid.Z(c, r))))
		}
	}
	labels, err := plotter.NewLabels(cells)
	if err != nil {
		return fmt.Errorf("failed to label matrix cells: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Color = color.Black
		labels.TextStyle[i].XAlign = -0.5
		labels.TextStyle[i].YAlign = -0.5
	}
	p.Add(labels)

	xTicks := make([]plot.Tick, n)
	yTicks := make([]plot.Tick, n)
	for i := 0; i < n; i++ {
		xTicks[i] = plot.Tick{Value: float64(i), Label: classes[i]}
		yTicks[i] = plot.Tick{Value: float64(i), Label: classes[n-1-i]}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)

	if err := p.Save(matrixSize, matrixSize, path); err != nil {
		return fmt.Errorf("failed to save confusion matrix plot %s: %w", path, err)
	}
	return nil
}

// ClassLabels formats integer classes as tick labels
func ClassLabels(classes []int) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = strconv.Itoa(c)
	}
	return out
}
