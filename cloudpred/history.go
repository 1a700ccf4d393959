package cloudpred

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/ppabba101/CloudPred/pkg/errors"
)

// StageHistory is the loss curve of one learning-rate stage.
type StageHistory struct {
	LearningRate float64
	// TrainLoss and ValidLoss hold one value per epoch.
	TrainLoss []float64
	ValidLoss []float64
	// StartLoss is the validation loss of the parameters the stage began with.
	StartLoss float64
	BestLoss  float64
	// BestEpoch is 0 when no epoch improved on StartLoss.
	BestEpoch int
}

// History records every stage of RunSchedule.
type History struct {
	Stages []StageHistory
}

// FinalLoss returns the best validation loss of the last stage, or NaN if no
// stage ran.
func (h *History) FinalLoss() float64 {
	if h == nil || len(h.Stages) == 0 {
		return math.NaN()
	}
	return h.Stages[len(h.Stages)-1].BestLoss
}

// SavePlot renders the train and validation curves of all stages, epochs
// laid end to end, to path. The image format follows the file extension.
// Non-finite losses are left out of the curves.
func (h *History) SavePlot(path string) error {
	if h == nil || len(h.Stages) == 0 {
		return errors.NewValueError("History.SavePlot", "history is empty")
	}

	p := plot.New()
	p.Title.Text = "Learning-rate schedule"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"

	var train, valid plotter.XYs
	offset := 0
	for _, st := range h.Stages {
		train = appendFinite(train, offset, st.TrainLoss)
		valid = appendFinite(valid, offset, st.ValidLoss)
		offset += len(st.TrainLoss)
	}
	if len(train) == 0 && len(valid) == 0 {
		return errors.NewValueError("History.SavePlot", "no finite loss values to plot")
	}

	if err := plotutil.AddLines(p, "train", train, "valid", valid); err != nil {
		return errors.Wrap(err, "failed to add loss curves")
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %s", path)
	}
	return nil
}

func appendFinite(xys plotter.XYs, offset int, ys []float64) plotter.XYs {
	for i, y := range ys {
		if errors.IsFinite(y) {
			xys = append(xys, plotter.XY{X: float64(offset + i + 1), Y: y})
		}
	}
	return xys
}
