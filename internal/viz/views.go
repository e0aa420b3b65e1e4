package viz

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg/vgimg"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/metrics"
	"github.com/chinacui/medicalzoo/internal/volume"
)

var (
	// ErrShapeMismatch reports prediction and ground truth slices of
	// different sizes.
	ErrShapeMismatch = errors.New("viz: prediction and ground truth shapes differ")

	// ErrDimension reports an array of the wrong rank.
	ErrDimension = errors.New("viz: unexpected number of dimensions")
)

// SlicePair is one median plane of the prediction next to the same plane of
// the ground truth.
type SlicePair struct {
	Pred  volume.Slice
	Truth volume.Slice
}

// MidSliceViews collapses a (B,C,D,H,W) prediction to remapped labels and
// cuts the median plane along each spatial axis from batch item 0 of both the
// prediction and the (B,D,H,W) ground truth.
func MidSliceViews(pred, truth *tensor.Dense) ([3]SlicePair, error) {
	var views [3]SlicePair
	if pred.Dims() != 5 {
		return views, errors.Wrapf(ErrDimension, "prediction must be (B,C,D,H,W), got %v", pred.Shape())
	}
	if truth.Dims() != 4 {
		return views, errors.Wrapf(ErrDimension, "ground truth must be (B,D,H,W), got %v", truth.Shape())
	}
	labels, err := volume.ArgmaxClasses(pred)
	if err != nil {
		return views, err
	}
	predLabels, err := volume.Ints(labels)
	if err != nil {
		return views, err
	}
	truthLabels, err := volume.Ints(truth)
	if err != nil {
		return views, err
	}

	pd, _ := volume.Spatial(pred)
	td, _ := volume.Spatial(truth)
	predMid, err := volume.MidSlices(RemapLabels(predLabels[:pd[0]*pd[1]*pd[2]]), pd)
	if err != nil {
		return views, err
	}
	truthMid, err := volume.MidSlices(truthLabels[:td[0]*td[1]*td[2]], td)
	if err != nil {
		return views, err
	}
	for i := range views {
		if !predMid[i].SameShape(truthMid[i]) {
			return views, errors.Wrapf(ErrShapeMismatch, "view %d: prediction %dx%d, ground truth %dx%d",
				i+1, predMid[i].Rows, predMid[i].Cols, truthMid[i].Rows, truthMid[i].Cols)
		}
		views[i] = SlicePair{Pred: predMid[i], Truth: truthMid[i]}
	}
	return views, nil
}

// RenderViews lays the three pairs out as a 3 row by 2 column gray figure,
// prediction on the left.
func RenderViews(views [3]SlicePair) (*vgimg.Canvas, error) {
	plots := make([][]*plot.Plot, len(views))
	for i, v := range views {
		plots[i] = []*plot.Plot{grayPlot("", v.Pred, false), grayPlot("", v.Truth, false)}
	}
	return figure{plots: plots, width: viewsSize, height: viewsSize}.render()
}

// CreateMidSliceViews renders the median-slice comparison of pred and truth
// to path and pushes the figure plus each prediction plane to w at step epoch.
func CreateMidSliceViews(pred, truth *tensor.Dense, epoch int, w metrics.Writer, path string) error {
	views, err := MidSliceViews(pred, truth)
	if err != nil {
		return err
	}
	fig, err := RenderViews(views)
	if err != nil {
		return err
	}
	if err := savePNG(path, fig); err != nil {
		return err
	}
	if w == nil {
		w = metrics.Discard
	}
	if err := w.AddFigure("Images/all_2d_views", fig.Image(), epoch); err != nil {
		return errors.Wrap(err, "add figure")
	}
	for i, v := range views {
		tag := fmt.Sprintf("Images/pred_view_%d", i+1)
		if err := w.AddImage(tag, rawGray(v.Pred), epoch, metrics.DataFormatHW); err != nil {
			return errors.Wrapf(err, "add image %s", tag)
		}
	}
	return nil
}
