package viz

import (
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// PlotSegm saves one PNG per channel of a (C,D,H,W) prediction showing its
// middle depth plane next to the matching ground truth plane. A (D,H,W)
// ground truth is shared by every channel. Both must share (D,H,W). It
// returns the written paths.
func PlotSegm(segm, groundTruth *tensor.Dense, plotsDir string) ([]string, error) {
	if segm.Dims() != 4 {
		return nil, errors.Wrapf(ErrDimension, "segmentation must be (C,D,H,W), got %v", segm.Shape())
	}
	channels := segm.Shape()[0]
	segDims, _ := volume.Spatial(segm)
	seg, err := volume.Ints(segm)
	if err != nil {
		return nil, err
	}

	gt, err := volume.Ints(groundTruth)
	if err != nil {
		return nil, err
	}
	gtChannels := 0
	switch groundTruth.Dims() {
	case 3:
		gtChannels = channels
	case 4:
		gtChannels = groundTruth.Shape()[0]
	default:
		return nil, errors.Wrapf(ErrDimension, "ground truth must be (D,H,W) or (C,D,H,W), got %v", groundTruth.Shape())
	}
	gtDims, _ := volume.Spatial(groundTruth)
	if gtDims != segDims {
		return nil, errors.Wrapf(ErrDimension, "ground truth volume %v does not match segmentation %v", gtDims, segDims)
	}
	gtSize := gtDims[0] * gtDims[1] * gtDims[2]
	broadcast := groundTruth.Dims() == 3

	n := channels
	if gtChannels < n {
		n = gtChannels
	}
	segSize := segDims[0] * segDims[1] * segDims[2]
	midZ := segDims[0] / 2

	paths := make([]string, 0, n)
	for c := 0; c < n; c++ {
		predPlane, err := volume.AxisSlice(seg[c*segSize:(c+1)*segSize], segDims, 0, midZ)
		if err != nil {
			return paths, err
		}
		gtData := gt
		if !broadcast {
			gtData = gt[c*gtSize : (c+1)*gtSize]
		}
		gtPlane, err := volume.AxisSlice(gtData, gtDims, 0, midZ)
		if err != nil {
			return paths, err
		}

		fig, err := figure{
			plots: [][]*plot.Plot{{
				labelPlot("Predicted segmentation", predPlane),
				labelPlot("Ground truth segmentation", gtPlane),
			}},
			width:  figureWidth,
			height: figureHeight,
		}.render()
		if err != nil {
			return paths, err
		}
		path := filepath.Join(plotsDir, "segm_"+uuid.New().String()[:8]+".png")
		if err := savePNG(path, fig); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
