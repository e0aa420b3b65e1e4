package viz

import (
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gorgonia.org/tensor"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// midSliceTitle heads the ShowMidSlice figure.
const midSliceTitle = "Center slices for epi_img_numpy image"

// ShowMidSlice renders the center planes of a 3D array along each axis,
// intensities stretched to 0..255, as a titled PNG row written to w.
func ShowMidSlice(w io.Writer, vol *tensor.Dense) error {
	if vol.Dims() != 3 {
		return errors.Wrapf(ErrDimension, "please provide a 3d image, got %v", vol.Shape())
	}
	data, err := volume.Float32s(vol)
	if err != nil {
		return err
	}
	shape := vol.Shape()
	dims := [3]int{shape[0], shape[1], shape[2]}
	levels := quantize(data)

	var slices []volume.Slice
	for axis := 0; axis < 3; axis++ {
		s, err := volume.AxisSlice(levels, dims, axis, (dims[axis]-1)/2)
		if err != nil {
			return err
		}
		slices = append(slices, s)
	}
	return showSlices(w, midSliceTitle, slices)
}

// ShowSlices renders slices side by side, each transposed and drawn with its
// origin in the lower left, as a PNG written to w.
func ShowSlices(w io.Writer, slices []volume.Slice) error {
	return showSlices(w, "", slices)
}

func showSlices(w io.Writer, title string, slices []volume.Slice) error {
	if len(slices) == 0 {
		return errors.New("viz: no slices to show")
	}
	row := make([]*plot.Plot, len(slices))
	for i, s := range slices {
		if s.Rows == 0 || s.Cols == 0 {
			return errors.Wrapf(volume.ErrShape, "slice %d is %dx%d", i, s.Rows, s.Cols)
		}
		row[i] = grayPlot("", s.Transpose(), true)
	}
	fig, err := figure{title: title, plots: [][]*plot.Plot{row}, width: figureWidth, height: figureHeight}.render()
	if err != nil {
		return err
	}
	return writePNG(w, fig)
}

// quantize maps data linearly onto 0..255.
func quantize(data []float32) []int {
	out := make([]int, len(data))
	if len(data) == 0 {
		return out
	}
	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return out
	}
	scale := 255 / float64(hi-lo)
	for i, v := range data {
		out[i] = int(float64(v-lo) * scale)
	}
	return out
}
