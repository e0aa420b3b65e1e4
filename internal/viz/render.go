package viz

import (
	"image"
	"image/color"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/chinacui/medicalzoo/internal/volume"
)

// Figure sizes follow matplotlib's defaults.
const (
	figureWidth  = 6.4 * vg.Inch
	figureHeight = 4.8 * vg.Inch
	viewsSize    = 16 * vg.Inch
	titleHeight  = 0.4 * vg.Inch
)

// grayLevels is a linear black to white palette with n entries.
type grayLevels int

func (n grayLevels) Colors() []color.Color {
	out := make([]color.Color, n)
	for i := range out {
		out[i] = color.Gray{Y: uint8(i * 255 / (int(n) - 1))}
	}
	return out
}

// cyclicColors is a fixed label colormap. Label values wrap around it.
type cyclicColors []color.Color

func (p cyclicColors) Colors() []color.Color { return p }

// segmentColors is in the spirit of matplotlib's "prism".
var segmentColors = cyclicColors{
	color.RGBA{R: 255, G: 0, B: 0, A: 255},
	color.RGBA{R: 255, G: 128, B: 0, A: 255},
	color.RGBA{R: 255, G: 255, B: 0, A: 255},
	color.RGBA{R: 0, G: 200, B: 0, A: 255},
	color.RGBA{R: 0, G: 64, B: 255, A: 255},
	color.RGBA{R: 128, G: 0, B: 255, A: 255},
}

// sliceGrid exposes a volume.Slice as a plotter.GridXYZ. Grid row 0 is drawn
// at the bottom, so unless lowerOrigin is set the slice is flipped to put its
// first row on top.
type sliceGrid struct {
	s           volume.Slice
	lowerOrigin bool
	// wrap folds values modulo wrap when positive.
	wrap int
}

func (g sliceGrid) Dims() (c, r int) { return g.s.Cols, g.s.Rows }

func (g sliceGrid) Z(c, r int) float64 {
	if !g.lowerOrigin {
		r = g.s.Rows - 1 - r
	}
	v := g.s.At(r, c)
	if g.wrap > 0 {
		if v < 0 {
			v = -v
		}
		v %= g.wrap
	}
	return float64(v)
}

func (g sliceGrid) X(c int) float64 { return float64(c) }
func (g sliceGrid) Y(r int) float64 { return float64(r) }

// grayPlot draws s as a gray heat map stretched over its own value range.
func grayPlot(title string, s volume.Slice, lowerOrigin bool) *plot.Plot {
	hm := plotter.NewHeatMap(sliceGrid{s: s, lowerOrigin: lowerOrigin}, grayLevels(256))
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	return slicePlot(title, hm)
}

// labelPlot draws s with the cyclic segmentation colormap.
func labelPlot(title string, s volume.Slice) *plot.Plot {
	hm := plotter.NewHeatMap(sliceGrid{s: s, wrap: len(segmentColors)}, segmentColors)
	hm.Min, hm.Max = 0, float64(len(segmentColors)-1)
	return slicePlot(title, hm)
}

func slicePlot(title string, hm *plotter.HeatMap) *plot.Plot {
	hm.Rasterized = true
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(hm)
	return p
}

// figure is a grid of plots under an optional title.
type figure struct {
	title  string
	plots  [][]*plot.Plot
	width  vg.Length
	height vg.Length
}

// render draws f onto a white image canvas.
func (f figure) render() (*vgimg.Canvas, error) {
	if len(f.plots) == 0 || len(f.plots[0]) == 0 {
		return nil, errors.New("viz: empty figure")
	}
	img := vgimg.New(f.width, f.height)
	dc := draw.New(img)
	if f.title != "" {
		sty := draw.TextStyle{
			Color:   color.Black,
			Font:    font.From(plot.DefaultFont, vg.Points(16)),
			XAlign:  draw.XCenter,
			YAlign:  draw.YTop,
			Handler: plot.DefaultTextHandler,
		}
		dc.FillText(sty, vg.Point{X: dc.Center().X, Y: dc.Max.Y - vg.Points(6)}, f.title)
		dc = draw.Crop(dc, 0, 0, 0, -titleHeight)
	}

	tiles := draw.Tiles{
		Rows:      len(f.plots),
		Cols:      len(f.plots[0]),
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(f.plots, tiles, dc)
	for j, row := range f.plots {
		for i, p := range row {
			if p != nil {
				p.Draw(canvases[j][i])
			}
		}
	}
	return img, nil
}

func writePNG(w io.Writer, c *vgimg.Canvas) error {
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		return errors.Wrap(err, "encode png")
	}
	return nil
}

func savePNG(path string, c *vgimg.Canvas) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create png")
	}
	if err := writePNG(f, c); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// rawGray draws s with each value clamped into [0,255].
func rawGray(s volume.Slice) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, s.Cols, s.Rows))
	for r := 0; r < s.Rows; r++ {
		for c := 0; c < s.Cols; c++ {
			v := s.At(r, c)
			if v < 0 {
				v = 0
			}
			if v > 255 {
				v = 255
			}
			img.SetGray(c, r, color.Gray{Y: uint8(v)})
		}
	}
	return img
}
