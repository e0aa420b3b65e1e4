package metrics

import "image"

// DataFormatHW tags a single-channel image laid out height x width.
const DataFormatHW = "HW"

// Writer receives scalar and image records keyed by tag and step.
type Writer interface {
	AddScalar(tag string, value float64, step int) error
	AddImage(tag string, img image.Image, step int, dataFormats string) error
	AddFigure(tag string, figure image.Image, step int) error
}

// Discard is a Writer that drops every record.
var Discard Writer = discard{}

type discard struct{}

func (discard) AddScalar(string, float64, int) error { return nil }
func (discard) AddImage(string, image.Image, int, string) error { return nil }
func (discard) AddFigure(string, image.Image, int) error { return nil }
