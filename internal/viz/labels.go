package viz

// LabelPalette maps the class indices air, csf, gm and wm to the gray levels
// used when previewing iSeg-2017 style segmentations.
var LabelPalette = [4]int{0, 10, 150, 250}

// RemapLabels returns a fresh copy of labels with every class index replaced
// by its palette gray level. Values outside the palette are copied unchanged.
// The input is never modified, so remapping already remapped data is not
// meaningful.
func RemapLabels(labels []int) []int {
	out := make([]int, len(labels))
	for i, v := range labels {
		if v >= 0 && v < len(LabelPalette) {
			out[i] = LabelPalette[v]
			continue
		}
		out[i] = v
	}
	return out
}
