package metrics

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEventWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ew, err := NewEventWriter(dir)
	if err != nil {
		t.Fatalf("NewEventWriter: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(ew.Path()), "events.out.tfevents.") {
		t.Fatalf("unexpected event file name %s", ew.Path())
	}

	if err := ew.AddScalar("Train/dice_loss", 0.5, 7); err != nil {
		t.Fatalf("AddScalar: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	if err := ew.AddImage("Images/pred_view_1", img, 3, DataFormatHW); err != nil {
		t.Fatalf("AddImage: %v", err)
	}
	if err := ew.AddFigure("Images/all_2d_views", img, 3); err != nil {
		t.Fatalf("AddFigure: %v", err)
	}
	if err := ew.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(ew.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	events, err := ReadEvents(f)
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].FileVersion != fileVersion {
		t.Fatalf("first event should carry the file version, got %+v", events[0])
	}

	scalar := events[1]
	if scalar.Step != 7 || len(scalar.Values) != 1 {
		t.Fatalf("unexpected scalar event %+v", scalar)
	}
	if scalar.Values[0].Tag != "Train/dice_loss" || scalar.Values[0].SimpleValue != 0.5 {
		t.Fatalf("unexpected scalar value %+v", scalar.Values[0])
	}

	hw := events[2].Values[0]
	if hw.Tag != "Images/pred_view_1" || hw.Colorspace != 1 || hw.Width != 3 || hw.Height != 2 {
		t.Fatalf("unexpected image value %+v", hw)
	}
	decoded, err := png.Decode(bytes.NewReader(hw.Image))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if decoded.Bounds().Dx() != 3 || decoded.Bounds().Dy() != 2 {
		t.Fatalf("decoded image bounds %v", decoded.Bounds())
	}

	fig := events[3].Values[0]
	if fig.Tag != "Images/all_2d_views" || fig.Colorspace != 4 || events[3].Step != 3 {
		t.Fatalf("unexpected figure event %+v", events[3])
	}
}

func TestReadEventsRejectsCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	ew, err := NewEventWriter(dir)
	if err != nil {
		t.Fatalf("NewEventWriter: %v", err)
	}
	if err := ew.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	raw, err := os.ReadFile(ew.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	if _, err := ReadEvents(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected checksum error")
	}
}
