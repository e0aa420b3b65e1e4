package metrics

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Field numbers of tensorflow.Event, Summary.Value and Summary.Image.
const (
	eventWallTime    protowire.Number = 1
	eventStep        protowire.Number = 2
	eventFileVersion protowire.Number = 3
	eventSummary     protowire.Number = 5

	summaryValue protowire.Number = 1

	valueTag         protowire.Number = 1
	valueSimpleValue protowire.Number = 2
	valueImage       protowire.Number = 4

	imageHeight     protowire.Number = 1
	imageWidth      protowire.Number = 2
	imageColorspace protowire.Number = 3
	imageEncoded    protowire.Number = 4
)

const fileVersion = "brain.Event:2"

// EventWriter appends records to a TensorBoard event file.
type EventWriter struct {
	f    *os.File
	w    *bufio.Writer
	path string
	now  func() time.Time
}

// NewEventWriter creates dir if needed and opens a fresh event file in it.
func NewEventWriter(dir string) (*EventWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create event dir")
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("events.out.tfevents.%d.%s", now.Unix(), host))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open event file")
	}
	ew := &EventWriter{f: f, w: bufio.NewWriter(f), path: path, now: time.Now}
	var ev []byte
	ev = ew.appendHeader(ev, 0)
	ev = protowire.AppendTag(ev, eventFileVersion, protowire.BytesType)
	ev = protowire.AppendString(ev, fileVersion)
	if err := ew.writeRecord(ev); err != nil {
		f.Close()
		return nil, err
	}
	return ew, nil
}

// Path is the event file location.
func (ew *EventWriter) Path() string {
	return ew.path
}

// AddScalar implements Writer.
func (ew *EventWriter) AddScalar(tag string, value float64, step int) error {
	var v []byte
	v = protowire.AppendTag(v, valueTag, protowire.BytesType)
	v = protowire.AppendString(v, tag)
	v = protowire.AppendTag(v, valueSimpleValue, protowire.Fixed32Type)
	v = protowire.AppendFixed32(v, math.Float32bits(float32(value)))
	return ew.writeSummary(v, step)
}

// AddImage implements Writer. Images are stored PNG encoded; HW images are
// written as single-channel grayscale.
func (ew *EventWriter) AddImage(tag string, img image.Image, step int, dataFormats string) error {
	if dataFormats == DataFormatHW {
		img = toGray(img)
	}
	return ew.addEncodedImage(tag, img, step)
}

// AddFigure implements Writer.
func (ew *EventWriter) AddFigure(tag string, figure image.Image, step int) error {
	return ew.addEncodedImage(tag, figure, step)
}

// Flush writes buffered records to disk.
func (ew *EventWriter) Flush() error {
	return ew.w.Flush()
}

// Close flushes and closes the event file.
func (ew *EventWriter) Close() error {
	if err := ew.w.Flush(); err != nil {
		ew.f.Close()
		return err
	}
	return ew.f.Close()
}

func (ew *EventWriter) addEncodedImage(tag string, img image.Image, step int) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return errors.Wrapf(err, "encode image %s", tag)
	}
	b := img.Bounds()
	colorspace := uint64(4)
	if _, ok := img.(*image.Gray); ok {
		colorspace = 1
	}
	var im []byte
	im = protowire.AppendTag(im, imageHeight, protowire.VarintType)
	im = protowire.AppendVarint(im, uint64(b.Dy()))
	im = protowire.AppendTag(im, imageWidth, protowire.VarintType)
	im = protowire.AppendVarint(im, uint64(b.Dx()))
	im = protowire.AppendTag(im, imageColorspace, protowire.VarintType)
	im = protowire.AppendVarint(im, colorspace)
	im = protowire.AppendTag(im, imageEncoded, protowire.BytesType)
	im = protowire.AppendBytes(im, buf.Bytes())

	var v []byte
	v = protowire.AppendTag(v, valueTag, protowire.BytesType)
	v = protowire.AppendString(v, tag)
	v = protowire.AppendTag(v, valueImage, protowire.BytesType)
	v = protowire.AppendBytes(v, im)
	return ew.writeSummary(v, step)
}

func (ew *EventWriter) appendHeader(ev []byte, step int) []byte {
	wall := float64(ew.now().UnixNano()) / 1e9
	ev = protowire.AppendTag(ev, eventWallTime, protowire.Fixed64Type)
	ev = protowire.AppendFixed64(ev, math.Float64bits(wall))
	ev = protowire.AppendTag(ev, eventStep, protowire.VarintType)
	ev = protowire.AppendVarint(ev, uint64(int64(step)))
	return ev
}

func (ew *EventWriter) writeSummary(value []byte, step int) error {
	var summary []byte
	summary = protowire.AppendTag(summary, summaryValue, protowire.BytesType)
	summary = protowire.AppendBytes(summary, value)

	ev := ew.appendHeader(nil, step)
	ev = protowire.AppendTag(ev, eventSummary, protowire.BytesType)
	ev = protowire.AppendBytes(ev, summary)
	return ew.writeRecord(ev)
}

// writeRecord frames data as a TFRecord: length, masked crc of length,
// payload, masked crc of payload.
func (ew *EventWriter) writeRecord(data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))
	for _, chunk := range [][]byte{header[:], data, footer[:]} {
		if _, err := ew.w.Write(chunk); err != nil {
			return errors.Wrap(err, "write event record")
		}
	}
	return nil
}

func maskedCRC(b []byte) uint32 {
	c := crc32.Checksum(b, crcTable)
	return ((c >> 15) | (c << 17)) + 0xa282ead8
}

func toGray(img image.Image) image.Image {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, img.At(x, y))
		}
	}
	return g
}

// Event is a decoded event record.
type Event struct {
	WallTime    float64
	Step        int64
	FileVersion string
	Values      []Value
}

// Value is a decoded summary value. Image holds the encoded PNG when the
// value is an image.
type Value struct {
	Tag         string
	SimpleValue float32
	Image       []byte
	Width       int
	Height      int
	Colorspace  int
}

// ReadEvents decodes every record of an event file.
func ReadEvents(r io.Reader) ([]Event, error) {
	br := bufio.NewReader(r)
	var events []Event
	for {
		var header [12]byte
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return nil, errors.Wrap(err, "read record header")
		}
		if maskedCRC(header[:8]) != binary.LittleEndian.Uint32(header[8:]) {
			return nil, errors.New("event record length checksum mismatch")
		}
		data := make([]byte, binary.LittleEndian.Uint64(header[:8]))
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, errors.Wrap(err, "read record payload")
		}
		var footer [4]byte
		if _, err := io.ReadFull(br, footer[:]); err != nil {
			return nil, errors.Wrap(err, "read record footer")
		}
		if maskedCRC(data) != binary.LittleEndian.Uint32(footer[:]) {
			return nil, errors.New("event record payload checksum mismatch")
		}
		ev, err := decodeEvent(data)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
}

func decodeEvent(b []byte) (Event, error) {
	var ev Event
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch {
		case num == eventWallTime && typ == protowire.Fixed64Type:
			v, _ := protowire.ConsumeFixed64(field)
			ev.WallTime = math.Float64frombits(v)
		case num == eventStep && typ == protowire.VarintType:
			v, _ := protowire.ConsumeVarint(field)
			ev.Step = int64(v)
		case num == eventFileVersion && typ == protowire.BytesType:
			v, _ := protowire.ConsumeBytes(field)
			ev.FileVersion = string(v)
		case num == eventSummary && typ == protowire.BytesType:
			summary, _ := protowire.ConsumeBytes(field)
			return walkFields(summary, func(num protowire.Number, typ protowire.Type, field []byte) error {
				if num != summaryValue || typ != protowire.BytesType {
					return nil
				}
				raw, _ := protowire.ConsumeBytes(field)
				val, err := decodeValue(raw)
				if err != nil {
					return err
				}
				ev.Values = append(ev.Values, val)
				return nil
			})
		}
		return nil
	})
	return ev, err
}

func decodeValue(b []byte) (Value, error) {
	var val Value
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, field []byte) error {
		switch {
		case num == valueTag && typ == protowire.BytesType:
			v, _ := protowire.ConsumeBytes(field)
			val.Tag = string(v)
		case num == valueSimpleValue && typ == protowire.Fixed32Type:
			v, _ := protowire.ConsumeFixed32(field)
			val.SimpleValue = math.Float32frombits(v)
		case num == valueImage && typ == protowire.BytesType:
			im, _ := protowire.ConsumeBytes(field)
			return walkFields(im, func(num protowire.Number, typ protowire.Type, field []byte) error {
				switch num {
				case imageHeight:
					v, _ := protowire.ConsumeVarint(field)
					val.Height = int(v)
				case imageWidth:
					v, _ := protowire.ConsumeVarint(field)
					val.Width = int(v)
				case imageColorspace:
					v, _ := protowire.ConsumeVarint(field)
					val.Colorspace = int(v)
				case imageEncoded:
					v, _ := protowire.ConsumeBytes(field)
					val.Image = append([]byte(nil), v...)
				}
				return nil
			})
		}
		return nil
	})
	return val, err
}

// walkFields calls fn with each field's number, wire type and value bytes.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "decode tag")
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return errors.Wrap(protowire.ParseError(m), "decode field")
		}
		if err := fn(num, typ, b[:m]); err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}
