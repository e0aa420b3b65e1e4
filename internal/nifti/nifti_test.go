package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/chinacui/medicalzoo/internal/volume"
)

func TestSaveWritesGzippedNifti(t *testing.T) {
	// (2,3) row-major: [[0 1 2] [3 4 5]]
	vol := volume.New([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	affine := Identity()
	affine[0][0] = 2
	affine[0][3] = -10

	path := filepath.Join(t.TempDir(), "Pred_volume_epoch_1.nii.gz")
	if err := Save(path, vol, affine); err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(raw) != voxOffset+6*4 {
		t.Fatalf("expected %d bytes, got %d", voxOffset+24, len(raw))
	}
	le := binary.LittleEndian
	if le.Uint32(raw[0:]) != headerSize {
		t.Fatalf("sizeof_hdr = %d", le.Uint32(raw[0:]))
	}
	if string(raw[344:348]) != "n+1\x00" {
		t.Fatalf("bad magic %q", raw[344:348])
	}
	if le.Uint16(raw[40:]) != 2 || le.Uint16(raw[42:]) != 2 || le.Uint16(raw[44:]) != 3 {
		t.Fatalf("unexpected dims %v", raw[40:56])
	}
	if px := math.Float32frombits(le.Uint32(raw[80:])); px != 2 {
		t.Fatalf("pixdim[1] = %f, want 2", px)
	}
	if off := math.Float32frombits(le.Uint32(raw[280+12:])); off != -10 {
		t.Fatalf("srow_x[3] = %f, want -10", off)
	}

	// column-major order: 0 3 1 4 2 5
	want := []float32{0, 3, 1, 4, 2, 5}
	for i, w := range want {
		got := math.Float32frombits(le.Uint32(raw[voxOffset+4*i:]))
		if got != w {
			t.Fatalf("voxel %d = %f want %f", i, got, w)
		}
	}
}

// nifti1Header is the full NIfTI-1 header in on-disk field order.
type nifti1Header struct {
	SizeofHdr     int32
	DataType      [10]byte
	DBName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP       [3]float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XYZTUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	TOffset       float32
	GLMax         int32
	GLMin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	Quatern       [3]float32
	QOffset       [3]float32
	Srow          [3][4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

func TestSaveRoundTripsThroughHeaderLayout(t *testing.T) {
	shape := [3]int{2, 3, 4}
	data := make([]float32, 24)
	for i := range data {
		data[i] = float32(i) * 0.5
	}
	affine := Identity()
	affine[1][1] = 3
	affine[2][3] = 7.5

	path := filepath.Join(t.TempDir(), "vol.nii.gz")
	if err := Save(path, volume.New(data, shape[0], shape[1], shape[2]), affine); err != nil {
		t.Fatalf("Save: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}

	var hdr nifti1Header
	if err := binary.Read(zr, binary.LittleEndian, &hdr); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if binary.Size(hdr) != headerSize || hdr.SizeofHdr != headerSize {
		t.Fatalf("header size %d, sizeof_hdr %d", binary.Size(hdr), hdr.SizeofHdr)
	}
	if string(hdr.Magic[:]) != "n+1\x00" || hdr.Regular != 'r' {
		t.Fatalf("magic %q regular %q", hdr.Magic, hdr.Regular)
	}
	if hdr.Dim != [8]int16{3, 2, 3, 4, 1, 1, 1, 1} {
		t.Fatalf("dim %v", hdr.Dim)
	}
	if hdr.Datatype != dtFloat32 || hdr.Bitpix != 32 || hdr.VoxOffset != voxOffset || hdr.SclSlope != 1 {
		t.Fatalf("datatype %d bitpix %d vox_offset %f scl_slope %f", hdr.Datatype, hdr.Bitpix, hdr.VoxOffset, hdr.SclSlope)
	}
	if hdr.Pixdim[2] != 3 || hdr.XYZTUnits != unitsMM || hdr.SformCode != sformScanner {
		t.Fatalf("pixdim %v units %d sform %d", hdr.Pixdim, hdr.XYZTUnits, hdr.SformCode)
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			if float64(hdr.Srow[row][col]) != affine[row][col] {
				t.Fatalf("srow[%d][%d] = %f want %f", row, col, hdr.Srow[row][col], affine[row][col])
			}
		}
	}

	if _, err := io.CopyN(io.Discard, zr, voxOffset-headerSize); err != nil {
		t.Fatalf("skip extension: %v", err)
	}
	voxels := make([]float32, len(data))
	if err := binary.Read(zr, binary.LittleEndian, voxels); err != nil {
		t.Fatalf("read voxels: %v", err)
	}
	for i := 0; i < shape[0]; i++ {
		for j := 0; j < shape[1]; j++ {
			for k := 0; k < shape[2]; k++ {
				got := voxels[i+shape[0]*(j+shape[1]*k)]
				want := data[(i*shape[1]+j)*shape[2]+k]
				if got != want {
					t.Fatalf("voxel (%d,%d,%d) = %f want %f", i, j, k, got, want)
				}
			}
		}
	}
	if n, _ := io.Copy(io.Discard, zr); n != 0 {
		t.Fatalf("%d trailing bytes", n)
	}
}

func TestNewHeaderRejectsTooManyDims(t *testing.T) {
	if _, err := NewHeader([]int{1, 1, 1, 1, 1, 1, 1, 1}, Identity()); err == nil {
		t.Fatal("expected error for 8 dims")
	}
}
