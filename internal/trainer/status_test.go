package trainer

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/chinacui/medicalzoo/internal/metrics"
)

func TestDisplayStatusNormalizesPartialReports(t *testing.T) {
	var out lines
	err := DisplayStatus(&out, Status{
		Epoch:        2,
		Stats:        metrics.Summary{Loss: 1, Coeff: 150, Classes: [4]float64{2, 1.5, 1, 0.5}},
		PartialEpoch: 1.5,
		Processed:    2,
	})
	if err != nil {
		t.Fatalf("DisplayStatus: %v", err)
	}
	if len(out) != 1 || out[0] != "2,0.5,75,1,0.75,0.5,0.25" {
		t.Fatalf("unexpected partial record %v", out)
	}

	out = nil
	err = DisplayStatus(&out, Status{
		Epoch:   2,
		Stats:   metrics.Summary{Loss: 0.5, Coeff: 50, Classes: [4]float64{1, 0.75, 0.5, 0.25}},
		Summary: true,
	})
	if err != nil {
		t.Fatalf("DisplayStatus: %v", err)
	}
	if out[0] != "2,0.5,50,1,0.75,0.5,0.25" {
		t.Fatalf("summary must not be renormalized, got %v", out)
	}
}

func TestLogFileFlushesEveryLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	lf, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	defer lf.Close()
	if err := lf.WriteLine(CSVHeader); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != CSVHeader+"\n" {
		t.Fatalf("line not flushed, file holds %q", raw)
	}
}

func TestDisplayStatusPartialAndSummaryRowsAgree(t *testing.T) {
	sums := metrics.Summary{Loss: 0.9, Coeff: 180, Classes: [4]float64{1.8, 1.2, 0.6, 0.3}}
	means := metrics.Summary{Loss: 0.3, Coeff: 60, Classes: [4]float64{0.6, 0.4, 0.2, 0.1}}
	var partial, summary lines
	if err := DisplayStatus(&partial, Status{Epoch: 1, Stats: sums, PartialEpoch: 1.75, Processed: 3}); err != nil {
		t.Fatalf("DisplayStatus: %v", err)
	}
	if err := DisplayStatus(&summary, Status{Epoch: 1, Stats: means, Summary: true}); err != nil {
		t.Fatalf("DisplayStatus: %v", err)
	}
	// the CSV columns are averages in both forms, never running sums
	if len(partial) != 1 || len(summary) != 1 {
		t.Fatalf("expected one record each, got %v and %v", partial, summary)
	}
	want := CSVLine(1, means)
	for _, got := range []string{partial[0], summary[0]} {
		if !sameRecord(got, want) {
			t.Fatalf("record %q want %q", got, want)
		}
	}
}

// sameRecord compares CSV records field by field within float tolerance.
func sameRecord(a, b string) bool {
	fa, fb := strings.Split(a, ","), strings.Split(b, ",")
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		x, errX := strconv.ParseFloat(fa[i], 64)
		y, errY := strconv.ParseFloat(fb[i], 64)
		if errX != nil || errY != nil || math.Abs(x-y) > 1e-9 {
			return false
		}
	}
	return true
}
