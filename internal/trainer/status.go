package trainer

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/chinacui/medicalzoo/internal/metrics"
)

// CSVHeader names the columns DisplayStatus appends.
const CSVHeader = "epoch,train_loss,dice_avg_coeff,avg_air,avg_csf,avg_gm,avg_wm"

// LineWriter receives newline-free status records.
type LineWriter interface {
	WriteLine(line string) error
}

// LogFile is an append-only text log flushed after every line.
type LogFile struct {
	f *os.File
	w *bufio.Writer
}

// OpenLogFile opens path for appending, creating it if needed.
func OpenLogFile(path string) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	return &LogFile{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteLine implements LineWriter.
func (l *LogFile) WriteLine(line string) error {
	if _, err := l.w.WriteString(line + "\n"); err != nil {
		return errors.Wrap(err, "write log line")
	}
	return l.w.Flush()
}

// Close flushes and closes the file.
func (l *LogFile) Close() error {
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}

// Status is one progress report. For a partial report Stats holds running
// sums over Processed batches; for a summary it holds epoch means.
type Status struct {
	Epoch        int
	Stats        metrics.Summary
	PartialEpoch float64
	Processed    int
	Summary      bool
}

// Normalized returns the per-batch averages the report describes.
func (s Status) Normalized() metrics.Summary {
	if s.Summary || s.Processed <= 0 {
		return s.Stats
	}
	n := float64(s.Processed)
	out := metrics.Summary{Loss: s.Stats.Loss / n, Coeff: s.Stats.Coeff / n}
	for i, v := range s.Stats.Classes {
		out.Classes[i] = v / n
	}
	return out
}

// DisplayStatus logs a human readable line and appends the CSV record to out.
func DisplayStatus(out LineWriter, st Status) error {
	avg := st.Normalized()
	if st.Summary {
		log.Printf("Epoch Summary: %.2f\tDice Loss: %.4f\tAVG Dice Coeff: %.4f\tAIR:%.4f\tCSF:%.4f\tGM:%.4f\tWM:%.4f",
			float64(st.Epoch), avg.Loss, avg.Coeff, avg.Classes[0], avg.Classes[1], avg.Classes[2], avg.Classes[3])
	} else {
		log.Printf("Train Epoch: %.2f\tDice Loss: %.4f\tAVG Dice Coeff: %.4f\tAIR:%.4f\tCSF:%.4f\tGM:%.4f\tWM:%.4f",
			st.PartialEpoch, avg.Loss, avg.Coeff, avg.Classes[0], avg.Classes[1], avg.Classes[2], avg.Classes[3])
	}
	if out == nil {
		return nil
	}
	return out.WriteLine(CSVLine(st.Epoch, avg))
}

// CSVLine formats one record in CSVHeader column order.
func CSVLine(epoch int, s metrics.Summary) string {
	fields := make([]string, 0, 7)
	fields = append(fields, strconv.Itoa(epoch), formatFloat(s.Loss), formatFloat(s.Coeff))
	for _, v := range s.Classes {
		fields = append(fields, formatFloat(v))
	}
	return strings.Join(fields, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
