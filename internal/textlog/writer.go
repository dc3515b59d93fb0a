// Package textlog persists flushed log ring records as a tab-separated
// text file for humans and offline tooling.
package textlog

import (
	"bufio"
	"fmt"
	"os"

	"github.com/arloliu/pulse/internal/shm"
)

// header is written once at open and matches the columns of every record
// line appended afterwards.
const header = "Beat\tTag\tTimestamp\tGlobal Rate\tWindow Rate\tInstant Rate\tMin Rate\tMax Rate\n"

// Writer appends heartbeat records to a text log file.
//
// Not thread-safe; the owning Heartbeat serializes access under its mutex.
type Writer struct {
	f  *os.File
	bw *bufio.Writer
}

// Create opens path for writing, truncating any previous contents, and
// writes the column header line.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open heartbeat log file: %w", err)
	}

	w := &Writer{f: f, bw: bufio.NewWriter(f)}
	if _, err := w.bw.WriteString(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write heartbeat log header: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write heartbeat log header: %w", err)
	}

	return w, nil
}

// Append writes one line per record and flushes the underlying file.
// The configured rate bounds are repeated on every line, matching the
// header's trailing columns.
func (w *Writer) Append(records []shm.Record, minRate, maxRate float64) error {
	for _, rec := range records {
		_, err := fmt.Fprintf(w.bw, "%d\t%d\t%d\t%f\t%f\t%f\t%f\t%f\n",
			rec.Beat,
			rec.Tag,
			rec.Timestamp,
			rec.GlobalRate,
			rec.WindowRate,
			rec.InstantRate,
			minRate,
			maxRate,
		)
		if err != nil {
			return fmt.Errorf("failed to write heartbeat log record: %w", err)
		}
	}

	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush heartbeat log: %w", err)
	}

	return nil
}

// Close flushes buffered output and closes the file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to flush heartbeat log: %w", err)
	}

	return w.f.Close()
}
