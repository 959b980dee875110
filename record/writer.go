// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/lib/schema/vis"
	"github.com/runboard/runboard/tail"
)

// StepColumn is the first column of every metrics file this writer
// produces: the strictly increasing row index.
const StepColumn = "step"

// Options configures a Writer. The zero value is valid: columns are
// inferred from the first append, no metadata beyond the reserved
// keys, the run directory is used as given.
type Options struct {
	// Columns fixes the metric columns up front. When nil, they are
	// inferred (sorted) from the first Append call and frozen. Listing
	// them explicitly is useful when the first append covers only a
	// subset of the metrics the run will log.
	Columns []string

	// Meta holds user hyper-parameters recorded in the metadata
	// document. The reserved timestamp and finished keys are managed
	// by the writer.
	Meta run.Meta

	// TimestampDir creates a unique timestamped subdirectory inside
	// the given directory, so repeated invocations with the same base
	// path never collide. Incompatible with Resume.
	TimestampDir bool

	// Resume appends to an existing metrics log instead of starting
	// from scratch: the log is re-read, validated, stripped of any
	// completion marker, and appending continues at the next step.
	// When no log exists yet the option is a no-op.
	Resume bool

	// Clock supplies time for the creation timestamp and RateLimit.
	// Defaults to clock.Real().
	Clock clock.Clock
}

// Writer records one run. It is owned by a single goroutine — the
// training loop — and is not safe for concurrent use.
type Writer struct {
	directory string
	clock     clock.Clock

	file        *os.File
	buffer      *bufio.Writer
	columns     []string
	columnSet   map[string]bool
	wroteHeader bool
	step        int
	closed      bool

	avgSum   map[string]float64
	avgCount map[string]int

	visIdentity map[string]vis.SourceHash
	visVersion  map[string]int

	lastRate time.Time
}

// Open creates (or resumes) a run directory and its metrics log. The
// metadata document is fully written before Open returns, so an
// observer that discovers the run always sees schema context before
// the first data row.
func Open(directory string, options Options) (*Writer, error) {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	if err := validateColumns(options.Columns); err != nil {
		return nil, err
	}

	now := clk.Now()

	if options.TimestampDir {
		if options.Resume {
			return nil, errors.New("record: TimestampDir and Resume are mutually exclusive")
		}
		unique, err := makeTimestampDir(directory, clk)
		if err != nil {
			return nil, err
		}
		directory = unique
	} else if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	writer := &Writer{
		directory:   directory,
		clock:       clk,
		columns:     append([]string(nil), options.Columns...),
		avgSum:      map[string]float64{},
		avgCount:    map[string]int{},
		visIdentity: map[string]vis.SourceHash{},
		visVersion:  map[string]int{},
		lastRate:    time.Time{},
	}
	writer.rebuildColumnSet()

	// Metadata first: finished=false plus the creation timestamp, so
	// a freshly discovered run is never missing its schema context.
	meta := run.Meta{}
	for key, value := range options.Meta {
		meta[key] = value
	}
	meta[run.KeyTimestamp] = run.Timestamp(now)
	meta[run.KeyFinished] = false
	if err := run.WriteMeta(directory, meta); err != nil {
		return nil, err
	}

	metricsPath := filepath.Join(directory, run.MetricsFile)
	if options.Resume {
		if err := writer.resume(metricsPath); err != nil {
			return nil, err
		}
	}
	if writer.file == nil {
		file, err := os.OpenFile(metricsPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("creating metrics log: %w", err)
		}
		writer.file = file
	}
	writer.buffer = bufio.NewWriter(writer.file)
	return writer, nil
}

// Directory returns the run directory, including the timestamped
// subdirectory when TimestampDir was used.
func (w *Writer) Directory() string { return w.directory }

// Columns returns the frozen column set, or nil before the first
// append infers it.
func (w *Writer) Columns() []string { return append([]string(nil), w.columns...) }

// Append writes one metrics row. A nil (or empty) points map consumes
// the running average accumulated by UpdateAverage and resets the
// accumulator. Columns absent from points are written as the NaN
// sentinel. The row is flushed before Append returns, so a crash
// loses at most the row currently being written.
func (w *Writer) Append(points map[string]float64) error {
	if w.closed {
		return errors.New("record: writer is closed")
	}
	if len(points) == 0 {
		points = w.Average()
		w.ResetAverage()
	}

	if w.columns == nil {
		inferred := make([]string, 0, len(points))
		for name := range points {
			inferred = append(inferred, name)
		}
		// Map iteration order is random; sort so the schema a run
		// ends up with does not depend on it.
		sort.Strings(inferred)
		if err := validateColumns(inferred); err != nil {
			return err
		}
		w.columns = inferred
		w.rebuildColumnSet()
	} else {
		for name := range points {
			if !w.columnSet[name] {
				return &SchemaError{Column: name}
			}
		}
	}

	if !w.wroteHeader {
		names := make([]string, 0, len(w.columns)+1)
		names = append(names, StepColumn)
		for _, column := range w.columns {
			names = append(names, run.EscapeName(column))
		}
		if _, err := w.buffer.WriteString(strings.Join(names, ",") + "\n"); err != nil {
			return fmt.Errorf("writing metrics header: %w", err)
		}
		w.wroteHeader = true
	}

	fields := make([]string, 0, len(w.columns)+1)
	fields = append(fields, strconv.Itoa(w.step))
	for _, column := range w.columns {
		if value, ok := points[column]; ok {
			fields = append(fields, strconv.FormatFloat(value, 'g', -1, 64))
		} else {
			fields = append(fields, run.NaN)
		}
	}
	if _, err := w.buffer.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
		return fmt.Errorf("writing metrics row: %w", err)
	}
	if err := w.buffer.Flush(); err != nil {
		return fmt.Errorf("flushing metrics row: %w", err)
	}
	w.step++
	return nil
}

// UpdateAverage adds one data point per named metric to the running
// average, independent of Append. A training loop calls this every
// step and lets a periodic Append(nil) persist the mean.
func (w *Writer) UpdateAverage(points map[string]float64) {
	for name, value := range points {
		w.avgSum[name] += value
		w.avgCount[name]++
	}
}

// Average returns the per-metric mean accumulated so far. Empty after
// a reset (Append(nil) resets implicitly).
func (w *Writer) Average() map[string]float64 {
	averages := make(map[string]float64, len(w.avgSum))
	for name, sum := range w.avgSum {
		averages[name] = sum / float64(w.avgCount[name])
	}
	return averages
}

// ResetAverage clears the running average accumulator.
func (w *Writer) ResetAverage() {
	w.avgSum = map[string]float64{}
	w.avgCount = map[string]int{}
}

// Summary formats the current averages (or, with a prefix, the subset
// of metrics beginning with it, prefix stripped) for console output.
// Values print with three significant digits.
func (w *Writer) Summary(prefix string) string {
	averages := w.Average()
	names := make([]string, 0, len(averages))
	for name := range averages {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		label := strings.TrimLeft(strings.TrimPrefix(name, prefix), ".")
		parts = append(parts, fmt.Sprintf("%s: %.3g", label, averages[name]))
	}
	text := strings.Join(parts, " ")
	if prefix != "" {
		text = strings.TrimSuffix(prefix, ".") + " " + text
	}
	return text
}

// RateLimit returns true at most once per interval. Use it to bound
// the cost of periodic work in the training loop (summary rows,
// visualization snapshots) without carrying a timer around.
func (w *Writer) RateLimit(interval time.Duration) bool {
	now := w.clock.Now()
	if now.Sub(w.lastRate) > interval {
		w.lastRate = now
		return true
	}
	return false
}

// Close marks the run complete: it appends the completion marker (a
// bare line terminator), closes the metrics log, and rewrites the
// metadata with finished=true. Idempotent — a deferred Close after an
// explicit one writes nothing further, so the marker can never be
// doubled (which would corrupt the "nothing follows the marker"
// invariant).
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if _, err := w.buffer.WriteString("\n"); err != nil {
		errs = append(errs, fmt.Errorf("writing completion marker: %w", err))
	}
	if err := w.buffer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flushing completion marker: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing metrics log: %w", err))
	}

	meta, err := run.ReadMeta(w.directory)
	if err != nil {
		errs = append(errs, err)
		meta = run.Meta{}
	}
	meta[run.KeyFinished] = true
	if err := run.WriteMeta(w.directory, meta); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// resume re-reads an existing metrics log, validates it, strips any
// completion marker, and positions the writer to append after the
// last row. A missing or empty log leaves the writer starting from
// scratch.
func (w *Writer) resume(metricsPath string) error {
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading metrics log for resume: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var tailer tail.Tailer
	result, err := tailer.Scan(strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("validating metrics log for resume: %w", err)
	}
	header := tailer.Header()
	if header == nil {
		return nil
	}

	// Header layout on disk: the step column then the metric columns.
	fileColumns := header[1:]
	if fileColumns[0] != StepColumn {
		return fmt.Errorf("resume: metrics log first column is %q, want %q", fileColumns[0], StepColumn)
	}
	existing := fileColumns[1:]
	if w.columns != nil && !equalColumns(w.columns, existing) {
		return fmt.Errorf("resume: metrics log columns %v do not match requested %v", existing, w.columns)
	}
	w.columns = append([]string(nil), existing...)
	w.rebuildColumnSet()
	w.wroteHeader = true
	w.step = len(result.Rows)

	prefix := string(data[:tailer.Offset()])
	if result.Done {
		// Drop the marker so appends continue a valid, unfinished
		// log. The marker is one bare terminator: "\n" or "\r\n".
		prefix = strings.TrimSuffix(prefix, "\n")
		prefix = strings.TrimSuffix(prefix, "\r")
	}
	data = []byte(prefix)
	file, err := os.OpenFile(metricsPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("reopening metrics log for resume: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("rewriting metrics log for resume: %w", err)
	}
	w.file = file
	return nil
}

func (w *Writer) rebuildColumnSet() {
	if w.columns == nil {
		w.columnSet = nil
		return
	}
	w.columnSet = make(map[string]bool, len(w.columns))
	for _, column := range w.columns {
		w.columnSet[column] = true
	}
}

// makeTimestampDir creates a unique timestamped subdirectory. On the
// (sub-nanosecond-rare) collision with an existing directory it backs
// off briefly and retries with a fresh timestamp.
func makeTimestampDir(base string, clk clock.Clock) (string, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("creating base directory: %w", err)
	}
	for attempt := 0; attempt < 100; attempt++ {
		candidate := filepath.Join(base, run.TimestampDir(clk.Now()))
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating run directory: %w", err)
		}
		clk.Sleep(10 * time.Microsecond)
	}
	return "", errors.New("record: could not create a unique run directory")
}

func validateColumns(columns []string) error {
	seen := map[string]bool{}
	for _, column := range columns {
		if column == "" {
			return errors.New("record: column names must be non-empty")
		}
		if strings.ContainsAny(column, "\n\r") {
			return fmt.Errorf("record: column name %q contains a line terminator", column)
		}
		if seen[column] {
			return fmt.Errorf("record: duplicate column name %q", column)
		}
		seen[column] = true
	}
	return nil
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
