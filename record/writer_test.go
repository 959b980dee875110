// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/tail"
)

var epoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func openWriter(t *testing.T, options Options) *Writer {
	t.Helper()
	if options.Clock == nil {
		options.Clock = clock.Fake(epoch)
	}
	writer, err := Open(t.TempDir(), options)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return writer
}

func readLog(t *testing.T, writer *Writer) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(writer.Directory(), run.MetricsFile))
	if err != nil {
		t.Fatalf("reading metrics log: %v", err)
	}
	return string(data)
}

func TestAppendRowShape(t *testing.T) {
	writer := openWriter(t, Options{Columns: []string{"loss", "acc", "lr"}})
	if err := writer.Append(map[string]float64{"loss": 2.3, "acc": 0.1, "lr": 0.001}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := writer.Append(map[string]float64{"loss": 1.9}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(readLog(t, writer), "\n"), "\n")
	// Header, two rows, and the empty completion marker.
	if len(lines) != 4 || lines[3] != "" {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != "step,loss,acc,lr" {
		t.Fatalf("header = %q", lines[0])
	}

	// Every data row has 1 + len(columns) fields and a strictly
	// increasing first field.
	previous := -1
	for _, line := range lines[1:3] {
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			t.Fatalf("row %q has %d fields", line, len(fields))
		}
		step := int(run.ParseValue(fields[0]).Number)
		if step <= previous {
			t.Fatalf("step %d not increasing past %d", step, previous)
		}
		previous = step
	}
	// The omitted columns of row 1 carry the NaN sentinel.
	if lines[2] != "1,1.9,NaN,NaN" {
		t.Fatalf("padded row = %q", lines[2])
	}
}

func TestAppendTailRoundTrip(t *testing.T) {
	writer := openWriter(t, Options{Columns: []string{"loss", "acc"}})
	if err := writer.Append(map[string]float64{"acc": 0.5}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var tailer tail.Tailer
	result, err := tailer.Scan(strings.NewReader(readLog(t, writer)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !result.Done {
		t.Fatal("closed run not reported done")
	}
	row := result.Rows[0]
	// iteration, step, loss (omitted → NaN), acc.
	if !row[2].IsNaN() {
		t.Fatalf("omitted column = %+v, want NaN", row[2])
	}
	if row[3].Number != 0.5 {
		t.Fatalf("acc = %+v", row[3])
	}
}

func TestInferredColumnsAreFrozen(t *testing.T) {
	writer := openWriter(t, Options{})
	if err := writer.Append(map[string]float64{"loss": 1.0, "acc": 0.2}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err := writer.Append(map[string]float64{"throughput": 100})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) || schemaErr.Column != "throughput" {
		t.Fatalf("err = %v, want SchemaError for throughput", err)
	}

	// The failed append wrote nothing; the session survives.
	if err := writer.Append(map[string]float64{"loss": 0.9}); err != nil {
		t.Fatalf("Append after schema error: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	lines := strings.Split(readLog(t, writer), "\n")
	if lines[0] != "step,acc,loss" {
		t.Fatalf("inferred header = %q", lines[0])
	}
	if len(lines) != 5 { // header, 2 rows, marker, trailing split artifact
		t.Fatalf("lines = %q", lines)
	}
}

func TestAverageAccumulator(t *testing.T) {
	writer := openWriter(t, Options{})
	writer.UpdateAverage(map[string]float64{"loss": 1.0})
	writer.UpdateAverage(map[string]float64{"loss": 3.0})
	if err := writer.Append(nil); err != nil {
		t.Fatalf("Append(nil): %v", err)
	}

	if averages := writer.Average(); len(averages) != 0 {
		t.Fatalf("accumulator not reset: %v", averages)
	}

	lines := strings.Split(readLog(t, writer), "\n")
	if lines[1] != "0,2" {
		t.Fatalf("averaged row = %q", lines[1])
	}
}

func TestSummaryFormatsAverages(t *testing.T) {
	writer := openWriter(t, Options{})
	writer.UpdateAverage(map[string]float64{"train.loss": 0.12345, "val.loss": 0.5})
	summary := writer.Summary("train.")
	if summary != "train loss: 0.123" {
		t.Fatalf("Summary = %q", summary)
	}
	if full := writer.Summary(""); !strings.Contains(full, "val.loss: 0.5") {
		t.Fatalf("Summary(\"\") = %q", full)
	}
}

func TestRateLimit(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	writer := openWriter(t, Options{Clock: fakeClock})

	if !writer.RateLimit(10 * time.Second) {
		t.Fatal("first RateLimit call returned false")
	}
	if writer.RateLimit(10 * time.Second) {
		t.Fatal("RateLimit passed before the interval elapsed")
	}
	fakeClock.Advance(11 * time.Second)
	if !writer.RateLimit(10 * time.Second) {
		t.Fatal("RateLimit blocked after the interval elapsed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	writer := openWriter(t, Options{})
	if err := writer.Append(map[string]float64{"loss": 1.0}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Exactly one marker: content ends in exactly two newlines (row
	// terminator + marker).
	content := readLog(t, writer)
	if !strings.HasSuffix(content, "1\n\n") || strings.HasSuffix(content, "\n\n\n") {
		t.Fatalf("log tail = %q", content[len(content)-4:])
	}

	meta, err := run.ReadMeta(writer.Directory())
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if !meta.Finished() {
		t.Fatal("meta not marked finished")
	}
}

func TestMetaWrittenBeforeFirstRow(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	writer, err := Open(t.TempDir(), Options{
		Meta:  run.Meta{"lr": 0.01, "optimizer": "sgd"},
		Clock: fakeClock,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Before any append: meta is complete, unfinished, timestamped.
	meta, err := run.ReadMeta(writer.Directory())
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.Finished() {
		t.Fatal("fresh run marked finished")
	}
	if !meta.Timestamp().Equal(epoch) {
		t.Fatalf("timestamp = %v, want %v", meta.Timestamp(), epoch)
	}
	if meta["optimizer"] != "sgd" {
		t.Fatalf("meta = %v", meta)
	}
	writer.Close()
}

func TestTimestampDirIsUnique(t *testing.T) {
	base := t.TempDir()
	fakeClock := clock.Fake(epoch)

	first, err := Open(base, Options{TimestampDir: true, Clock: fakeClock})
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	// Same fake time: the collision path must back off (advancing
	// the clock via Sleep's waiter) — with a real clock this is the
	// sub-microsecond double-start case.
	go func() {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(time.Millisecond)
	}()
	second, err := Open(base, Options{TimestampDir: true, Clock: fakeClock})
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if first.Directory() == second.Directory() {
		t.Fatalf("both runs share %s", first.Directory())
	}
	first.Close()
	second.Close()
}

func TestResumeContinuesSteps(t *testing.T) {
	directory := t.TempDir()
	fakeClock := clock.Fake(epoch)

	writer, err := Open(directory, Options{Columns: []string{"loss"}, Clock: fakeClock})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	writer.Append(map[string]float64{"loss": 2.0})
	writer.Append(map[string]float64{"loss": 1.5})
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	resumed, err := Open(directory, Options{Resume: true, Clock: fakeClock})
	if err != nil {
		t.Fatalf("resume Open: %v", err)
	}
	if err := resumed.Append(map[string]float64{"loss": 1.0}); err != nil {
		t.Fatalf("Append after resume: %v", err)
	}
	if err := resumed.Close(); err != nil {
		t.Fatalf("Close after resume: %v", err)
	}

	var tailer tail.Tailer
	result, err := tailer.Scan(strings.NewReader(readLog(t, resumed)))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !result.Done || len(result.Rows) != 3 {
		t.Fatalf("resumed log: done=%v rows=%d", result.Done, len(result.Rows))
	}
	// The resumed append continued the step sequence.
	if result.Rows[2][1].Number != 2 {
		t.Fatalf("resumed step = %+v", result.Rows[2][1])
	}
}

func TestResumeRejectsColumnMismatch(t *testing.T) {
	directory := t.TempDir()
	writer, err := Open(directory, Options{Columns: []string{"loss"}, Clock: clock.Fake(epoch)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	writer.Append(map[string]float64{"loss": 1.0})
	writer.Close()

	if _, err := Open(directory, Options{Resume: true, Columns: []string{"acc"}, Clock: clock.Fake(epoch)}); err == nil {
		t.Fatal("resume with different columns succeeded")
	}
}

func TestOpenRejectsBadColumns(t *testing.T) {
	for _, columns := range [][]string{{""}, {"a", "a"}, {"a\nb"}} {
		if _, err := Open(t.TempDir(), Options{Columns: columns, Clock: clock.Fake(epoch)}); err == nil {
			t.Fatalf("Open accepted columns %q", columns)
		}
	}
}
