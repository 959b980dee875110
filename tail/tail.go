// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package tail incrementally parses a metrics log that may still be
// growing. The Tailer carries its resume offset across calls, so a
// polling strategy can hand it the same file (or a freshly reopened
// one) repeatedly and receive only rows that completed since the last
// call.
//
// The parser trusts line terminators, not file sizes: a line present
// in the byte stream without its terminator is a write in progress
// and is re-read from scratch on the next call. A bare terminator
// with no content is the completion marker — the writer's promise
// that no further appends will occur.
package tail

import (
	"fmt"
	"io"
	"strings"

	"github.com/runboard/runboard/lib/schema/run"
)

// IterationColumn is the implicit leading column the tailer inserts
// into every header: the zero-based row number. The file's own first
// column (the writer-supplied step index or timestamp) follows it.
const IterationColumn = "iteration"

// Row is one complete parsed data row. Values[0] is the implicit
// iteration number; the remaining values align with the header's
// file columns.
type Row []run.Value

// Result is what one Scan call produced.
type Result struct {
	// Header is the full column list (iteration column included).
	// Non-nil only on the call that first parses the header line.
	Header []string

	// Rows are the newly completed data rows, in file order.
	Rows []Row

	// Done is true once the completion marker has been observed.
	// No rows follow it.
	Done bool
}

// CorruptError reports a data row whose field count does not match
// the header. It indicates a writer bug or an unsupported mid-write
// read; the tailer stops advancing past it.
type CorruptError struct {
	// Line is the 1-based line number of the offending row.
	Line int

	// Fields and Want are the observed and expected field counts.
	Fields int
	Want   int
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("metrics log line %d has %d fields, header has %d", e.Line, e.Fields, e.Want)
}

// Tailer parses a growing metrics log across repeated Scan calls.
// State carried between calls: the byte offset to resume from, the
// parsed header, and the running row count. The zero value starts at
// the beginning of the file. Not safe for concurrent use.
type Tailer struct {
	offset int64
	header []string
	rows   int
	lines  int
	done   bool
}

// Offset returns the byte position the next Scan resumes from. It
// only ever advances past complete lines, so a reopened file seeked
// here never replays a row.
func (t *Tailer) Offset() int64 { return t.offset }

// Header returns the parsed header, or nil before the header line
// has completed.
func (t *Tailer) Header() []string { return t.header }

// Done reports whether the completion marker has been observed.
func (t *Tailer) Done() bool { return t.done }

// Scan seeks source to the resume offset and parses every complete
// line currently present. It never errors on a partial tail — that is
// the normal mid-write state — but a field-count mismatch returns a
// *CorruptError and the tailer refuses to advance further.
func (t *Tailer) Scan(source io.ReadSeeker) (Result, error) {
	var result Result
	if t.done {
		result.Done = true
		return result, nil
	}

	if _, err := source.Seek(t.offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("seeking to resume offset %d: %w", t.offset, err)
	}
	data, err := io.ReadAll(source)
	if err != nil {
		return result, fmt.Errorf("reading metrics log: %w", err)
	}

	for len(data) > 0 {
		newline := indexTerminator(data)
		if newline < 0 {
			// Unterminated tail: a write in progress. The resume
			// offset stays before it, so the next Scan re-reads the
			// whole line once more bytes exist.
			break
		}
		line := strings.TrimSuffix(string(data[:newline]), "\r")
		consumed := int64(newline + 1)
		data = data[newline+1:]

		if line == "" {
			// The completion marker. Nothing may follow it.
			t.offset += consumed
			t.done = true
			result.Done = true
			break
		}

		t.lines++
		if t.header == nil {
			fileColumns := run.SplitHeader(line)
			t.header = append([]string{IterationColumn}, fileColumns...)
			t.offset += consumed
			result.Header = t.header
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != len(t.header)-1 {
			return result, &CorruptError{Line: t.lines, Fields: len(fields), Want: len(t.header) - 1}
		}

		row := make(Row, 0, len(t.header))
		row = append(row, run.Float(float64(t.rows)))
		for _, field := range fields {
			row = append(row, run.ParseValue(field))
		}
		result.Rows = append(result.Rows, row)
		t.rows++
		t.offset += consumed
	}

	return result, nil
}

// indexTerminator finds the first line terminator. The log writer
// emits '\n', but a '\r' from a foreign writer terminates a line too
// (bare-CR files from legacy tooling). A '\r' at the very end of the
// buffer is NOT a terminator: it may be the first half of a "\r\n"
// whose '\n' has not been written yet, and consuming it now would
// make that '\n' look like a spurious completion marker on the next
// scan.
func indexTerminator(data []byte) int {
	for i, b := range data {
		if b == '\n' {
			return i
		}
		if b == '\r' {
			if i+1 >= len(data) {
				return -1
			}
			if data[i+1] == '\n' {
				return i + 1
			}
			return i
		}
	}
	return -1
}
