// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/tail"
)

// Event is one observation about a run, emitted by its reader
// goroutine. Events are immutable once sent: the reader never retains
// a reference to the slices and maps it hands over.
type Event interface {
	// Directory is the run directory the event describes.
	Directory() string

	event()
}

// MetaEvent carries the run's metadata document. Emitted once when
// the reader starts (an empty document if meta.json does not exist
// yet), again whenever the file changes, and a final time before
// DoneEvent so the finished flag is never missed.
type MetaEvent struct {
	Dir  string
	Meta run.Meta
}

// HeaderEvent carries the parsed column list, iteration column
// included. Emitted once per run, when the header line completes.
type HeaderEvent struct {
	Dir    string
	Header []string
}

// RowsEvent carries newly completed data rows, in file order.
type RowsEvent struct {
	Dir  string
	Rows []tail.Row
}

// DoneEvent is the reader's last word on a run. Err is nil when the
// completion marker was observed and non-nil when tailing stopped on
// a corrupt log. Either way the run is never polled again.
type DoneEvent struct {
	Dir string
	Err error
}

func (e MetaEvent) Directory() string   { return e.Dir }
func (e HeaderEvent) Directory() string { return e.Dir }
func (e RowsEvent) Directory() string   { return e.Dir }
func (e DoneEvent) Directory() string   { return e.Dir }

func (MetaEvent) event()   {}
func (HeaderEvent) event() {}
func (RowsEvent) event()   {}
func (DoneEvent) event()   {}
