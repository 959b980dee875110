// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/tail"
)

// Reader tails one run: it polls the metadata document and the
// metrics log at a fixed interval and emits events on the channel it
// was given. It runs until the run completes, the log turns out to be
// corrupt, or the context is cancelled.
type Reader struct {
	directory string
	strategy  Strategy
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	tailer tail.Tailer

	// Metadata change detection: re-read only when the file's stat
	// identity moves. The atomic-rename write pattern guarantees a
	// fresh inode on every rewrite, which os.SameFile sees even when
	// a coarse-mtime mount reports the same size and mtime.
	metaInfo os.FileInfo
	metaSeen bool
}

// NewReader creates a reader for one run directory. forceReopen
// selects the reopen-per-poll strategy for filesystems where a held
// handle goes stale.
func NewReader(directory string, interval time.Duration, forceReopen bool, clk clock.Clock, logger *slog.Logger) *Reader {
	return &Reader{
		directory: directory,
		strategy:  NewStrategy(filepath.Join(directory, run.MetricsFile), forceReopen),
		interval:  interval,
		clock:     clk,
		logger:    logger.With("run", directory),
	}
}

// Run polls until the run is done or ctx is cancelled. Events go out
// on the events channel; the send blocks until the coordinator
// accepts it, so a slow consumer applies backpressure rather than
// losing rows.
func (r *Reader) Run(ctx context.Context, events chan<- Event) {
	defer r.strategy.Close()

	for {
		if done := r.poll(ctx, events); done {
			return
		}
		select {
		case <-r.clock.After(r.interval):
		case <-ctx.Done():
			return
		}
	}
}

// poll performs one tick: metadata first, then the metrics log.
// Returns true when the reader should stop.
func (r *Reader) poll(ctx context.Context, events chan<- Event) bool {
	r.pollMeta(ctx, events, false)

	result, err := r.strategy.Scan(&r.tailer)

	if result.Header != nil {
		if !send(ctx, events, HeaderEvent{Dir: r.directory, Header: result.Header}) {
			return true
		}
	}
	if len(result.Rows) > 0 {
		if !send(ctx, events, RowsEvent{Dir: r.directory, Rows: result.Rows}) {
			return true
		}
	}
	if err != nil {
		var corrupt *tail.CorruptError
		if errors.As(err, &corrupt) {
			// A corrupt log is terminal for this run, but the header
			// and rows that preceded the bad line were already
			// delivered above. Surface the error once; other runs
			// are unaffected.
			r.logger.Warn("tailing stopped", "error", err)
			r.pollMeta(ctx, events, true)
			send(ctx, events, DoneEvent{Dir: r.directory, Err: err})
			return true
		}
		// Anything else (a seek or read failing on a flaky network
		// mount) is worth retrying next tick.
		r.logger.Warn("metrics log unreadable", "error", err)
		return ctx.Err() != nil
	}
	if result.Done {
		// Re-read the metadata before the final event: the writer
		// rewrites finished=true around the same moment it writes the
		// completion marker.
		r.pollMeta(ctx, events, true)
		send(ctx, events, DoneEvent{Dir: r.directory})
		return true
	}
	return ctx.Err() != nil
}

// pollMeta emits a MetaEvent when the metadata document changed since
// the last poll (or on the first poll, a missing file reading as an
// empty document). force re-reads unconditionally.
func (r *Reader) pollMeta(ctx context.Context, events chan<- Event, force bool) {
	info, err := os.Stat(filepath.Join(r.directory, run.MetaFile))
	if err != nil {
		info = nil
	}

	if !force && r.metaSeen && sameMeta(r.metaInfo, info) {
		return
	}
	r.metaSeen = true
	r.metaInfo = info

	meta, err := run.ReadMeta(r.directory)
	if err != nil {
		// A half-valid document (mid-edit annotation, for example)
		// is transient. Keep the stat marker so a rewrite triggers a
		// fresh read.
		r.logger.Warn("metadata unreadable", "error", err)
		return
	}
	send(ctx, events, MetaEvent{Dir: r.directory, Meta: meta})
}

// sameMeta reports whether two metadata stats describe the same
// unchanged document. Size and mtime catch in-place edits; SameFile
// catches an atomic rename that lands within one mtime tick.
func sameMeta(previous, current os.FileInfo) bool {
	if previous == nil || current == nil {
		return previous == nil && current == nil
	}
	return previous.Size() == current.Size() &&
		previous.ModTime().Equal(current.ModTime()) &&
		os.SameFile(previous, current)
}

// send delivers an event unless the context is cancelled first.
// Reports whether the event was delivered.
func send(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
