// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package visual

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/lib/schema/vis"
)

// Loader polls one selected run's visualizations and emits rendered
// snapshots. Selection changes take effect immediately: Select cuts
// short the in-flight poll sleep rather than waiting it out.
type Loader struct {
	registry *Registry
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	selections chan selection
}

// selection names the run whose visualizations should be polled.
// done marks a completed run: it is scanned once and never re-polled.
// The zero selection stops polling entirely.
type selection struct {
	directory string
	done      bool
}

// loaderState is the per-selection polling state. A new selection
// discards it wholesale.
type loaderState struct {
	directory string
	done      bool
	scanned   bool

	indexSize int64
	versions  map[string]int

	// retry holds names whose payload read hit a torn write; they
	// are re-attempted next tick regardless of index growth.
	retry map[string]bool

	// sources caches frozen source text by identity hash. Content
	// addressing makes the cache trivially correct: a hash hit IS a
	// verification.
	sources map[string][]byte
}

// NewLoader creates a loader over the given renderer registry.
func NewLoader(registry *Registry, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Loader {
	return &Loader{
		registry:   registry,
		interval:   interval,
		clock:      clk,
		logger:     logger,
		selections: make(chan selection),
	}
}

// Select switches the loader to a different run. done marks the run
// completed: its visualizations are scanned once, then polling stops
// until the next Select. An empty directory deselects. Blocks until
// the loader accepts the change (immediately unless Run is not
// running).
func (l *Loader) Select(directory string, done bool) {
	l.selections <- selection{directory: directory, done: done}
}

// Run polls until ctx is cancelled, emitting rendered snapshots on
// rendered.
func (l *Loader) Run(ctx context.Context, rendered chan<- Rendered) {
	state := &loaderState{}
	for {
		idle := state.directory == "" || (state.done && state.scanned)
		if !idle {
			l.scan(ctx, state, rendered)
			state.scanned = true
			idle = state.done
		}

		if idle {
			// Nothing to poll: wait for a selection change.
			select {
			case selected := <-l.selections:
				state = newState(selected)
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-l.clock.After(l.interval):
		case selected := <-l.selections:
			state = newState(selected)
		case <-ctx.Done():
			return
		}
	}
}

func newState(selected selection) *loaderState {
	return &loaderState{
		directory: selected.directory,
		done:      selected.done,
		versions:  map[string]int{},
		retry:     map[string]bool{},
		sources:   map[string][]byte{},
	}
}

// scan performs one poll tick: check the index size, diff versions,
// load and render what changed.
func (l *Loader) scan(ctx context.Context, state *loaderState, rendered chan<- Rendered) {
	visDirectory := filepath.Join(state.directory, run.VisualizationsDir)

	size, err := vis.IndexSize(visDirectory)
	if err != nil {
		l.logger.Warn("visualization index unreadable", "run", state.directory, "error", err)
		return
	}
	if size == state.indexSize && len(state.retry) == 0 {
		return
	}

	versions, err := vis.ReadIndex(visDirectory)
	if err != nil {
		l.logger.Warn("visualization index unreadable", "run", state.directory, "error", err)
		return
	}
	state.indexSize = size

	for name, version := range versions {
		if version <= state.versions[name] && !state.retry[name] {
			continue
		}
		l.load(ctx, state, visDirectory, name, version, rendered)
	}
}

// load reads, verifies, renders, and emits one snapshot. The version
// is recorded even when the entry is skipped on a permanent error, so
// a bad snapshot is reported once rather than every tick.
func (l *Loader) load(ctx context.Context, state *loaderState, visDirectory, name string, version int, rendered chan<- Rendered) {
	payload, err := vis.ReadPayload(visDirectory, name)
	if err != nil {
		if errors.Is(err, vis.ErrTruncatedPayload) {
			// A torn write: the recorder is mid-replace. Silent by
			// design of the protocol; next tick sees the full file.
			state.retry[name] = true
			return
		}
		l.logger.Warn("visualization payload unreadable", "name", name, "error", err)
		delete(state.retry, name)
		state.versions[name] = version
		return
	}
	delete(state.retry, name)
	state.versions[name] = version

	var source []byte
	if !payload.Builtin {
		source, err = l.loadSource(state, visDirectory, name, payload.SourceHash)
		if err != nil {
			l.logger.Warn("visualization source rejected", "name", name, "error", err)
			return
		}
	}

	render, ok := l.registry.Lookup(payload.Func)
	if !ok {
		l.logger.Warn("no renderer registered", "name", name, "func", payload.Func)
		return
	}
	summary, err := render(payload, source)
	if err != nil {
		l.logger.Warn("rendering failed", "name", name, "func", payload.Func, "error", err)
		return
	}

	select {
	case rendered <- Rendered{
		Run:     state.directory,
		Name:    name,
		Func:    payload.Func,
		Version: version,
		Summary: summary,
	}:
	case <-ctx.Done():
	}
}

// loadSource returns the frozen source for an identity hash, reading
// and verifying it on first use and serving the cache afterwards.
func (l *Loader) loadSource(state *loaderState, visDirectory, name, sourceHash string) ([]byte, error) {
	if source, ok := state.sources[sourceHash]; ok {
		return source, nil
	}
	source, err := os.ReadFile(vis.SourcePath(visDirectory, name))
	if err != nil {
		return nil, err
	}
	actual := vis.HashSource(source).String()
	if actual != sourceHash {
		return nil, errors.New("frozen source does not match the snapshot's identity hash")
	}
	state.sources[sourceHash] = source
	return source, nil
}
