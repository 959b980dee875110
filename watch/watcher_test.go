// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/lib/testutil"
)

func startWatcher(t *testing.T, root string, fakeClock *clock.FakeClock) (*Watcher, context.CancelFunc, chan struct{}) {
	t.Helper()
	watcher := New(Options{
		Root:          root,
		PollInterval:  time.Second,
		CrawlInterval: time.Minute,
		Clock:         fakeClock,
		Logger:        discardLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		watcher.Run(ctx)
	}()
	return watcher, cancel, done
}

// collectUntilDone drains events for one run until its DoneEvent,
// returning the events in order.
func collectUntilDone(t *testing.T, watcher *Watcher) []Event {
	t.Helper()
	var events []Event
	for {
		event := testutil.RequireReceive(t, watcher.Events(), testTimeout, "run event")
		events = append(events, event)
		if _, ok := event.(DoneEvent); ok {
			return events
		}
	}
}

func TestWatcherObservesCompletedRun(t *testing.T) {
	root := t.TempDir()
	directory := makeRun(t, root, "exp")
	appendFile(t, filepath.Join(directory, run.MetricsFile), "0,1.5\n1,1.1\n\n")
	if err := run.WriteMeta(directory, run.Meta{run.KeyFinished: true}); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	fakeClock := clock.Fake(testEpoch)
	watcher, cancel, done := startWatcher(t, root, fakeClock)
	defer cancel()

	events := collectUntilDone(t, watcher)

	var sawHeader, sawRows bool
	for _, event := range events {
		switch event := event.(type) {
		case HeaderEvent:
			sawHeader = true
		case RowsEvent:
			sawRows = true
			if len(event.Rows) != 2 {
				t.Fatalf("rows = %d", len(event.Rows))
			}
		}
	}
	if !sawHeader || !sawRows {
		t.Fatalf("lifecycle incomplete: header=%v rows=%v", sawHeader, sawRows)
	}

	runs := watcher.Runs()
	if len(runs) != 1 || runs[0].State != Completed {
		t.Fatalf("runs = %+v", runs)
	}

	cancel()
	testutil.RequireClosed(t, done, testTimeout, "watcher stopped")
	// The events channel closes once all readers are down.
	for range watcher.Events() {
	}
}

func TestWatcherNeverRepollsCompletedRuns(t *testing.T) {
	root := t.TempDir()
	directory := makeRun(t, root, "exp")
	appendFile(t, filepath.Join(directory, run.MetricsFile), "0,1.5\n\n")

	fakeClock := clock.Fake(testEpoch)
	watcher, cancel, _ := startWatcher(t, root, fakeClock)
	defer cancel()

	collectUntilDone(t, watcher)

	// Re-walk the tree. The completed run must not produce a second
	// reader or any further events.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Minute)

	select {
	case event := <-watcher.Events():
		t.Fatalf("completed run produced %T", event)
	case <-time.After(100 * time.Millisecond):
	}

	runs := watcher.Runs()
	if len(runs) != 1 || runs[0].State != Completed {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestWatcherTracksMultipleRuns(t *testing.T) {
	// Unique run names keep the two directories distinguishable in
	// failure output.
	root := t.TempDir()
	finished := makeRun(t, root, testutil.UniqueID("finished"))
	appendFile(t, filepath.Join(finished, run.MetricsFile), "0,1\n\n")
	live := makeRun(t, root, testutil.UniqueID("live"))
	appendFile(t, filepath.Join(live, run.MetricsFile), "0,2\n")

	fakeClock := clock.Fake(testEpoch)
	watcher, cancel, _ := startWatcher(t, root, fakeClock)
	defer cancel()

	// Drain until the finished run's DoneEvent; the live run's
	// events interleave arbitrarily.
	states := map[string]State{}
	deadline := time.After(testTimeout)
	for {
		select {
		case event := <-watcher.Events():
			if _, ok := event.(DoneEvent); ok {
				states[event.Directory()] = Completed
			}
		case <-deadline:
			t.Fatal("timed out waiting for the finished run")
		}
		if states[finished] == Completed {
			break
		}
	}

	for _, status := range watcher.Runs() {
		switch status.Directory {
		case finished:
			if status.State != Completed {
				t.Fatalf("finished run state = %v", status.State)
			}
		case live:
			if status.State == Completed {
				t.Fatal("live run marked completed")
			}
		}
	}
}
