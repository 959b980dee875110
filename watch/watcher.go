// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/runboard/runboard/lib/clock"
)

// State is a run's position in the observation lifecycle.
type State uint8

const (
	// Unselected is the zero state: the run is not under
	// observation. Consumers use it for runs they know of but have
	// not asked the watcher about.
	Unselected State = iota

	// Discovering means the crawler found the run but its reader has
	// not parsed a header yet.
	Discovering

	// Tailing means the header arrived and rows are flowing.
	Tailing

	// Completed means the reader observed the completion marker (or
	// stopped on a corrupt log). The run is never polled again.
	Completed
)

func (s State) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Tailing:
		return "tailing"
	case Completed:
		return "completed"
	default:
		return "unselected"
	}
}

// eventBufferSize is the capacity of the public event channel. Deep
// enough to absorb a burst from a cold-start crawl; readers block
// rather than drop when it fills.
const eventBufferSize = 64

// Options configures a Watcher.
type Options struct {
	// Root is the directory tree to observe.
	Root string

	// PollInterval is how often each reader re-reads its run.
	PollInterval time.Duration

	// CrawlInterval is how often the crawler re-walks the tree.
	CrawlInterval time.Duration

	// ForceReopen selects the reopen-per-poll strategy for
	// filesystems where a held handle goes stale.
	ForceReopen bool

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// RunStatus is a point-in-time snapshot of one observed run.
type RunStatus struct {
	Directory string
	State     State
}

// Watcher coordinates a crawler and one reader goroutine per
// discovered run, multiplexing everything onto a single event
// channel. Create with New, drive with Run, consume Events.
type Watcher struct {
	options Options
	events  chan Event

	mu   sync.Mutex
	runs map[string]State
}

// New creates a Watcher. Run must be called before events flow.
func New(options Options) *Watcher {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Watcher{
		options: options,
		events:  make(chan Event, eventBufferSize),
		runs:    map[string]State{},
	}
}

// Events returns the channel every run's events arrive on. It is
// closed after Run returns, once all readers have stopped.
func (w *Watcher) Events() <-chan Event { return w.events }

// Runs returns a snapshot of all observed runs, sorted by directory.
func (w *Watcher) Runs() []RunStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	statuses := make([]RunStatus, 0, len(w.runs))
	for directory, state := range w.runs {
		statuses = append(statuses, RunStatus{Directory: directory, State: state})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Directory < statuses[j].Directory
	})
	return statuses
}

// Run drives the watcher until ctx is cancelled. It owns the crawler
// goroutine and spawns one reader per discovered run; reader events
// pass through the coordinator so it can track each run's state
// before forwarding to the consumer.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.events)

	var readers sync.WaitGroup
	defer readers.Wait()

	// Reader contexts descend from a separate cancel so the deferred
	// Wait above observes cancellation promptly.
	readerCtx, cancelReaders := context.WithCancel(ctx)
	defer cancelReaders()

	discovered := make(chan []string, 1)
	crawler := NewCrawler(w.options.Root, w.options.CrawlInterval, w.options.Clock, w.options.Logger)
	crawlerDone := make(chan struct{})
	go func() {
		defer close(crawlerDone)
		crawler.Run(ctx, discovered)
	}()

	internal := make(chan Event, eventBufferSize)

	for {
		select {
		case batch := <-discovered:
			for _, directory := range batch {
				w.startReader(readerCtx, &readers, directory, internal)
			}

		case event := <-internal:
			w.observe(event)
			select {
			case w.events <- event:
			case <-ctx.Done():
				<-crawlerDone
				return
			}

		case <-ctx.Done():
			<-crawlerDone
			return
		}
	}
}

// startReader registers a run in Discovering state and launches its
// reader goroutine. A directory already present (in any state,
// Completed included) is ignored: completed runs stay completed.
func (w *Watcher) startReader(ctx context.Context, readers *sync.WaitGroup, directory string, internal chan<- Event) {
	w.mu.Lock()
	if _, exists := w.runs[directory]; exists {
		w.mu.Unlock()
		return
	}
	w.runs[directory] = Discovering
	w.mu.Unlock()

	w.options.Logger.Info("run discovered", "run", directory)

	reader := NewReader(directory, w.options.PollInterval, w.options.ForceReopen, w.options.Clock, w.options.Logger)
	readers.Add(1)
	go func() {
		defer readers.Done()
		reader.Run(ctx, internal)
	}()
}

// observe advances the run state machine as events pass through.
func (w *Watcher) observe(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch event.(type) {
	case HeaderEvent:
		if w.runs[event.Directory()] == Discovering {
			w.runs[event.Directory()] = Tailing
		}
	case DoneEvent:
		w.runs[event.Directory()] = Completed
	}
}
