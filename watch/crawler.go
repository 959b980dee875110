// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/schema/run"
)

// crawlBatchInterval bounds how long a discovered run waits inside a
// walk before it is flushed to the coordinator. A cold start over a
// slow network mount can take many seconds to walk; batching at this
// interval lets early discoveries start tailing while the walk is
// still going.
const crawlBatchInterval = 500 * time.Millisecond

// Crawler finds run directories under a root by walking for metrics
// log files. It remembers what it has already reported, so each walk
// flushes only new discoveries.
type Crawler struct {
	root     string
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	seen map[string]bool
}

// NewCrawler creates a crawler over root that re-walks every
// interval.
func NewCrawler(root string, interval time.Duration, clk clock.Clock, logger *slog.Logger) *Crawler {
	return &Crawler{
		root:     root,
		interval: interval,
		clock:    clk,
		logger:   logger,
		seen:     map[string]bool{},
	}
}

// Run walks the tree repeatedly until ctx is cancelled, sending each
// batch of newly discovered run directories on discovered. Re-walks
// run on a fixed ticker schedule: a slow walk eats into the following
// interval instead of stretching it.
func (c *Crawler) Run(ctx context.Context, discovered chan<- []string) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.crawl(ctx, discovered); err != nil && ctx.Err() == nil {
			c.logger.Warn("crawl failed", "root", c.root, "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// crawl performs one walk, flushing new run directories in batches no
// more than crawlBatchInterval apart.
func (c *Crawler) crawl(ctx context.Context, discovered chan<- []string) error {
	var batch []string
	lastFlush := c.clock.Now()

	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		select {
		case discovered <- batch:
			batch = nil
			lastFlush = c.clock.Now()
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := filepath.WalkDir(c.root, func(path string, entry fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// A subtree that vanished mid-walk or denies access is
			// skipped, not fatal: the rest of the tree still counts.
			c.logger.Debug("walk error", "path", path, "error", err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if entry.IsDir() || entry.Name() != run.MetricsFile {
			return nil
		}

		directory := filepath.Dir(path)
		if c.seen[directory] {
			return nil
		}
		c.seen[directory] = true
		batch = append(batch, directory)

		if c.clock.Now().Sub(lastFlush) >= crawlBatchInterval {
			if !flush() {
				return ctx.Err()
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !flush() {
		return ctx.Err()
	}
	return nil
}

// Crawl performs a single synchronous pass and returns every run
// directory under root, discovered or not before. Used by one-shot
// consumers like the listing command.
func Crawl(root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("crawling %s: %w", root, err)
	}
	var directories []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.IsDir() && entry.Name() == run.MetricsFile {
			directories = append(directories, filepath.Dir(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("crawling %s: %w", root, err)
	}
	return directories, nil
}
