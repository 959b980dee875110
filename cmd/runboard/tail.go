// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/runboard/runboard/cmd/runboard/cli"
	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/config"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/visual"
	"github.com/runboard/runboard/watch"
)

func newTailCommand(cfg *config.Config, logger *slog.Logger) *cli.Command {
	interval := cfg.PollInterval()
	reopen := cfg.Observer.ForceReopen
	withVis := false
	return &cli.Command{
		Name:    "tail",
		Summary: "stream one run's metrics to stdout",
		Usage:   "runboard tail [flags] <run-directory>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("tail", pflag.ContinueOnError)
			flags.DurationVar(&interval, "poll", interval, "poll interval")
			flags.BoolVar(&reopen, "reopen", reopen, "reopen the log on every poll (SSHFS/NFS)")
			flags.BoolVar(&withVis, "vis", false, "also stream rendered visualization snapshots")
			return flags
		},
		Examples: []cli.Example{
			{Description: "follow a run until it finishes", Command: "runboard tail /data/experiments/sweep-7/lr-0.01"},
			{Description: "include visualization summaries", Command: "runboard tail --vis /data/experiments/sweep-7/lr-0.01"},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return cli.Validation("tail takes exactly one run directory")
			}
			directory := args[0]
			if _, err := os.Stat(filepath.Join(directory, run.MetricsFile)); err != nil {
				if os.IsNotExist(err) {
					return cli.NotFound("%s has no %s", directory, run.MetricsFile)
				}
				return cli.Transient("checking %s: %v", directory, err)
			}
			return tailRun(cfg, directory, interval, reopen, withVis, logger)
		},
	}
}

func tailRun(cfg *config.Config, directory string, interval time.Duration, reopen, withVis bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := watch.NewReader(directory, interval, reopen, clock.Real(), logger)
	events := make(chan watch.Event, 16)
	go reader.Run(ctx, events)

	rendered := make(chan visual.Rendered, 16)
	if withVis {
		loader := visual.NewLoader(visual.NewRegistry(), cfg.VisualizationInterval(), clock.Real(), logger)
		go loader.Run(ctx, rendered)
		loader.Select(directory, false)
	}

	for {
		select {
		case event := <-events:
			switch event := event.(type) {
			case watch.HeaderEvent:
				fmt.Println(strings.Join(event.Header, "\t"))
			case watch.RowsEvent:
				for _, row := range event.Rows {
					fields := make([]string, len(row))
					for i, value := range row {
						fields[i] = run.FormatValue(value)
					}
					fmt.Println(strings.Join(fields, "\t"))
				}
			case watch.DoneEvent:
				if event.Err != nil {
					return cli.Internal("run %s: %v", directory, event.Err)
				}
				return nil
			}
		case snapshot := <-rendered:
			fmt.Printf("# %s v%d: %s\n", snapshot.Name, snapshot.Version, snapshot.Summary)
		case <-ctx.Done():
			return nil
		}
	}
}
