// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/runboard/runboard/cmd/runboard/cli"
	"github.com/runboard/runboard/lib/config"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/watch"
)

// eventLine is the JSON-lines form of a watch event, one object per
// line on stdout. The shape is the collaboration contract for
// frontends driving the observer over a pipe.
type eventLine struct {
	Run    string     `json:"run"`
	Type   string     `json:"type"`
	Meta   run.Meta   `json:"meta,omitempty"`
	Header []string   `json:"header,omitempty"`
	Rows   [][]string `json:"rows,omitempty"`
	Error  string     `json:"error,omitempty"`
}

func newWatchCommand(cfg *config.Config, logger *slog.Logger) *cli.Command {
	root := cfg.Paths.Root
	jsonLines := false
	return &cli.Command{
		Name:    "watch",
		Summary: "stream every run under the root as it progresses",
		Usage:   "runboard watch [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
			flags.StringVar(&root, "root", root, "run tree to watch")
			flags.BoolVar(&jsonLines, "json", false, "emit JSON lines instead of text")
			return flags
		},
		Examples: []cli.Example{
			{Description: "watch the configured root", Command: "runboard watch"},
			{Description: "feed a frontend over a pipe", Command: "runboard watch --json | my-dashboard"},
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("watch takes no positional arguments")
			}
			if _, err := os.Stat(root); err != nil {
				if os.IsNotExist(err) {
					return cli.NotFound("run tree %s does not exist", root)
				}
				return cli.Transient("checking %s: %v", root, err)
			}
			return watchTree(cfg, root, jsonLines, logger)
		},
	}
}

func watchTree(cfg *config.Config, root string, jsonLines bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := watch.New(watch.Options{
		Root:          root,
		PollInterval:  cfg.PollInterval(),
		CrawlInterval: cfg.CrawlInterval(),
		ForceReopen:   cfg.Observer.ForceReopen,
		Logger:        logger,
	})
	go watcher.Run(ctx)

	encoder := json.NewEncoder(os.Stdout)
	for event := range watcher.Events() {
		if jsonLines {
			if err := encoder.Encode(toLine(event)); err != nil {
				return cli.Internal("writing event: %v", err)
			}
			continue
		}
		printEvent(event)
	}
	return nil
}

func toLine(event watch.Event) eventLine {
	line := eventLine{Run: event.Directory()}
	switch event := event.(type) {
	case watch.MetaEvent:
		line.Type = "meta"
		line.Meta = event.Meta
	case watch.HeaderEvent:
		line.Type = "header"
		line.Header = event.Header
	case watch.RowsEvent:
		line.Type = "rows"
		line.Rows = make([][]string, len(event.Rows))
		for i, row := range event.Rows {
			fields := make([]string, len(row))
			for j, value := range row {
				fields[j] = run.FormatValue(value)
			}
			line.Rows[i] = fields
		}
	case watch.DoneEvent:
		line.Type = "done"
		if event.Err != nil {
			line.Error = event.Err.Error()
		}
	}
	return line
}

func printEvent(event watch.Event) {
	switch event := event.(type) {
	case watch.MetaEvent:
		state := "running"
		if event.Meta.Finished() {
			state = "finished"
		}
		fmt.Printf("%s\tmeta\t%s\n", event.Dir, state)
	case watch.HeaderEvent:
		fmt.Printf("%s\theader\t%s\n", event.Dir, strings.Join(event.Header, ","))
	case watch.RowsEvent:
		for _, row := range event.Rows {
			fields := make([]string, len(row))
			for i, value := range row {
				fields[i] = run.FormatValue(value)
			}
			fmt.Printf("%s\trow\t%s\n", event.Dir, strings.Join(fields, ","))
		}
	case watch.DoneEvent:
		if event.Err != nil {
			fmt.Printf("%s\tfailed\t%v\n", event.Dir, event.Err)
			return
		}
		fmt.Printf("%s\tdone\n", event.Dir)
	}
}
