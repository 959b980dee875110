// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/runboard/runboard/cmd/runboard/cli"
	"github.com/runboard/runboard/lib/config"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/watch"
)

func newListCommand(cfg *config.Config) *cli.Command {
	root := cfg.Paths.Root
	return &cli.Command{
		Name:    "list",
		Summary: "list the runs under the root directory",
		Usage:   "runboard list [--root <dir>]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flags.StringVar(&root, "root", root, "run tree to list")
			return flags
		},
		Examples: []cli.Example{
			{Description: "list everything under the configured root", Command: "runboard list"},
			{Description: "list a sweep directory", Command: "runboard list --root /data/experiments/sweep-7"},
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("list takes no positional arguments")
			}
			directories, err := watch.Crawl(root)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return cli.NotFound("run tree %s does not exist", root)
				}
				return cli.Internal("listing %s: %v", root, err)
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tSTATE\tNOTE")
			for _, directory := range directories {
				meta, err := run.ReadMeta(directory)
				if err != nil {
					// Show the run anyway; the metadata may be
					// mid-rewrite.
					meta = run.Meta{}
				}
				name, relErr := filepath.Rel(root, directory)
				if relErr != nil {
					name = directory
				}
				started := ""
				if stamp := meta.Timestamp(); !stamp.IsZero() {
					started = stamp.Local().Format("2006-01-02 15:04:05")
				}
				state := "running"
				if meta.Finished() {
					state = "finished"
				}
				note, _ := meta[run.KeyNote].(string)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, started, state, note)
			}
			return tw.Flush()
		},
	}
}
