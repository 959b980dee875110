// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/runboard/runboard/cmd/runboard/cli"
	"github.com/runboard/runboard/lib/schema/run"
)

func newAnnotateCommand() *cli.Command {
	return &cli.Command{
		Name:    "annotate",
		Summary: "set a run's note",
		Description: "Sets the note field of a run's metadata. The note is the one\n" +
			"observer-side field: the writer never touches it, so annotating\n" +
			"a live run is safe. An empty note clears the annotation.",
		Usage: "runboard annotate <run-directory> [note...]",
		Examples: []cli.Example{
			{Description: "mark a promising run", Command: "runboard annotate /data/experiments/sweep-7/lr-0.01 best so far"},
			{Description: "clear the note", Command: "runboard annotate /data/experiments/sweep-7/lr-0.01"},
		},
		Run: func(args []string) error {
			if len(args) < 1 {
				return cli.Validation("annotate requires a run directory")
			}
			directory := args[0]
			if _, err := os.Stat(filepath.Join(directory, run.MetricsFile)); err != nil {
				if os.IsNotExist(err) {
					return cli.NotFound("%s is not a run directory", directory)
				}
				return cli.Transient("checking %s: %v", directory, err)
			}

			meta, err := run.ReadMeta(directory)
			if err != nil {
				return cli.Internal("reading metadata: %v", err)
			}
			note := strings.Join(args[1:], " ")
			if note == "" {
				delete(meta, run.KeyNote)
			} else {
				meta[run.KeyNote] = note
			}
			if err := run.WriteMeta(directory, meta); err != nil {
				return cli.Internal("writing metadata: %v", err)
			}
			return nil
		},
	}
}
