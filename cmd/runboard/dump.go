// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runboard/runboard/cmd/runboard/cli"
	"github.com/runboard/runboard/lib/codec"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/lib/schema/vis"
)

func newDumpCommand() *cli.Command {
	return &cli.Command{
		Name:    "dump",
		Summary: "print a visualization payload in diagnostic notation",
		Description: "Prints the decoded contents of a run's visualization payload\n" +
			"in CBOR diagnostic notation. With no name, lists the run's\n" +
			"visualizations and their current versions.",
		Usage: "runboard dump <run-directory> [name]",
		Examples: []cli.Example{
			{Description: "list a run's visualizations", Command: "runboard dump /data/experiments/sweep-7/lr-0.01"},
			{Description: "inspect one payload", Command: "runboard dump /data/experiments/sweep-7/lr-0.01 weights"},
		},
		Run: func(args []string) error {
			switch len(args) {
			case 1:
				out, err := dumpIndex(args[0])
				if err != nil {
					return err
				}
				fmt.Print(out)
				return nil
			case 2:
				out, err := dumpPayload(args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			default:
				return cli.Validation("dump requires a run directory and an optional visualization name")
			}
		},
	}
}

func dumpIndex(directory string) (string, error) {
	if _, err := os.Stat(filepath.Join(directory, run.MetricsFile)); err != nil {
		return "", cli.NotFound("%s is not a run directory", directory)
	}
	versions, err := vis.ReadIndex(filepath.Join(directory, run.VisualizationsDir))
	if err != nil {
		return "", cli.Internal("reading visualization index: %v", err)
	}
	if len(versions) == 0 {
		return "", cli.NotFound("%s has no visualizations", directory)
	}

	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)

	var out strings.Builder
	for _, name := range names {
		fmt.Fprintf(&out, "%s\tv%d\n", name, versions[name])
	}
	return out.String(), nil
}

func dumpPayload(directory, name string) (string, error) {
	visDirectory := filepath.Join(directory, run.VisualizationsDir)
	body, err := vis.ReadPayloadRaw(visDirectory, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", cli.NotFound("run %s has no visualization %q", directory, name)
		}
		if errors.Is(err, vis.ErrTruncatedPayload) {
			return "", cli.Transient("payload %q is mid-write, retry: %v", name, err)
		}
		return "", cli.Internal("reading payload %q: %v", name, err)
	}
	notation, err := codec.Diagnose(body)
	if err != nil {
		return "", cli.Internal("decoding payload %q: %v", name, err)
	}
	return notation, nil
}
