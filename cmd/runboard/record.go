// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/runboard/runboard/cmd/runboard/cli"
	"github.com/runboard/runboard/lib/config"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/record"
)

func newRecordCommand(cfg *config.Config) *cli.Command {
	root := cfg.Paths.Root
	steps := 100
	interval := 100 * time.Millisecond
	return &cli.Command{
		Name:    "record",
		Summary: "write a synthetic demo run",
		Description: "Writes a demo run with decaying losses, a rising learning-rate\n" +
			"column, and a periodic tensor visualization. Point the watch\n" +
			"command at the same root to see it stream. With no directory\n" +
			"argument, a timestamped directory is created under the root.",
		Usage: "runboard record [directory] [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("record", pflag.ContinueOnError)
			flags.StringVar(&root, "root", root, "base directory for the demo run")
			flags.IntVar(&steps, "steps", steps, "number of metric rows to write")
			flags.DurationVar(&interval, "interval", interval, "delay between rows")
			return flags
		},
		Examples: []cli.Example{
			{Description: "write a quick demo run", Command: "runboard record --steps 50 --interval 50ms"},
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return cli.Validation("record takes at most one directory argument")
			}
			if steps <= 0 {
				return cli.Validation("--steps must be positive")
			}
			if len(args) == 1 {
				return recordDemo(args[0], false, steps, interval)
			}
			return recordDemo(filepath.Join(root, "demo"), true, steps, interval)
		},
	}
}

func recordDemo(base string, timestampDir bool, steps int, interval time.Duration) error {
	// An explicit directory is recorded into exactly, so an existing
	// run there must not be clobbered. Timestamped directories are
	// fresh by construction.
	if !timestampDir {
		if err := checkNotRecorded(base); err != nil {
			return err
		}
	}
	writer, err := record.Open(base, record.Options{
		Columns:      []string{"train.loss", "val.loss", "lr"},
		Meta:         run.Meta{"optimizer": "demo-sgd", "batch_size": 32},
		TimestampDir: timestampDir,
	})
	if err != nil {
		return cli.Internal("creating demo run: %v", err)
	}
	defer writer.Close()
	fmt.Println(writer.Directory())

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	weights := make([]float64, 64)

	for step := 0; step < steps; step++ {
		decay := math.Exp(-float64(step) / float64(steps) * 3)
		points := map[string]float64{
			"train.loss": 2.5*decay + rng.NormFloat64()*0.05,
			"lr":         0.1 * decay,
		}
		// Validation runs less often than training, like a real loop.
		if step%5 == 0 {
			points["val.loss"] = 2.7*decay + rng.NormFloat64()*0.02
		}
		if err := writer.Append(points); err != nil {
			return cli.Internal("appending step %d: %v", step, err)
		}

		if step%10 == 0 {
			for i := range weights {
				weights[i] = math.Sin(float64(i)/8+float64(step)/10) + rng.NormFloat64()*0.1
			}
			if err := writer.Tensor("weights", weights, map[string]any{"shape": []any{8, 8}}); err != nil {
				return cli.Internal("snapshotting weights: %v", err)
			}
		}
		time.Sleep(interval)
	}

	if err := writer.Close(); err != nil {
		return cli.Internal("finishing demo run: %v", err)
	}
	return nil
}

// checkNotRecorded fails when directory already holds a run. Opening
// the writer there would truncate the existing metrics log.
func checkNotRecorded(directory string) error {
	if _, err := os.Stat(filepath.Join(directory, run.MetricsFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return cli.Transient("checking %s: %v", directory, err)
	}
	meta, err := run.ReadMeta(directory)
	if err == nil && meta.Finished() {
		return cli.Conflict("%s already holds a finished run", directory)
	}
	return cli.Conflict("%s already holds a run", directory)
}
