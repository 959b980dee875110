// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Command runboard records and observes training runs: an
// append-only metrics protocol on the writer side and a polling
// observer on the reader side, meeting only at the filesystem.
package main

import (
	"os"
	"strings"

	"github.com/runboard/runboard/cmd/runboard/cli"
	"github.com/runboard/runboard/lib/config"
)

func main() {
	os.Exit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	configPath, args := extractConfig(args)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cli.Exit(cli.Validation("loading configuration: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(cli.Validation("invalid configuration: %v", err))
	}

	logger := cli.NewLogger(cfg.LogLevel())

	root := &cli.Command{
		Name:    "runboard",
		Summary: "record and observe training runs",
		Description: "Runboard records training metrics into append-only logs and\n" +
			"observes whole trees of runs by polling, which works on SSHFS\n" +
			"and NFS mounts where file notification never fires.",
		Subcommands: []*cli.Command{
			newListCommand(cfg),
			newTailCommand(cfg, logger),
			newWatchCommand(cfg, logger),
			newRecordCommand(cfg),
			newAnnotateCommand(),
			newDumpCommand(),
		},
	}
	return cli.Exit(root.Execute(args))
}

// extractConfig pulls a global --config flag out of the argument
// list before dispatch, so it works in any position for any
// subcommand.
func extractConfig(args []string) (string, []string) {
	remaining := make([]string, 0, len(args))
	configPath := ""
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return configPath, remaining
}
