// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the runboard binary: a
// small command tree over pflag with structured help, categorized
// errors for scripting consumers, and logger construction shared by
// all subcommands.
package cli
