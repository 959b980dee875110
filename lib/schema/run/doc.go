// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package run defines the on-disk contract for a run directory: the
// file names, the metadata document, the typed cell values of the
// metrics log, and the header escaping rules.
//
// A run directory contains:
//
//	stats.csv        append-only metrics log (the run marker)
//	meta.json        rewritten metadata document
//	visualizations/  payload + frozen-source artifacts (see lib/schema/vis)
//
// The metrics file is CSV-like: row 0 is the header (column names,
// commas escaped as `\,`), every data row has exactly one field per
// header column plus nothing else, and a trailing bare line terminator
// marks the run as complete. Any line missing its terminator is a
// write in progress and is not yet readable.
//
// Both the writer (package record) and the observer (packages tail,
// watch, visual) depend on this package; neither depends on the other.
package run
