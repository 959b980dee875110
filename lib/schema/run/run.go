// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/runboard/runboard/lib/atomicfile"
)

// File names inside a run directory. These are protocol constants:
// the crawler discovers runs by the presence of MetricsFile, so
// renaming it orphans every existing run.
const (
	// MetricsFile is the append-only metrics log and the run marker.
	MetricsFile = "stats.csv"

	// MetaFile is the metadata document, rewritten on every change.
	MetaFile = "meta.json"

	// VisualizationsDir holds payload and frozen-source artifacts.
	VisualizationsDir = "visualizations"
)

// Reserved metadata keys. All other keys are user hyper-parameters.
const (
	// KeyTimestamp is the run creation time, RFC 3339.
	KeyTimestamp = "timestamp"

	// KeyFinished is true once the writer has completed the run.
	KeyFinished = "finished"

	// KeyNote is the observer-editable annotation. It is the only
	// field a reader process ever writes into a run directory.
	KeyNote = "note"
)

// Meta is a run's metadata document: reserved keys plus user
// hyper-parameters (numbers, strings, booleans).
type Meta map[string]any

// Finished reports whether the writer has marked the run complete.
func (m Meta) Finished() bool {
	finished, _ := m[KeyFinished].(bool)
	return finished
}

// Timestamp returns the run creation time, or the zero time if the
// key is absent or unparseable.
func (m Meta) Timestamp() time.Time {
	raw, _ := m[KeyTimestamp].(string)
	stamp, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return stamp
}

// ReadMeta loads the metadata document from a run directory. A missing
// file is not an error: the writer may not have created it yet, so an
// empty document is returned. The file is parsed as JSONC — the
// annotation field is hand-editable, and tolerating comments keeps a
// stray "// why I aborted this run" from breaking every observer.
func ReadMeta(directory string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(directory, MetaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", MetaFile, err)
	}

	meta := Meta{}
	if err := json.Unmarshal(jsonc.ToJSON(data), &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", MetaFile, err)
	}
	return meta, nil
}

// WriteMeta atomically replaces the metadata document. Keys are
// sorted and the output indented so diffs between rewrites stay
// readable.
func WriteMeta(directory string, meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", MetaFile, err)
	}
	data = append(data, '\n')

	if err := atomicfile.WriteFile(filepath.Join(directory, MetaFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", MetaFile, err)
	}
	return nil
}

// Timestamp formats t in the canonical metadata form: UTC, RFC 3339
// with sub-second precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// TimestampDir formats t as a directory name: the canonical timestamp
// with characters invalid or awkward in paths replaced.
func TimestampDir(t time.Time) string {
	name := t.UTC().Format("2006-01-02_15-04-05.000000000")
	return name
}
