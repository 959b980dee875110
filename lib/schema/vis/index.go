// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package vis

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IndexFile is the append-only table of visualization names and
// versions inside a run's visualizations directory.
const IndexFile = "index"

// IndexPath returns the index path for a visualizations directory.
func IndexPath(visDirectory string) string {
	return filepath.Join(visDirectory, IndexFile)
}

// AppendIndex appends one "name\tversion" line to the index. Versions
// are fixed-width so every line has a predictable shape; because the
// index only ever grows, its byte size changes on every snapshot,
// which is the change signal pollers rely on where mtimes are
// untrustworthy.
func AppendIndex(visDirectory, name string, version int) error {
	file, err := os.OpenFile(IndexPath(visDirectory), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening visualization index: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%s\t%08d\n", name, version); err != nil {
		return fmt.Errorf("appending to visualization index: %w", err)
	}
	return nil
}

// ReadIndex parses the index into the latest version per name. A
// missing index means no visualizations yet: empty map, no error.
// A trailing line without its terminator is a write in progress and
// is ignored; complete lines that do not parse are skipped rather
// than fatal, since the index is advisory (the payloads are the
// durable data).
func ReadIndex(visDirectory string) (map[string]int, error) {
	data, err := os.ReadFile(IndexPath(visDirectory))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, fmt.Errorf("reading visualization index: %w", err)
	}

	versions := map[string]int{}
	content := string(data)
	for {
		newline := strings.IndexByte(content, '\n')
		if newline < 0 {
			// Unterminated tail: mid-append.
			break
		}
		line := content[:newline]
		content = content[newline+1:]

		name, field, ok := strings.Cut(line, "\t")
		if !ok || name == "" {
			continue
		}
		version, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			continue
		}
		// Later lines carry higher versions, so last write wins.
		versions[name] = version
	}
	return versions, nil
}

// IndexSize returns the current byte size of the index, or 0 when it
// does not exist yet. This is the poller's cheap change probe.
func IndexSize(visDirectory string) (int64, error) {
	info, err := os.Stat(IndexPath(visDirectory))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat visualization index: %w", err)
	}
	return info.Size(), nil
}
