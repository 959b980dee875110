// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"fmt"
	"os"

	"github.com/runboard/runboard/tail"
)

// Strategy is how a reader gets at the bytes of a metrics log on each
// poll tick. Two implementations exist because network filesystems
// disagree about held file handles: a local filesystem serves appends
// through a persistent handle, while some SSHFS and NFS configurations
// keep returning stale content until the file is reopened.
//
// A missing metrics log is not an error for either implementation —
// the run directory may exist before the writer creates the log — so
// Scan returns an empty result until the file appears.
type Strategy interface {
	// Scan hands the current file contents to the tailer and returns
	// whatever completed since the previous call.
	Scan(tailer *tail.Tailer) (tail.Result, error)

	// Close releases any held file handle. Scan must not be called
	// after Close.
	Close() error
}

// NewStrategy returns the polling strategy for a metrics log path.
// forceReopen selects Reopen for filesystems where a held handle goes
// stale.
func NewStrategy(path string, forceReopen bool) Strategy {
	if forceReopen {
		return &Reopen{path: path}
	}
	return &Persistent{path: path}
}

// Persistent keeps one file handle open across polls. The tailer
// seeks it back to the resume offset on every Scan, so each tick
// costs one seek and one read of the new suffix.
type Persistent struct {
	path string
	file *os.File
}

func (p *Persistent) Scan(tailer *tail.Tailer) (tail.Result, error) {
	if p.file == nil {
		file, err := os.Open(p.path)
		if err != nil {
			if os.IsNotExist(err) {
				return tail.Result{}, nil
			}
			return tail.Result{}, fmt.Errorf("opening metrics log: %w", err)
		}
		p.file = file
	}
	return tailer.Scan(p.file)
}

func (p *Persistent) Close() error {
	if p.file == nil {
		return nil
	}
	file := p.file
	p.file = nil
	return file.Close()
}

// Reopen stats the file each tick and reopens it only when the size
// changed. The size check keeps idle runs cheap: no open, no read.
// Growth is the only change an append-only log exhibits, so size is a
// complete change signal.
type Reopen struct {
	path string
	size int64
}

func (r *Reopen) Scan(tailer *tail.Tailer) (tail.Result, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return tail.Result{}, nil
		}
		return tail.Result{}, fmt.Errorf("checking metrics log: %w", err)
	}
	if info.Size() == r.size {
		return tail.Result{}, nil
	}

	file, err := os.Open(r.path)
	if err != nil {
		return tail.Result{}, fmt.Errorf("reopening metrics log: %w", err)
	}
	defer file.Close()

	result, err := tailer.Scan(file)
	if err != nil {
		return result, err
	}
	r.size = info.Size()
	return result, nil
}

func (r *Reopen) Close() error { return nil }
