// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runboard/runboard/lib/atomicfile"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/lib/schema/vis"
)

// Recorded identifies the visualization function being snapshotted.
type Recorded struct {
	// Func is the function name: a built-in renderer name, or the
	// entry point inside Source.
	Func string

	// Builtin marks observer-shipped functions, which carry no
	// source of their own.
	Builtin bool

	// Source is the function's source text, frozen next to the run
	// on first use so later edits to the live code cannot change the
	// meaning of already-written snapshots. Required unless Builtin.
	Source []byte
}

// Tensor snapshots a numeric array under the built-in tensor
// renderer. Kwargs pass display options through to the observer
// (grid shape, colormap).
func (w *Writer) Tensor(name string, values []float64, kwargs map[string]any) error {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return w.Visualize(name, Recorded{Func: "tensor", Builtin: true}, args, kwargs)
}

// Visualize snapshots one visualization call: the function identity,
// its arguments, and (for user functions, once) its frozen source.
//
// The first use of a name binds it to the function's source identity
// for the life of the run; a later call under the same name with a
// different identity fails with *IdentityError and writes nothing.
// Each successful call replaces the payload atomically and appends a
// version line to the index, which is what pollers watch.
func (w *Writer) Visualize(name string, fn Recorded, args []any, kwargs map[string]any) error {
	if w.closed {
		return errors.New("record: writer is closed")
	}
	if err := vis.ValidateName(name); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	if fn.Func == "" {
		return errors.New("record: visualization function name is empty")
	}
	if !fn.Builtin && len(fn.Source) == 0 {
		return fmt.Errorf("record: visualization %q: user functions require source", name)
	}

	identity := identityHash(fn)
	if registered, ok := w.visIdentity[name]; ok {
		if registered != identity {
			return &IdentityError{Name: name, Registered: registered, Attempted: identity}
		}
	}

	visDirectory := filepath.Join(w.directory, run.VisualizationsDir)
	if err := os.MkdirAll(visDirectory, 0o755); err != nil {
		return fmt.Errorf("creating visualizations directory: %w", err)
	}

	if _, ok := w.visIdentity[name]; !ok {
		if !fn.Builtin {
			if err := atomicfile.WriteFile(vis.SourcePath(visDirectory, name), fn.Source, 0o644); err != nil {
				return fmt.Errorf("freezing source for %q: %w", name, err)
			}
		}
		w.visIdentity[name] = identity
	}

	payload := vis.Payload{
		Func:       fn.Func,
		Builtin:    fn.Builtin,
		SourceHash: identity.String(),
		Args:       args,
		Kwargs:     kwargs,
	}
	if err := vis.WritePayload(visDirectory, name, payload, vis.CompressionLZ4); err != nil {
		return err
	}

	w.visVersion[name]++
	if err := vis.AppendIndex(visDirectory, name, w.visVersion[name]); err != nil {
		return err
	}
	return nil
}

// identityHash computes the identity of a visualization function.
func identityHash(fn Recorded) vis.SourceHash {
	if fn.Builtin {
		return vis.HashBuiltin(fn.Func)
	}
	return vis.HashSource(fn.Source)
}
