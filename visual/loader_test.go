// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package visual

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/runboard/runboard/lib/atomicfile"
	"github.com/runboard/runboard/lib/clock"
	"github.com/runboard/runboard/lib/schema/run"
	"github.com/runboard/runboard/lib/schema/vis"
	"github.com/runboard/runboard/lib/testutil"
)

const testTimeout = 5 * time.Second

var testEpoch = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

// snapshot writes one tensor payload and its index line, the way the
// recorder does.
func snapshot(t *testing.T, runDirectory, name string, version int, values []any) {
	t.Helper()
	visDirectory := filepath.Join(runDirectory, run.VisualizationsDir)
	if err := os.MkdirAll(visDirectory, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	payload := vis.Payload{Func: "tensor", Builtin: true, Args: values}
	if err := vis.WritePayload(visDirectory, name, payload, vis.CompressionLZ4); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	if err := vis.AppendIndex(visDirectory, name, version); err != nil {
		t.Fatalf("AppendIndex: %v", err)
	}
}

func startLoader(t *testing.T, fakeClock *clock.FakeClock, registry *Registry) (*Loader, chan Rendered) {
	t.Helper()
	if registry == nil {
		registry = NewRegistry()
	}
	loader := NewLoader(registry, time.Second, fakeClock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rendered := make(chan Rendered, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go loader.Run(ctx, rendered)
	return loader, rendered
}

func TestLoaderRendersOnSelect(t *testing.T) {
	runDirectory := t.TempDir()
	snapshot(t, runDirectory, "weights", 1, []any{float64(1), float64(2)})

	loader, rendered := startLoader(t, clock.Fake(testEpoch), nil)
	loader.Select(runDirectory, false)

	got := testutil.RequireReceive(t, rendered, testTimeout, "first snapshot")
	if got.Run != runDirectory || got.Name != "weights" || got.Version != 1 {
		t.Fatalf("rendered = %+v", got)
	}
	if !strings.Contains(got.Summary, "tensor[2]") {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestLoaderSkipsUnchangedIndex(t *testing.T) {
	runDirectory := t.TempDir()
	snapshot(t, runDirectory, "weights", 1, []any{float64(1)})

	fakeClock := clock.Fake(testEpoch)
	loader, rendered := startLoader(t, fakeClock, nil)
	loader.Select(runDirectory, false)
	testutil.RequireReceive(t, rendered, testTimeout, "initial snapshot")

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)

	select {
	case got := <-rendered:
		t.Fatalf("unchanged index re-rendered %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoaderPicksUpNewVersions(t *testing.T) {
	runDirectory := t.TempDir()
	snapshot(t, runDirectory, "weights", 1, []any{float64(1)})

	fakeClock := clock.Fake(testEpoch)
	loader, rendered := startLoader(t, fakeClock, nil)
	loader.Select(runDirectory, false)
	testutil.RequireReceive(t, rendered, testTimeout, "version 1")

	fakeClock.WaitForTimers(1)
	snapshot(t, runDirectory, "weights", 2, []any{float64(1), float64(2), float64(3)})
	fakeClock.Advance(time.Second)

	got := testutil.RequireReceive(t, rendered, testTimeout, "version 2")
	if got.Version != 2 || !strings.Contains(got.Summary, "tensor[3]") {
		t.Fatalf("rendered = %+v", got)
	}
}

func TestLoaderRetriesTruncatedPayload(t *testing.T) {
	runDirectory := t.TempDir()
	snapshot(t, runDirectory, "weights", 1, []any{float64(1), float64(2)})

	// Tear the payload as a mid-replace reader would see it.
	visDirectory := filepath.Join(runDirectory, run.VisualizationsDir)
	path := vis.PayloadPath(visDirectory, "weights")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading payload: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatalf("truncating payload: %v", err)
	}

	fakeClock := clock.Fake(testEpoch)
	loader, rendered := startLoader(t, fakeClock, nil)
	loader.Select(runDirectory, false)

	// The torn payload produces nothing, silently.
	select {
	case got := <-rendered:
		t.Fatalf("torn payload rendered %+v", got)
	case <-time.After(100 * time.Millisecond):
	}

	// Restore the full payload; the retry on the next tick succeeds
	// even though the index size did not change.
	fakeClock.WaitForTimers(1)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("restoring payload: %v", err)
	}
	fakeClock.Advance(time.Second)

	got := testutil.RequireReceive(t, rendered, testTimeout, "retried snapshot")
	if got.Version != 1 {
		t.Fatalf("rendered = %+v", got)
	}
}

func TestLoaderVerifiesFrozenSource(t *testing.T) {
	runDirectory := t.TempDir()
	visDirectory := filepath.Join(runDirectory, run.VisualizationsDir)
	if err := os.MkdirAll(visDirectory, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	source := []byte("func scatter(points []float64) {}")
	if err := atomicfile.WriteFile(vis.SourcePath(visDirectory, "points"), source, 0o644); err != nil {
		t.Fatalf("freezing source: %v", err)
	}
	payload := vis.Payload{
		Func:       "scatter",
		SourceHash: vis.HashSource(source).String(),
	}
	if err := vis.WritePayload(visDirectory, "points", payload, vis.CompressionNone); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	if err := vis.AppendIndex(visDirectory, "points", 1); err != nil {
		t.Fatalf("AppendIndex: %v", err)
	}

	registry := NewRegistry()
	var gotSource []byte
	registry.Register("scatter", func(_ vis.Payload, source []byte) (string, error) {
		gotSource = source
		return "scatter", nil
	})

	loader, rendered := startLoader(t, clock.Fake(testEpoch), registry)
	loader.Select(runDirectory, false)

	testutil.RequireReceive(t, rendered, testTimeout, "user snapshot")
	if string(gotSource) != string(source) {
		t.Fatalf("renderer saw source %q", gotSource)
	}
}

func TestLoaderSkipsTamperedSource(t *testing.T) {
	runDirectory := t.TempDir()
	visDirectory := filepath.Join(runDirectory, run.VisualizationsDir)
	if err := os.MkdirAll(visDirectory, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	source := []byte("func scatter(points []float64) {}")
	if err := atomicfile.WriteFile(vis.SourcePath(visDirectory, "points"), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	payload := vis.Payload{
		Func:       "scatter",
		SourceHash: vis.HashSource(source).String(),
	}
	if err := vis.WritePayload(visDirectory, "points", payload, vis.CompressionNone); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	if err := vis.AppendIndex(visDirectory, "points", 1); err != nil {
		t.Fatalf("AppendIndex: %v", err)
	}

	registry := NewRegistry()
	registry.Register("scatter", func(vis.Payload, []byte) (string, error) {
		return "scatter", nil
	})
	loader, rendered := startLoader(t, clock.Fake(testEpoch), registry)
	loader.Select(runDirectory, false)

	select {
	case got := <-rendered:
		t.Fatalf("tampered source rendered %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoaderScansDoneRunOnce(t *testing.T) {
	runDirectory := t.TempDir()
	snapshot(t, runDirectory, "weights", 1, []any{float64(1)})

	fakeClock := clock.Fake(testEpoch)
	loader, rendered := startLoader(t, fakeClock, nil)
	loader.Select(runDirectory, true)

	testutil.RequireReceive(t, rendered, testTimeout, "one-shot snapshot")

	// A done run is never re-polled: new snapshots go unseen until a
	// fresh Select.
	snapshot(t, runDirectory, "weights", 2, []any{float64(2)})
	select {
	case got := <-rendered:
		t.Fatalf("done run re-rendered %+v", got)
	case <-time.After(100 * time.Millisecond):
	}

	loader.Select(runDirectory, true)
	got := testutil.RequireReceive(t, rendered, testTimeout, "re-selected snapshot")
	if got.Version != 2 {
		t.Fatalf("rendered = %+v", got)
	}
}

func TestLoaderNoRendererIsSkipped(t *testing.T) {
	runDirectory := t.TempDir()
	visDirectory := filepath.Join(runDirectory, run.VisualizationsDir)
	if err := os.MkdirAll(visDirectory, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	payload := vis.Payload{Func: "unknown", Builtin: true}
	if err := vis.WritePayload(visDirectory, "x", payload, vis.CompressionNone); err != nil {
		t.Fatalf("WritePayload: %v", err)
	}
	if err := vis.AppendIndex(visDirectory, "x", 1); err != nil {
		t.Fatalf("AppendIndex: %v", err)
	}

	loader, rendered := startLoader(t, clock.Fake(testEpoch), nil)
	loader.Select(runDirectory, false)

	select {
	case got := <-rendered:
		t.Fatalf("unknown func rendered %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}
