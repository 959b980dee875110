// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package record is the writer side of the run protocol: it owns one
// run's directory for the lifetime of a training process and appends
// to it with zero coordination — no locks, no signals, nothing but
// the filesystem.
//
// A [Writer] appends rows to the metrics log (flushed per row, so a
// crash loses at most the row being written), maintains the metadata
// document, and snapshots visualizations. The observer process never
// talks back: the writer never reads its own files, and readers never
// write them.
//
// The typical training loop logs every step cheaply through the
// averaging accumulator and persists a summary row per epoch:
//
//	writer, err := record.Open("experiments/mnist", record.Options{
//	    Meta: run.Meta{"lr": 0.001},
//	    TimestampDir: true,
//	})
//	defer writer.Close()
//	for batch := range batches {
//	    writer.UpdateAverage(map[string]float64{"loss": loss})
//	    if writer.RateLimit(30 * time.Second) {
//	        writer.Append(nil) // average so far, accumulator reset
//	    }
//	}
//
// Close (idempotent, safe under defer alongside an explicit call)
// appends the completion marker — a bare line terminator — and
// rewrites the metadata with finished=true. The marker is the only
// signal observers need: its presence promises no further appends.
package record
