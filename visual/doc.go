// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package visual loads and renders visualization snapshots from a
// run's visualizations directory.
//
// The Loader polls the byte size of the append-only index file; any
// growth means at least one payload was rewritten. Changed payloads
// are decoded, their frozen source verified against the recorded
// identity hash, and handed to a renderer looked up by function name
// in the Registry. A payload caught mid-write decodes as truncated
// and is retried on the next tick; that is the normal cost of reading
// files another process is writing, not an error worth reporting.
package visual
