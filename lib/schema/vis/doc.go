// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package vis defines the visualization artifact format: the payload
// container written per snapshot, the frozen-source file, and the
// append-only index that pollers watch for changes.
//
// Inside a run's visualizations/ directory:
//
//	index         one "name\tversion" line appended per snapshot
//	<name>.viz    payload container (compressed CBOR call snapshot)
//	<name>.src    frozen source text, written once per name
//
// The index is the sole change-detection signal. It is append-only, so
// its byte size grows on every snapshot — pollers that cannot trust
// mtimes (SSHFS, NFS) stat the index and re-read it only when the size
// differs. Versions are per-name, monotonically increasing, and
// fixed-width so the index stays trivially greppable.
//
// A payload container is:
//
//	4 bytes  magic "RBV1"
//	1 byte   compression tag
//	4 bytes  uncompressed body size, big-endian
//	n bytes  body: CBOR-encoded Payload
//
// The uncompressed size is verified on read; a mismatch or short file
// is reported as [ErrTruncatedPayload], which pollers treat as a write
// in progress and retry on the next tick.
//
// A visualization name is bound to one function identity for the life
// of the run, enforced by the BLAKE3 hash of the frozen source. The
// source file is shared by all snapshots under the name, which is why
// rebinding is rejected rather than overwritten.
package vis
