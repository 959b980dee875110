// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides runboard's standard CBOR encoding configuration.
//
// Runboard uses two serialization formats with a clear boundary:
//
//   - Text for the human-facing run contract: the metrics CSV and the
//     meta.json document, both of which users inspect and occasionally
//     hand-edit.
//   - CBOR for visualization payloads: snapshots of function-call
//     arguments (tensors, arrays, arbitrary keyword options) written by
//     the trainer and re-read by the observer.
//
// This package provides the shared CBOR encoding and decoding modes so
// that writer and observer encode identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes — which matters here because the observer detects payload
// changes by byte size, and a logically unchanged snapshot must not
// re-encode to a different size.
package codec
