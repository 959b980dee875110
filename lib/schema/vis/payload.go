// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package vis

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/runboard/runboard/lib/atomicfile"
	"github.com/runboard/runboard/lib/codec"
)

// payloadMagic opens every payload container. A file that does not
// start with it was written by a different protocol version (or is
// not a payload at all) and must not be confused with a truncated
// write.
var payloadMagic = [4]byte{'R', 'B', 'V', '1'}

// Payload is one visualization snapshot: the function identity plus
// the call arguments, serialized as CBOR inside the container.
type Payload struct {
	// Func is the function name. For built-ins it selects the
	// observer's built-in renderer; for user functions it names the
	// entry point inside the frozen source.
	Func string `cbor:"func"`

	// Builtin marks functions shipped with the observer. Built-in
	// payloads carry no frozen source.
	Builtin bool `cbor:"builtin,omitempty"`

	// SourceHash is the hex BLAKE3 identity of the frozen source
	// (or of the function name, for built-ins).
	SourceHash string `cbor:"source_hash"`

	// Args are the positional call arguments.
	Args []any `cbor:"args,omitempty"`

	// Kwargs are the keyword call arguments.
	Kwargs map[string]any `cbor:"kwargs,omitempty"`
}

// ErrTruncatedPayload reports a payload file read mid-write: short
// header, short body, or a body that decompresses to the wrong size.
// Pollers retry the same entry on the next tick instead of surfacing
// this.
var ErrTruncatedPayload = errors.New("vis: truncated payload")

// ValidateName checks a visualization name: non-empty, no tabs (the
// index field separator), no path separators (names become file
// names).
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("visualization name is empty")
	}
	if strings.ContainsAny(name, "\t\n") {
		return fmt.Errorf("visualization name %q contains tab or newline", name)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("visualization name %q is not a valid file name", name)
	}
	return nil
}

// PayloadPath returns the payload container path for a name.
func PayloadPath(visDirectory, name string) string {
	return filepath.Join(visDirectory, name+".viz")
}

// SourcePath returns the frozen-source path for a name.
func SourcePath(visDirectory, name string) string {
	return filepath.Join(visDirectory, name+".src")
}

// WritePayload encodes and atomically replaces the payload container
// for name. The body is compressed with the requested tag, falling
// back to no compression when the data is incompressible.
//
// Atomic replacement means a reader never sees a half-written
// container through this path; ErrTruncatedPayload exists for
// filesystems (NFS close-to-open, SSHFS) where the rename guarantee
// is weaker and a concurrent read can still observe a short file.
func WritePayload(visDirectory, name string, payload Payload, tag CompressionTag) error {
	body, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload %q: %w", name, err)
	}

	compressed, actualTag, err := compress(body, tag)
	if err != nil {
		return fmt.Errorf("compressing payload %q: %w", name, err)
	}

	container := make([]byte, 0, len(payloadMagic)+5+len(compressed))
	container = append(container, payloadMagic[:]...)
	container = append(container, byte(actualTag))
	container = binary.BigEndian.AppendUint32(container, uint32(len(body)))
	container = append(container, compressed...)

	if err := atomicfile.WriteFile(PayloadPath(visDirectory, name), container, 0o644); err != nil {
		return fmt.Errorf("writing payload %q: %w", name, err)
	}
	return nil
}

// ReadPayloadRaw loads the payload container for name and returns
// the decompressed CBOR body without decoding it. The dump command
// feeds this to codec.Diagnose. Returns ErrTruncatedPayload (via
// errors.Is) when the file looks like a write in progress.
func ReadPayloadRaw(visDirectory, name string) ([]byte, error) {
	data, err := os.ReadFile(PayloadPath(visDirectory, name))
	if err != nil {
		return nil, fmt.Errorf("reading payload %q: %w", name, err)
	}

	header := len(payloadMagic) + 5
	if len(data) < header {
		return nil, fmt.Errorf("payload %q: %d byte file: %w", name, len(data), ErrTruncatedPayload)
	}
	if [4]byte(data[:4]) != payloadMagic {
		return nil, fmt.Errorf("payload %q: bad magic %q (different protocol version?)", name, data[:4])
	}

	tag := CompressionTag(data[4])
	uncompressedSize := int(binary.BigEndian.Uint32(data[5:9]))

	body, err := decompress(data[header:], tag, uncompressedSize)
	if err != nil {
		// Every decompression failure on a well-formed header is
		// indistinguishable from a partial write: the body bytes are
		// simply not all there yet. Treat it as transient.
		return nil, fmt.Errorf("payload %q: %v: %w", name, err, ErrTruncatedPayload)
	}
	return body, nil
}

// ReadPayload loads and decodes the payload container for name.
// Returns ErrTruncatedPayload (via errors.Is) when the file looks
// like a write in progress; any other failure is a real decode error.
func ReadPayload(visDirectory, name string) (Payload, error) {
	body, err := ReadPayloadRaw(visDirectory, name)
	if err != nil {
		return Payload{}, err
	}

	var payload Payload
	if err := codec.Unmarshal(body, &payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Payload{}, fmt.Errorf("payload %q: %v: %w", name, err, ErrTruncatedPayload)
		}
		return Payload{}, fmt.Errorf("decoding payload %q: %w", name, err)
	}
	if payload.Func == "" {
		return Payload{}, fmt.Errorf("payload %q has no function name", name)
	}
	return payload, nil
}
