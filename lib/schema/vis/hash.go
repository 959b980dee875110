// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package vis

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// SourceHash is the 32-byte BLAKE3 digest identifying a visualization
// function's frozen source. Two functions are the same identity if and
// only if their source hashes match.
type SourceHash [32]byte

// sourceDomainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures source hashes can never collide with hashes
// computed over the same bytes in another context. The byte values are
// the ASCII encoding of the domain name, zero-padded to 32 bytes, so
// the key is inspectable in hex dumps without sacrificing any
// cryptographic property.
var sourceDomainKey = [32]byte{
	'r', 'u', 'n', 'b', 'o', 'a', 'r', 'd', '.', 'v', 'i', 's', '.',
	's', 'o', 'u', 'r', 'c', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashSource computes the identity hash of a function's frozen
// source text.
func HashSource(source []byte) SourceHash {
	hasher, err := blake3.NewKeyed(sourceDomainKey[:])
	if err != nil {
		panic("vis: BLAKE3 keyed hasher initialization failed: " + err.Error())
	}
	hasher.Write(source)

	var digest SourceHash
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// HashBuiltin computes the identity hash of a built-in function.
// Built-ins have no frozen source, so their stable name is hashed
// under a distinct prefix. The NUL separates prefix from name, which
// no function name can contain, so a user function whose source text
// happens to spell a built-in's name cannot alias it.
func HashBuiltin(name string) SourceHash {
	return HashSource([]byte("builtin\x00" + name))
}

// String returns the hex encoding of the hash. This is the form
// stored inside payload containers.
func (h SourceHash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseSourceHash parses a hex-encoded source hash. Returns an error
// if the string is not a valid 64-character hex encoding of 32 bytes.
func ParseSourceHash(hexString string) (SourceHash, error) {
	var digest SourceHash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing source hash: %w", err)
	}
	if len(decoded) != 32 {
		return digest, fmt.Errorf("source hash is %d bytes, want 32", len(decoded))
	}
	copy(digest[:], decoded)
	return digest, nil
}
