// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadMetaMissingFile(t *testing.T) {
	meta, err := ReadMeta(t.TempDir())
	if err != nil {
		t.Fatalf("ReadMeta on empty directory: %v", err)
	}
	if len(meta) != 0 {
		t.Fatalf("meta = %v, want empty", meta)
	}
	if meta.Finished() {
		t.Fatal("empty meta reports finished")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	directory := t.TempDir()
	stamp := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	written := Meta{
		KeyTimestamp: Timestamp(stamp),
		KeyFinished:  false,
		"lr":         0.001,
		"optimizer":  "adamw",
	}
	if err := WriteMeta(directory, written); err != nil {
		t.Fatalf("WriteMeta: %v", err)
	}

	read, err := ReadMeta(directory)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if read.Finished() {
		t.Fatal("unfinished run reports finished")
	}
	if !read.Timestamp().Equal(stamp) {
		t.Fatalf("Timestamp() = %v, want %v", read.Timestamp(), stamp)
	}
	if read["optimizer"] != "adamw" {
		t.Fatalf("optimizer = %v", read["optimizer"])
	}
}

func TestReadMetaToleratesComments(t *testing.T) {
	directory := t.TempDir()
	document := "{\n  // edited by hand after the run crashed\n  \"finished\": true,\n  \"note\": \"diverged at epoch 3\"\n}\n"
	if err := os.WriteFile(filepath.Join(directory, MetaFile), []byte(document), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	meta, err := ReadMeta(directory)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if !meta.Finished() {
		t.Fatal("finished flag lost")
	}
	if meta[KeyNote] != "diverged at epoch 3" {
		t.Fatalf("note = %v", meta[KeyNote])
	}
}

func TestWriteMetaIsAtomicReplacement(t *testing.T) {
	directory := t.TempDir()
	if err := WriteMeta(directory, Meta{KeyFinished: false}); err != nil {
		t.Fatalf("first WriteMeta: %v", err)
	}
	if err := WriteMeta(directory, Meta{KeyFinished: true}); err != nil {
		t.Fatalf("second WriteMeta: %v", err)
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory holds %d entries, want only %s", len(entries), MetaFile)
	}

	meta, err := ReadMeta(directory)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if !meta.Finished() {
		t.Fatal("rewrite lost the finished flag")
	}
}
