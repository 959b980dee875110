// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch observes a tree of run directories by polling.
//
// Polling is the point: the run tree is routinely an SSHFS or NFS
// mount where inotify never fires, so discovery and tailing both work
// by re-reading state at an interval. The Crawler walks the tree for
// metrics logs, one Reader goroutine tails each discovered run, and
// the Watcher coordinates them behind a single event channel.
//
// Readers communicate in one direction only: immutable events flow
// from reader goroutines through the Watcher to the consumer. No
// consumer state is ever shared back into a reader.
package watch
