// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for runboard's polling loops.
//
// Runboard is polling-based by design: the target filesystems (SSHFS,
// NFS) do not deliver change notifications, so every observer component
// sleeps between poll ticks. That makes every component's timing
// behavior part of its contract, and the only way to test those
// contracts deterministically is to inject time.
//
// Production code injects [Real]; tests inject [Fake] and drive poll
// cycles with [FakeClock.Advance]. [FakeClock.WaitForTimers] closes the
// race between a poller registering its sleep and the test advancing
// the clock.
//
// This package has no runboard-internal dependencies.
package clock
