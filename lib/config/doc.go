// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads runboard configuration.
//
// Configuration comes from a single YAML file named by the
// RUNBOARD_CONFIG environment variable or a --config flag. There is
// no search path and no layering of sources: one file, read once,
// with ${VAR} expansion in paths as the only substitution. Every
// field has a default, so running without a config file at all is
// also supported.
package config
