// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"fmt"

	"github.com/runboard/runboard/lib/schema/vis"
)

// SchemaError reports an append naming a column that is not in the
// run's frozen column set. The append writes nothing; the session
// remains usable. The metrics file has a fixed number of columns per
// row, so new columns cannot be added after the first append — list
// the full set in Options.Columns when it is known up front.
type SchemaError struct {
	// Column is the unknown column name.
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("unknown metric column %q (columns are frozen after the first append)", e.Column)
}

// IdentityError reports an attempt to rebind a visualization name to
// a different function. The frozen source file is shared by every
// snapshot under the name, so rebinding would silently change the
// meaning of already-written payloads. Nothing is overwritten; the
// call fails.
type IdentityError struct {
	// Name is the visualization name.
	Name string

	// Registered and Attempted are the conflicting source identities.
	Registered vis.SourceHash
	Attempted  vis.SourceHash
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("visualization %q is bound to source %s, cannot rebind to %s",
		e.Name, e.Registered, e.Attempted)
}
