// Copyright 2026 The Runboard Authors
// SPDX-License-Identifier: Apache-2.0

package visual

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/runboard/runboard/lib/schema/vis"
)

// Rendered is one visualization snapshot after rendering.
type Rendered struct {
	// Run is the run directory the snapshot belongs to.
	Run string

	// Name is the visualization name.
	Name string

	// Func is the function that produced the snapshot.
	Func string

	// Version is the snapshot's index version.
	Version int

	// Summary is the renderer's text form of the snapshot.
	Summary string
}

// RenderFunc turns a decoded payload (and, for user functions, its
// frozen source) into a displayable summary.
type RenderFunc func(payload vis.Payload, source []byte) (string, error)

// Registry maps function names to renderers. The zero value is not
// usable; NewRegistry returns one preloaded with the built-in
// renderers. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]RenderFunc
}

// NewRegistry returns a registry with the built-in renderers
// registered.
func NewRegistry() *Registry {
	registry := &Registry{funcs: map[string]RenderFunc{}}
	registry.Register("tensor", renderTensor)
	return registry
}

// Register binds a function name to a renderer, replacing any
// previous binding.
func (r *Registry) Register(name string, fn RenderFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the renderer for a function name.
func (r *Registry) Lookup(name string) (RenderFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// renderTensor summarizes a numeric array: element count, declared
// shape when the snapshot carries one, and basic statistics. NaN
// elements are counted but excluded from the statistics.
func renderTensor(payload vis.Payload, _ []byte) (string, error) {
	values := make([]float64, 0, len(payload.Args))
	for i, arg := range payload.Args {
		value, ok := asFloat(arg)
		if !ok {
			return "", fmt.Errorf("tensor element %d is %T, not a number", i, arg)
		}
		values = append(values, value)
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "tensor[%d]", len(values))
	if shape, ok := payload.Kwargs["shape"].([]any); ok {
		dims := make([]string, 0, len(shape))
		for _, dim := range shape {
			dims = append(dims, fmt.Sprintf("%v", dim))
		}
		fmt.Fprintf(&builder, " shape=%s", strings.Join(dims, "x"))
	}

	finite := 0
	nans := 0
	minimum := math.Inf(1)
	maximum := math.Inf(-1)
	sum := 0.0
	for _, value := range values {
		if math.IsNaN(value) {
			nans++
			continue
		}
		finite++
		minimum = math.Min(minimum, value)
		maximum = math.Max(maximum, value)
		sum += value
	}
	if finite > 0 {
		fmt.Fprintf(&builder, " min=%.4g max=%.4g mean=%.4g", minimum, maximum, sum/float64(finite))
	}
	if nans > 0 {
		fmt.Fprintf(&builder, " nan=%d", nans)
	}
	return builder.String(), nil
}

// asFloat widens the numeric types CBOR decoding produces for an
// any-typed target.
func asFloat(value any) (float64, bool) {
	switch value := value.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint64:
		return float64(value), true
	}
	return 0, false
}
