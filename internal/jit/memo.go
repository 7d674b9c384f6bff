// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jit implements the compiled tier from spec §4.3. Go has no
// Cranelift-equivalent native-codegen story reachable without cgo or
// assembly, so "compiled" here means what the teacher's own internal/tdp
// means by it: threaded code. compile walks a Shape's fields exactly once
// per (shape, format) pair, and for each field decides — from its Shape
// alone, not from any wire value — which of a small set of specialized
// [Thunk] closures will decode it (thunk.go): a scalar field gets a thunk
// that calls straight into the scalar decoder, a list/map field gets a
// thunk that picks a counted or peek-driven element loop depending on
// whether the format provides a size hint, a nested plain-struct field
// gets a thunk that recurses into this same compiled tier instead of the
// interpreter. None of these thunks re-run the shape-kind switch
// internal/event's deserializeValue performs on every single value; that
// decision was already made once, here, at compile time.
//
// Running a compiled Program (run.go) also owns the required-field
// bookkeeping directly: a [JitScratch] records which fields were seen on
// the wire, and if the loop ends with an unset field that has neither a
// default nor a skip/option escape hatch, the partially built value is
// unwound via Partial.Drop before MISSING_REQUIRED_FIELD is returned
// (spec §8 scenario 5), instead of leaving a half-initialized struct for
// the caller to trip over.
//
// The compiled tier covers a struct's own top-level fields; enum variant
// resolution and flatten-segment merging stay in internal/event, which
// every thunk falls back to for its own field's *value* once dispatch has
// been decided. A shape is only reported IsJITCompatible when it is itself a
// plain struct, so a caller can always fall back to the pure interpreter
// tier for shapes this tier doesn't specialize.
package jit

import (
	"sync"

	"github.com/shapeform/shapeform/internal/jitfmt"
	"github.com/shapeform/shapeform/internal/partial"
)

// key identifies one memoized program: a shape plus the format it was
// compiled against (spec §4.3: "memoized per (shape, format) pair").
type key struct {
	shape  *partial.ShapeDescriptor
	format string
}

var (
	memoMu sync.RWMutex
	memo   = map[key]*Program{}
)

// ProgramFor returns the memoized compiled Program for shape under format,
// compiling it on first use. The shape pointer is part of the cache key, so
// distinct Shape instances (even structurally identical ones) compile
// independently, matching facet's per-SHAPE-constant caching.
func ProgramFor(shape *partial.ShapeDescriptor, format jitfmt.JitFormat) *Program {
	k := key{shape: shape, format: format.Name()}

	memoMu.RLock()
	prog, ok := memo[k]
	memoMu.RUnlock()
	if ok {
		return prog
	}

	prog = compile(shape, format)

	memoMu.Lock()
	memo[k] = prog
	memoMu.Unlock()
	return prog
}

// IsJITCompatible reports whether shape has (or can build) a compiled
// Program under format without falling back to the interpreter tier for
// its own top-level field dispatch.
func IsJITCompatible(shape *partial.ShapeDescriptor, format jitfmt.JitFormat) bool {
	if shape.UserKind != 0 || shape.Kind != 2 {
		// Only plain structs are specialized today; enums and bare
		// scalars/containers run the interpreter tier directly, which is
		// already a single dispatch with no repeated lookups.
		return false
	}
	return ProgramFor(shape, format).compiled
}
