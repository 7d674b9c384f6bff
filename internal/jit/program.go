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

package jit

import (
	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/internal/jitfmt"
	"github.com/shapeform/shapeform/internal/partial"
)

// Program is the compiled tier's output for one (shape, format) pair: the
// thunk chain from spec §4.3, rendered as precomputed metadata the Run
// loop walks without recomputing on every value. It is built once by
// compile and then shared, read-only, across every concurrent
// deserialization of that shape (spec §4.5, "Concurrency": Programs are
// immutable after construction, safe to share across goroutines).
type Program struct {
	shape    *partial.ShapeDescriptor
	format   jitfmt.JitFormat
	compiled bool

	fields     []partial.FieldDescriptor
	plan       *event.ShapePlan
	flattenIdx []int

	// thunks holds one compiled Thunk per field, in declaration order,
	// built once by compileField at compile time from that field's own
	// Shape. Run (and runPositional) call straight through thunks[idx]
	// instead of re-deriving each field's decode strategy from its Shape
	// on every value.
	thunks []Thunk

	// required lists the field indices the required-field-seen tracking
	// (JitScratch) must watch for: fields with neither a default nor Skip
	// nor an Option escape hatch, and not part of a Flatten segment (those
	// default via event.FinalizeFlatten instead).
	required []int
}

// compile walks shape exactly once, precomputing the plan, flatten index
// list, and per-field thunk chain a fresh call into the interpreter tier
// would otherwise recompute on every single value of this shape.
func compile(shape *partial.ShapeDescriptor, format jitfmt.JitFormat) *Program {
	prog := &Program{shape: shape, format: format}

	if shape.UserKind != 0 || shape.Kind != 2 {
		return prog // not a struct: unsupported by this tier, compiled=false
	}

	prog.fields = shape.Fields
	prog.plan = event.PlanFor(shape)
	prog.thunks = make([]Thunk, len(shape.Fields))
	for i, fd := range shape.Fields {
		prog.thunks[i] = compileField(i, fd, format)
		if fd.Shape != nil && fd.Shape.Flatten {
			if format.StructEncoding() == jitfmt.StructEncodingPositional {
				return prog // flatten needs a key namespace: compiled=false
			}
			prog.flattenIdx = append(prog.flattenIdx, i)
			continue
		}
		if !fd.Attrs.Skip && !fd.Attrs.Default &&
			(fd.Shape == nil || fd.Shape.DefKind != partial.DefKindOption) {
			prog.required = append(prog.required, i)
		}
	}
	prog.compiled = true
	return prog
}
