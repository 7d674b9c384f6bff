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

// Run executes p's struct-start..struct-end walk against parser using a
// memoized Program for shape, dispatching every field through its
// precompiled Thunk (thunk.go) rather than redoing internal/event's
// shape-kind switch per value. Callers check IsJITCompatible first; Run
// still works (by degrading to the interpreter tier's own dispatch) if
// called on an incompatible shape, since Program always has a valid (if
// empty) plan.
func Run(p *partial.Partial, parser event.Parser, shape *partial.ShapeDescriptor, format jitfmt.JitFormat) error {
	prog := ProgramFor(shape, format)
	if !prog.compiled {
		return event.DeserializeInto(p, parser)
	}

	if format.StructEncoding() == jitfmt.StructEncodingPositional {
		return runPositional(p, parser, prog)
	}
	return runMapEncoded(p, parser, prog)
}

// runMapEncoded decodes a self-describing, key/value-framed struct
// (StructStart, then FieldKey/value pairs, then StructEnd). Matched keys
// dispatch straight through prog.thunks[idx]; a JitScratch records which
// indices were actually seen on the wire so the end-of-struct defaulting
// pass (applyDefaultsCompiled) can tell a field that was legitimately
// written apart from one that never appeared.
func runMapEncoded(p *partial.Partial, parser event.Parser, prog *Program) error {
	start, err := parser.Next()
	if err != nil {
		return err
	}
	if start.Kind != event.StructStart {
		return event.DeserializeInto(p, parser)
	}

	scratch := newScratch(len(prog.fields))

	for {
		peek, err := parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == event.StructEnd {
			_, _ = parser.Next()
			break
		}
		keyEv, err := parser.Next()
		if err != nil {
			return err
		}
		if keyEv.Kind != event.FieldKey {
			if err := event.SkipValue(parser); err != nil {
				return err
			}
			continue
		}

		if idx, ok := prog.plan.FieldLookup[keyEv.Name]; ok {
			if err := prog.thunks[idx](p, parser, prog.format); err != nil {
				return err
			}
			scratch.mark(idx)
			continue
		}

		if len(prog.flattenIdx) > 0 {
			handled, err := event.TryFlattenKey(p, parser, prog.fields, prog.flattenIdx, keyEv.Name)
			if err != nil {
				return err
			}
			if handled {
				continue
			}
		}

		if err := event.SkipValue(parser); err != nil {
			return err
		}
	}

	if len(prog.flattenIdx) > 0 {
		if err := event.FinalizeFlatten(p, parser, prog.fields, prog.flattenIdx); err != nil {
			return err
		}
	}
	return applyDefaultsCompiled(p, parser, prog, scratch)
}

// runPositional decodes a struct whose fields carry neither a key nor any
// start/end framing on the wire at all (postcard): each field's encoded
// value simply follows the previous one, in declaration order, and the
// field count comes from the shape rather than from any on-wire counter.
// Flatten has no meaning here (there is no key namespace to merge into),
// so compile leaves a positional shape with any Flatten field uncompiled,
// IsJITCompatible reports false for it, and Run never reaches here. Every field
// is present on the wire by construction (there is no key to omit), so
// this path never needs JitScratch or applyDefaultsCompiled.
func runPositional(p *partial.Partial, parser event.Parser, prog *Program) error {
	for idx := range prog.fields {
		if err := prog.thunks[idx](p, parser, prog.format); err != nil {
			return err
		}
	}
	return nil
}

// applyDefaultsCompiled is the compiled tier's own end-of-struct
// defaulting pass (spec §4.2 "Defaults" / spec §8 scenario 5): any field
// in prog.required that scratch never saw fails the whole struct with
// MISSING_REQUIRED_FIELD, but only after p.Drop() unwinds every field that
// *was* successfully written, so the caller never observes a
// half-initialized value ("cleanup_partial_struct"). Fields with a
// Default/Skip/Option escape hatch are defaulted the same way
// event.ApplyDefaults already does it, since that logic has no reason to
// duplicate here.
func applyDefaultsCompiled(p *partial.Partial, parser event.Parser, prog *Program, scratch *JitScratch) error {
	for _, idx := range prog.required {
		if !scratch.isSet(idx) {
			set, err := p.IsFieldSet(idx)
			if err != nil {
				return wrapErr(parser, err)
			}
			if set {
				continue
			}
			p.Drop()
			return &event.WalkError{
				Code: event.ErrMissingRequiredField,
				Pos:  parser.Pos(),
				Msg:  "missing required field " + prog.fields[idx].Name,
			}
		}
	}
	return event.ApplyDefaults(p, parser, prog.fields, prog.plan)
}
