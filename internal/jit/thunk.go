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

// Thunk decodes one field of a compiled struct Program. Which Thunk a
// field gets is decided once, by compileField, from the field's own Shape
// alone — never re-derived from the wire value the way
// internal/event.deserializeValue's shape-kind switch does on every call
// (spec §4.3, "thunk chain"/"threaded code").
type Thunk func(p *partial.Partial, parser event.Parser, format jitfmt.JitFormat) error

// JitScratch is the compiled tier's required-field bookkeeping for one
// struct value: which field indices have been written so far. It plays
// the role of the original's per-call scratch buffer (spec §8 scenario 5,
// "required_fields_seen").
type JitScratch struct {
	seen []bool
}

func newScratch(n int) *JitScratch { return &JitScratch{seen: make([]bool, n)} }

func (s *JitScratch) mark(idx int) { s.seen[idx] = true }

func (s *JitScratch) isSet(idx int) bool { return s.seen[idx] }

// compileField builds idx's Thunk from fd.Shape's static kind and from
// format's capability flags (jitfmt.JitFormat). ProvidesSeqCount in
// particular is consulted here, once, rather than left to a per-value
// runtime check: a format that always supplies a sequence/map length up
// front gets the counted loop baked into its Thunk; one that doesn't gets
// the peek-driven loop baked in instead. Either way the choice between the
// two strategies is made at compile time, not re-decided on every list or
// map this shape's fields are ever asked to decode.
func compileField(idx int, fd partial.FieldDescriptor, format jitfmt.JitFormat) Thunk {
	if fd.Attrs.Skip {
		return func(_ *partial.Partial, parser event.Parser, _ jitfmt.JitFormat) error {
			return event.SkipValue(parser)
		}
	}

	shp := fd.Shape
	switch {
	case shp == nil, shp.Transparent, shp.Inner != nil, shp.UserKind == 1:
		// Newtype unwrapping and enum variant-dispatch policy are left to
		// the interpreter tier; both are rare enough per-struct that
		// specializing them buys little next to the complexity of
		// threading tag-policy decisions through a closure.
		return compiledFallback(idx, fd)
	case shp.UserKind == 0 && shp.Kind == 2:
		return compiledNestedStruct(idx, fd)
	case shp.DefKind == partial.DefKindScalar:
		return compiledScalar(idx, fd)
	case shp.DefKind == partial.DefKindOption:
		return compiledOption(idx, fd)
	case shp.DefKind == partial.DefKindList, shp.DefKind == partial.DefKindSlice, shp.DefKind == partial.DefKindSet:
		return compiledList(idx, fd, format.ProvidesSeqCount())
	case shp.DefKind == partial.DefKindMap:
		return compiledMap(idx, fd, format.ProvidesSeqCount())
	default:
		// Fixed arrays, pointers, and dynamic values keep the interpreter's
		// own handling rather than duplicating it behind a closure that
		// would just call straight back into the same code.
		return compiledFallback(idx, fd)
	}
}

// compiledFallback hands the field to the interpreter tier exactly as the
// map-encoded struct walker in internal/event would, for kinds this tier
// doesn't specialize further.
func compiledFallback(idx int, fd partial.FieldDescriptor) Thunk {
	return func(p *partial.Partial, parser event.Parser, _ jitfmt.JitFormat) error {
		return event.DeserializeField(p, parser, idx, fd)
	}
}

// compiledScalar calls straight into the scalar decoder, skipping
// deserializeValue's shape-kind switch since compile time already knows
// this field is a scalar.
func compiledScalar(idx int, fd partial.FieldDescriptor) Thunk {
	return func(p *partial.Partial, parser event.Parser, _ jitfmt.JitFormat) error {
		return event.DeserializeScalarField(p, parser, idx, fd)
	}
}

// compiledNestedStruct recurses into Run (not the interpreter tier) for a
// field whose own Shape is itself a plain struct, so compilation is not
// limited to one level: every nested struct gets its own memoized Program
// the first time it's reached.
func compiledNestedStruct(idx int, fd partial.FieldDescriptor) Thunk {
	return func(p *partial.Partial, parser event.Parser, format jitfmt.JitFormat) error {
		if err := p.BeginNthField(idx); err != nil {
			return wrapErr(parser, err)
		}
		if err := Run(p, parser, fd.Shape, format); err != nil {
			return err
		}
		return wrapErr(parser, p.End())
	}
}

// compiledOption reads the null-discriminant scalar directly rather than
// delegating to internal/event's deserializeOption, since compile time
// already knows this field is an Option.
func compiledOption(idx int, fd partial.FieldDescriptor) Thunk {
	return func(p *partial.Partial, parser event.Parser, _ jitfmt.JitFormat) error {
		if err := p.BeginNthField(idx); err != nil {
			return wrapErr(parser, err)
		}
		peek, err := parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == event.Scalar && peek.Value.Tag == event.ScalarNull {
			_, _ = parser.Next()
			if err := p.SetDefault(); err != nil {
				return wrapErr(parser, err)
			}
		} else {
			if err := p.BeginSome(); err != nil {
				return wrapErr(parser, err)
			}
			if err := event.DeserializeInto(p, parser); err != nil {
				return err
			}
			if err := p.End(); err != nil {
				return wrapErr(parser, err)
			}
		}
		return wrapErr(parser, p.End())
	}
}

// compiledList bakes in a counted or peek-driven element loop depending on
// format.ProvidesSeqCount, decided once here rather than re-inspected from
// SequenceStart.SizeHint on every value. The counted strategy halves the
// per-element parser round trips: one Next per element instead of a
// Peek-then-maybe-Next pair (spec §4.3, "compiled list deserializer:
// counted/buffered/push-based strategies"). Elements themselves still
// decode through the interpreter tier — list elements are rarely
// structs-with-their-own-Program, and specializing them too would mean
// compiling a second Program per element shape.
func compiledList(idx int, fd partial.FieldDescriptor, counted bool) Thunk {
	decode := decodeListPeek
	if counted {
		decode = decodeListCounted
	}
	return func(p *partial.Partial, parser event.Parser, _ jitfmt.JitFormat) error {
		if err := p.BeginNthField(idx); err != nil {
			return wrapErr(parser, err)
		}
		if err := decode(p, parser); err != nil {
			return err
		}
		return wrapErr(parser, p.End())
	}
}

func beginList(p *partial.Partial, parser event.Parser) (event.Event, error) {
	start, err := parser.Next()
	if err != nil {
		return event.Event{}, err
	}
	if start.Kind != event.SequenceStart {
		return event.Event{}, &event.WalkError{Code: event.ErrExpectedArrayStart, Pos: parser.Pos(), Msg: "expected sequence"}
	}
	return start, wrapErr(parser, p.BeginList())
}

func decodeListCounted(p *partial.Partial, parser event.Parser) error {
	start, err := beginList(p, parser)
	if err != nil {
		return err
	}
	for i := 0; i < start.SizeHint; i++ {
		if err := p.BeginListItem(); err != nil {
			return wrapErr(parser, err)
		}
		if err := event.DeserializeInto(p, parser); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return wrapErr(parser, err)
		}
	}
	end, err := parser.Next()
	if err != nil {
		return err
	}
	if end.Kind != event.SequenceEnd {
		return &event.WalkError{Code: event.ErrSchemaMismatch, Pos: parser.Pos(), Msg: "sequence element count mismatch"}
	}
	return nil
}

func decodeListPeek(p *partial.Partial, parser event.Parser) error {
	if _, err := beginList(p, parser); err != nil {
		return err
	}
	for {
		peek, err := parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == event.SequenceEnd {
			_, _ = parser.Next()
			return nil
		}
		if err := p.BeginListItem(); err != nil {
			return wrapErr(parser, err)
		}
		if err := event.DeserializeInto(p, parser); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return wrapErr(parser, err)
		}
	}
}

// compiledMap mirrors compiledList's counted-vs-peek split for a
// string-keyed map field, also decided once from format.ProvidesSeqCount.
func compiledMap(idx int, fd partial.FieldDescriptor, counted bool) Thunk {
	decode := decodeMapPeek
	if counted {
		decode = decodeMapCounted
	}
	return func(p *partial.Partial, parser event.Parser, _ jitfmt.JitFormat) error {
		if err := p.BeginNthField(idx); err != nil {
			return wrapErr(parser, err)
		}
		if err := decode(p, parser); err != nil {
			return err
		}
		return wrapErr(parser, p.End())
	}
}

func beginMap(p *partial.Partial, parser event.Parser) (event.Event, error) {
	start, err := parser.Next()
	if err != nil {
		return event.Event{}, err
	}
	if start.Kind != event.StructStart {
		return event.Event{}, &event.WalkError{Code: event.ErrExpectedObjectStart, Pos: parser.Pos(), Msg: "expected map"}
	}
	return start, wrapErr(parser, p.BeginMap())
}

func decodeMapPair(p *partial.Partial, parser event.Parser) error {
	key, err := parser.Next()
	if err != nil {
		return err
	}
	if key.Kind != event.FieldKey {
		return &event.WalkError{Code: event.ErrUnsupported, Pos: parser.Pos(), Msg: "expected a map key"}
	}
	if err := p.BeginKey(); err != nil {
		return wrapErr(parser, err)
	}
	if err := p.ParseFromStr(key.Name); err != nil {
		return wrapErr(parser, err)
	}
	if err := p.End(); err != nil {
		return wrapErr(parser, err)
	}
	if err := p.BeginValue(); err != nil {
		return wrapErr(parser, err)
	}
	if err := event.DeserializeInto(p, parser); err != nil {
		return err
	}
	return wrapErr(parser, p.End())
}

func decodeMapCounted(p *partial.Partial, parser event.Parser) error {
	start, err := beginMap(p, parser)
	if err != nil {
		return err
	}
	for i := 0; i < start.SizeHint; i++ {
		if err := decodeMapPair(p, parser); err != nil {
			return err
		}
	}
	end, err := parser.Next()
	if err != nil {
		return err
	}
	if end.Kind != event.StructEnd {
		return &event.WalkError{Code: event.ErrSchemaMismatch, Pos: parser.Pos(), Msg: "map entry count mismatch"}
	}
	return nil
}

func decodeMapPeek(p *partial.Partial, parser event.Parser) error {
	if _, err := beginMap(p, parser); err != nil {
		return err
	}
	for {
		peek, err := parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == event.StructEnd {
			_, _ = parser.Next()
			return nil
		}
		if err := decodeMapPair(p, parser); err != nil {
			return err
		}
	}
}

// wrapErr adapts a raw internal/partial operation error into the shared
// *event.WalkError type, the same way internal/event's own walker.wrap
// does, so callers of Run see one error type regardless of which tier ran
// (spec §7, "Propagation policy").
func wrapErr(parser event.Parser, err error) error {
	if err == nil {
		return nil
	}
	return &event.WalkError{Code: event.ErrInvariantViolation, Pos: parser.Pos(), Msg: err.Error(), Wrapped: err}
}
