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

package event

import (
	"fmt"

	"github.com/shapeform/shapeform/internal/debug"
	"github.com/shapeform/shapeform/internal/partial"
)

// WalkError is the interpreter tier's error type; callers (the public
// package's Deserialize) translate it into the shared DeserializeError code
// space via its Code/Pos/Path fields (spec §7, "Propagation policy").
type WalkError struct {
	Code ErrCode
	Pos  int
	Path string
	Msg  string
	Wrapped error
}

func (e *WalkError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("event: %s at %s (offset %d): %s", e.Code, e.Path, e.Pos, e.Msg)
	}
	return fmt.Sprintf("event: %s at %s (offset %d)", e.Code, e.Path, e.Pos)
}

func (e *WalkError) Unwrap() error { return e.Wrapped }

// ErrCode mirrors the shared closed error-code space (spec §6) without
// importing the public package, which would create an import cycle; the
// public package's Deserialize re-maps these 1:1 onto shapeform.ErrorCode.
type ErrCode int

const (
	ErrUnexpectedEOF ErrCode = iota
	ErrExpectedBool
	ErrExpectedArrayStart
	ErrExpectedObjectStart
	ErrInvalidOptionDiscriminant
	ErrUnsupported
	ErrMissingRequiredField
	ErrUnknownVariant
	ErrSchemaMismatch
	ErrConversionFailed
	ErrAllocationFailed
	ErrInvariantViolation
	ErrRecursionDepth
)

func (c ErrCode) String() string {
	names := [...]string{
		"unexpected eof", "expected bool", "expected array start",
		"expected object start", "invalid option discriminant", "unsupported",
		"missing required field", "unknown variant", "schema mismatch",
		"conversion failed", "allocation failed", "invariant violation",
		"recursion depth exceeded",
	}
	if int(c) >= 0 && int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("error(%d)", int(c))
}

const maxRecursionDepth = 1000

// walker holds the state threaded through one top-level DeserializeInto
// call: the parser it pulls events from and the current recursion depth.
type walker struct {
	parser Parser
	depth  int
}

// DeserializeInto drives p (already alloc_shape'd for the destination
// type) from events pulled out of parser until one complete value has been
// built, without calling p.Build() — the caller decides when to finish
// (spec §4.2, "deserialize_into").
func DeserializeInto(p *partial.Partial, parser Parser) error {
	w := &walker{parser: parser}
	return w.deserializeValue(p)
}

// DeserializeField drives a single already-begun field value (internal/jit
// reuses this for the fields its compiled Program enumerates up front,
// instead of redoing the Attrs.Skip check and BeginNthField/End pairing
// this function already does).
func DeserializeField(p *partial.Partial, parser Parser, idx int, fd partial.FieldDescriptor) error {
	w := &walker{parser: parser}
	return w.deserializeNamedFieldIdx(p, idx, fd)
}

// ApplyDefaults runs the end-of-struct defaulting pass for fields
// (internal/jit calls this after its own field loop, passing a
// Program-precomputed plan reference). The pass decides per field from its
// Attrs and Option shape; plan is not consulted.
func ApplyDefaults(p *partial.Partial, parser Parser, fields []partial.FieldDescriptor, plan *ShapePlan) error {
	w := &walker{parser: parser}
	return w.applyDefaults(p, fields, plan)
}

// FinalizeFlatten runs the end-of-struct defaulting pass for every
// Flatten-attributed field in fields, using a Program-precomputed index
// list rather than rescanning fields for the Flatten attribute.
func FinalizeFlatten(p *partial.Partial, parser Parser, fields []partial.FieldDescriptor, flattenIdx []int) error {
	if len(flattenIdx) == 0 {
		return nil
	}
	w := &walker{parser: parser}
	return w.finalizeFlatten(p, fields, flattenIdx)
}

// TryFlattenKey resolves a field key against fields' Flatten-attributed
// entries (internal/jit's fallback for keys its map-encoding Program
// doesn't recognize as a direct field).
func TryFlattenKey(p *partial.Partial, parser Parser, fields []partial.FieldDescriptor, flattenIdx []int, key string) (bool, error) {
	if len(flattenIdx) == 0 {
		return false, nil
	}
	w := &walker{parser: parser}
	return w.tryFlattenKey(p, fields, flattenIdx, key)
}

// SkipValue discards the next value on parser; exposed so internal/jit can
// skip an unrecognized field key without constructing a walker itself.
func SkipValue(parser Parser) error {
	return parser.SkipValue()
}

// DeserializeScalarField drives a field the caller already knows (at
// compile time, from the field's own Shape) is a scalar, calling
// deserializeScalar directly instead of going through deserializeValue's
// shape-kind switch. internal/jit's compiled tier uses this for every
// scalar-kind field in a Program, since the switch has already been paid
// for once, at compile time, by inspecting fd.Shape.DefKind.
func DeserializeScalarField(p *partial.Partial, parser Parser, idx int, fd partial.FieldDescriptor) error {
	if fd.Attrs.Skip {
		return parser.SkipValue()
	}
	w := &walker{parser: parser}
	if err := p.BeginNthField(idx); err != nil {
		return w.wrap(err)
	}
	if err := w.deserializeScalar(p); err != nil {
		return err
	}
	return w.wrap(p.End())
}

// deserializeValue dispatches on the current frame's Shape to the
// appropriate sub-deserializer, pushing/popping no frame itself (the
// caller is responsible for begin_field/begin_list_item/etc. around
// nested calls).
func (w *walker) deserializeValue(p *partial.Partial) error {
	w.depth++
	defer func() { w.depth-- }()
	if w.depth > maxRecursionDepth {
		return w.recursion()
	}

	shp := p.Shape()

	if shp.Transparent || shp.Inner != nil {
		if err := p.BeginInner(); err != nil {
			return w.wrap(err)
		}
		if err := w.deserializeValue(p); err != nil {
			return err
		}
		return w.wrap(p.End())
	}

	switch {
	case shp.UserKind == 1: // enum
		return w.deserializeEnum(p)
	case shp.UserKind == 0 && shp.Kind == 2: // struct
		return w.deserializeStructFields(p, shp.Fields)
	case shp.DefKind == partial.DefKindOption:
		return w.deserializeOption(p)
	case shp.DefKind == partial.DefKindList, shp.DefKind == partial.DefKindSlice, shp.DefKind == partial.DefKindSet:
		return w.deserializeList(p)
	case shp.DefKind == partial.DefKindArray:
		return w.deserializeArray(p)
	case shp.DefKind == partial.DefKindMap:
		return w.deserializeMap(p)
	case shp.DefKind == partial.DefKindPointer:
		return w.deserializePointer(p)
	default:
		return w.deserializeScalar(p)
	}
}

// deserializeStructFields implements the struct body walk: read a
// StructStart, dispatch each FieldKey to begin_field/deserialize/end (or
// SkipValue for an unrecognized key, or into the flatten machinery for a
// Flatten-attributed field), then apply defaults to every field never
// observed (spec §4.2, "Defaults").
func (w *walker) deserializeStructFields(p *partial.Partial, fields []partial.FieldDescriptor) error {
	start, err := w.parser.Next()
	if err != nil {
		return err
	}
	if start.Kind != StructStart {
		return w.expected(ErrExpectedObjectStart, "struct")
	}

	plan := PlanFor(p.Shape())
	lookup := plan.FieldLookup
	if p.Shape().UserKind == 1 {
		// A struct variant's fields are not in the enum shape's plan.
		lookup = make(map[string]int, len(fields))
		for i, f := range fields {
			wireName := f.Name
			if f.Attrs.Rename != "" {
				wireName = f.Attrs.Rename
			}
			lookup[wireName] = i
			for _, alias := range f.Attrs.Aliases {
				lookup[alias] = i
			}
		}
	}
	var flattenFields []int
	for i, fd := range fields {
		if fd.Attrs.Skip {
			continue
		}
		if fd.Shape != nil && fd.Shape.Flatten {
			flattenFields = append(flattenFields, i)
		}
	}

	for {
		peek, err := w.parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == StructEnd {
			_, _ = w.parser.Next()
			break
		}
		key, err := w.parser.Next()
		if err != nil {
			return err
		}
		if key.Kind != FieldKey {
			return w.unsupported("expected a field key")
		}

		if idx, ok := lookup[key.Name]; ok {
			if err := w.deserializeNamedFieldIdx(p, idx, fields[idx]); err != nil {
				return err
			}
			continue
		}

		if len(flattenFields) > 0 {
			if handled, err := w.tryFlattenKey(p, fields, flattenFields, key.Name); err != nil {
				return err
			} else if handled {
				continue
			}
		}

		if err := w.parser.SkipValue(); err != nil {
			return err
		}
	}

	if len(flattenFields) > 0 {
		if err := w.finalizeFlatten(p, fields, flattenFields); err != nil {
			return err
		}
	}

	return w.applyDefaults(p, fields, plan)
}

func (w *walker) deserializeNamedField(p *partial.Partial, name string) error {
	if vi := p.CurrentVariantIndex(); vi >= 0 {
		for i, fd := range p.Shape().Variants[vi].Fields {
			wireName := fd.Name
			if fd.Attrs.Rename != "" {
				wireName = fd.Attrs.Rename
			}
			match := wireName == name
			for _, alias := range fd.Attrs.Aliases {
				match = match || alias == name
			}
			if match {
				return w.deserializeNamedFieldIdx(p, i, fd)
			}
		}
		return w.parser.SkipValue()
	}
	plan := PlanFor(p.Shape())
	idx, ok := plan.FieldLookup[name]
	if !ok {
		return w.parser.SkipValue()
	}
	shp := p.Shape()
	return w.deserializeNamedFieldIdx(p, idx, shp.Fields[idx])
}

func (w *walker) deserializeNamedFieldIdx(p *partial.Partial, idx int, fd partial.FieldDescriptor) error {
	if fd.Attrs.Skip {
		return w.parser.SkipValue()
	}
	if err := p.BeginNthField(idx); err != nil {
		return w.wrap(err)
	}
	if err := w.deserializeValue(p); err != nil {
		return err
	}
	return w.wrap(p.End())
}

// applyDefaults runs the end-of-struct defaulting pass: every field whose
// bit is unset gets set_nth_field_to_default if it has Default or Skip or
// is an Option (which defaults to None); otherwise the whole struct fails
// with MissingRequiredField (spec §4.2, "Defaults"; testable property 4).
func (w *walker) applyDefaults(p *partial.Partial, fields []partial.FieldDescriptor, plan *ShapePlan) error {
	for i, fd := range fields {
		set, err := p.IsFieldSet(i)
		if err != nil {
			return w.wrap(err)
		}
		if set {
			continue
		}
		if fd.Attrs.Skip || fd.Attrs.Default {
			if err := p.SetNthFieldToDefault(i); err != nil {
				return w.wrap(err)
			}
			continue
		}
		if fd.Shape != nil && fd.Shape.DefKind == partial.DefKindOption {
			if err := p.SetNthFieldToDefault(i); err != nil {
				return w.wrap(err)
			}
			continue
		}
		return w.missingField(p.Shape(), fd.Name)
	}
	return nil
}

func (w *walker) deserializeOption(p *partial.Partial) error {
	peek, err := w.parser.Peek()
	if err != nil {
		return err
	}
	if peek.Kind == Scalar && peek.Value.Tag == ScalarNull {
		_, _ = w.parser.Next()
		return w.wrap(p.SetDefault())
	}
	if err := p.BeginSome(); err != nil {
		return w.wrap(err)
	}
	if err := w.deserializeValue(p); err != nil {
		return err
	}
	return w.wrap(p.End())
}

func (w *walker) deserializeList(p *partial.Partial) error {
	start, err := w.parser.Next()
	if err != nil {
		return err
	}
	if start.Kind != SequenceStart {
		return w.expected(ErrExpectedArrayStart, "sequence")
	}
	if err := p.BeginList(); err != nil {
		return w.wrap(err)
	}
	for {
		peek, err := w.parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == SequenceEnd {
			_, _ = w.parser.Next()
			break
		}
		if err := p.BeginListItem(); err != nil {
			return w.wrap(err)
		}
		if err := w.deserializeValue(p); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return w.wrap(err)
		}
	}
	return nil
}

func (w *walker) deserializeArray(p *partial.Partial) error {
	start, err := w.parser.Next()
	if err != nil {
		return err
	}
	if start.Kind != SequenceStart {
		return w.expected(ErrExpectedArrayStart, "array")
	}
	idx := 0
	for {
		peek, err := w.parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == SequenceEnd {
			_, _ = w.parser.Next()
			break
		}
		if err := p.BeginNthElement(idx); err != nil {
			return w.wrap(err)
		}
		if err := w.deserializeValue(p); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return w.wrap(err)
		}
		idx++
	}
	return nil
}

func (w *walker) deserializeMap(p *partial.Partial) error {
	start, err := w.parser.Next()
	if err != nil {
		return err
	}
	if start.Kind != StructStart {
		return w.expected(ErrExpectedObjectStart, "map")
	}
	if err := p.BeginMap(); err != nil {
		return w.wrap(err)
	}
	for {
		peek, err := w.parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == StructEnd {
			_, _ = w.parser.Next()
			break
		}
		key, err := w.parser.Next()
		if err != nil {
			return err
		}
		if key.Kind != FieldKey {
			return w.unsupported("expected a map key")
		}
		if err := p.BeginKey(); err != nil {
			return w.wrap(err)
		}
		if err := p.ParseFromStr(key.Name); err != nil {
			return w.wrap(err)
		}
		if err := p.End(); err != nil {
			return w.wrap(err)
		}
		if err := p.BeginValue(); err != nil {
			return w.wrap(err)
		}
		if err := w.deserializeValue(p); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return w.wrap(err)
		}
	}
	return nil
}

func (w *walker) deserializePointer(p *partial.Partial) error {
	if err := p.BeginSmartPtr(); err != nil {
		return w.wrap(err)
	}
	shp := p.Shape()
	if shp.Pointee != nil && shp.Pointee.DefKind == partial.DefKindSlice && shp.SmartVT.SliceBuilder != nil {
		start, err := w.parser.Next()
		if err != nil {
			return err
		}
		if start.Kind != SequenceStart {
			return w.expected(ErrExpectedArrayStart, "slice")
		}
		for {
			peek, err := w.parser.Peek()
			if err != nil {
				return err
			}
			if peek.Kind == SequenceEnd {
				_, _ = w.parser.Next()
				break
			}
			if err := p.PushSliceItem(); err != nil {
				return w.wrap(err)
			}
			if err := w.deserializeValue(p); err != nil {
				return err
			}
			if err := p.End(); err != nil {
				return w.wrap(err)
			}
		}
		return w.wrap(p.End())
	}

	if err := w.deserializeValue(p); err != nil {
		return err
	}
	return w.wrap(p.End())
}

func (w *walker) deserializeScalar(p *partial.Partial) error {
	ev, err := w.parser.Next()
	if err != nil {
		return err
	}
	if ev.Kind != Scalar {
		return w.unsupported("expected a scalar value")
	}
	shp := p.Shape()
	val, err := coerceScalar(shp.Scalar, ev.Value)
	if err != nil {
		return w.schemaMismatch(err.Error())
	}
	return w.wrap(p.Set(val))
}

// coerceScalar converts a wire scalar into the exact Go value Partial.Set
// expects for dst (spec §4.2, scalar validation: "every scalar-tag path is
// validated before writing through a pointer").
func coerceScalar(kind partial.ScalarKind, v ScalarValue) (any, error) {
	switch kind {
	case partial.ScalarBool:
		if v.Tag != ScalarBool {
			return nil, fmt.Errorf("expected bool, got %v", v.Tag)
		}
		return v.Bool, nil
	case partial.ScalarI8:
		return int8(asInt(v)), nil
	case partial.ScalarI16:
		return int16(asInt(v)), nil
	case partial.ScalarI32:
		return int32(asInt(v)), nil
	case partial.ScalarI64:
		return asInt(v), nil
	case partial.ScalarU8:
		return uint8(asUint(v)), nil
	case partial.ScalarU16:
		return uint16(asUint(v)), nil
	case partial.ScalarU32:
		return uint32(asUint(v)), nil
	case partial.ScalarU64:
		return asUint(v), nil
	case partial.ScalarF32:
		return float32(asFloat(v)), nil
	case partial.ScalarF64:
		return asFloat(v), nil
	case partial.ScalarString:
		if v.Tag != ScalarStr {
			return nil, fmt.Errorf("expected string, got %v", v.Tag)
		}
		return v.Str, nil
	case partial.ScalarBytes:
		if v.Tag == ScalarBytes {
			return v.Byte, nil
		}
		return nil, fmt.Errorf("expected bytes, got %v", v.Tag)
	case partial.ScalarUnit:
		return struct{}{}, nil
	default:
		return nil, fmt.Errorf("unhandled scalar kind %v", kind)
	}
}

func asInt(v ScalarValue) int64 {
	switch v.Tag {
	case ScalarI64:
		return v.I64
	case ScalarU64:
		return int64(v.U64)
	case ScalarF64:
		return int64(v.F64)
	default:
		return 0
	}
}

func asUint(v ScalarValue) uint64 {
	switch v.Tag {
	case ScalarU64:
		return v.U64
	case ScalarI64:
		return uint64(v.I64)
	case ScalarF64:
		return uint64(v.F64)
	default:
		return 0
	}
}

func asFloat(v ScalarValue) float64 {
	switch v.Tag {
	case ScalarF64:
		return v.F64
	case ScalarI64:
		return float64(v.I64)
	case ScalarU64:
		return float64(v.U64)
	default:
		return 0
	}
}

func (w *walker) wrap(err error) error {
	if err == nil {
		return nil
	}
	debug.Log(nil, "event", "wrapping error: %v", err)
	return &WalkError{Code: ErrInvariantViolation, Pos: w.parser.Pos(), Msg: err.Error(), Wrapped: err}
}

func (w *walker) unsupported(msg string) error {
	return &WalkError{Code: ErrUnsupported, Pos: w.parser.Pos(), Msg: msg}
}

func (w *walker) expected(code ErrCode, what string) error {
	return &WalkError{Code: code, Pos: w.parser.Pos(), Msg: "expected " + what}
}

func (w *walker) unknownVariant(name string) error {
	return &WalkError{Code: ErrUnknownVariant, Pos: w.parser.Pos(), Msg: name}
}

func (w *walker) missingField(shp *partial.ShapeDescriptor, field string) error {
	return &WalkError{Code: ErrMissingRequiredField, Pos: w.parser.Pos(), Msg: fmt.Sprintf("%s.%s", shp, field)}
}

func (w *walker) invariant(msg string) error {
	return &WalkError{Code: ErrInvariantViolation, Pos: w.parser.Pos(), Msg: msg}
}

func (w *walker) schemaMismatch(msg string) error {
	return &WalkError{Code: ErrSchemaMismatch, Pos: w.parser.Pos(), Msg: msg}
}

func (w *walker) recursion() error {
	return &WalkError{Code: ErrRecursionDepth, Pos: w.parser.Pos()}
}
