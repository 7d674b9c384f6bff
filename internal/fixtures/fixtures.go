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

// Package fixtures builds internal/partial.ShapeDescriptor graphs by hand,
// the way generated Shaper code would, for use by this module's own test
// suites (internal/partial, internal/event, internal/jit, the root
// package). Real callers get a Shape from generated code; tests here have
// no generator to run, so this package is the one place that knowledge of
// ShapeDescriptor's raw field layout is duplicated for test purposes.
package fixtures

import (
	"reflect"
	"unsafe"

	"github.com/shapeform/shapeform/internal/jitfmt"
	"github.com/shapeform/shapeform/internal/partial"
)

// JitFormat is a scriptable jitfmt.JitFormat for tests that need to drive
// internal/jit's compiler/runner against both struct-encoding strategies
// without depending on format/json or format/postcard directly.
type JitFormat struct {
	NameStr    string
	Encoding   jitfmt.StructEncoding
	SeqCount   bool
	NonSelfDes bool
}

func (f JitFormat) Name() string                         { return f.NameStr }
func (f JitFormat) StructEncoding() jitfmt.StructEncoding { return f.Encoding }
func (f JitFormat) ProvidesSeqCount() bool                { return f.SeqCount }
func (f JitFormat) IsNonSelfDescribing() bool             { return f.NonSelfDes }

// Scalar builds a leaf Shape for one of the core's primitive kinds, backed
// by goType. DefaultInPlace zeroes the slot via reflect, matching every
// primitive Go type's own zero value.
func Scalar(kind partial.ScalarKind, goType reflect.Type) *partial.ShapeDescriptor {
	return &partial.ShapeDescriptor{
		Name:    goType.String(),
		Size:    goType.Size(),
		Align:   uintptr(goType.Align()),
		Kind:    0,
		DefKind: partial.DefKindScalar,
		Scalar:  kind,
		GoType:  goType,
		VT: partial.VTable{
			DefaultInPlace: func(p unsafe.Pointer) {
				reflect.NewAt(goType, p).Elem().Set(reflect.Zero(goType))
			},
		},
	}
}

// Field describes one field of structType by name, at its real memory
// offset, backed by shape.
func Field(structType reflect.Type, name string, shape *partial.ShapeDescriptor) partial.FieldDescriptor {
	sf, ok := structType.FieldByName(name)
	if !ok {
		panic("fixtures: no such field " + name + " on " + structType.String())
	}
	return partial.FieldDescriptor{Name: name, Offset: sf.Offset, Shape: shape}
}

// Struct builds a plain struct Shape (UserKind == struct) over goType.
func Struct(goType reflect.Type, fields []partial.FieldDescriptor) *partial.ShapeDescriptor {
	return &partial.ShapeDescriptor{
		Name:     goType.Name(),
		Size:     goType.Size(),
		Align:    uintptr(goType.Align()),
		Kind:     2,
		UserKind: 0,
		Fields:   fields,
		GoType:   goType,
	}
}

// Enum builds an externally-tagged enum Shape (UserKind == enum) over
// goType, whose discriminant lives in the first reprWidth bytes. No variant
// is treated as a #[other] fallback (Attrs.OtherVariant is -1, not the zero
// value 0, which would otherwise alias variant index 0).
func Enum(goType reflect.Type, reprWidth int, variants []partial.VariantDescriptor) *partial.ShapeDescriptor {
	return &partial.ShapeDescriptor{
		Name:     goType.Name(),
		Size:     goType.Size(),
		Align:    uintptr(goType.Align()),
		Kind:     2,
		UserKind: 1,
		EnumRepr: reprWidth,
		Variants: variants,
		GoType:   goType,
		Attrs:    partial.Attrs{OtherVariant: -1},
	}
}

// List builds a Shape for a Go slice type over elem, using reflect to
// implement the ListVTable generically (InitWithCapacity/Push/Len) so
// tests never need a hand-written vtable per element type.
func List(sliceType reflect.Type, elem *partial.ShapeDescriptor) *partial.ShapeDescriptor {
	return &partial.ShapeDescriptor{
		Name:    sliceType.String(),
		Size:    sliceType.Size(),
		Align:   uintptr(sliceType.Align()),
		Kind:    1,
		DefKind: partial.DefKindSlice,
		Elem:    elem,
		GoType:  sliceType,
		ListVT: partial.ListVTable{
			InitWithCapacity: func(p unsafe.Pointer, cap int) {
				reflect.NewAt(sliceType, p).Elem().Set(reflect.MakeSlice(sliceType, 0, cap))
			},
			Push: func(p, elemPtr unsafe.Pointer) {
				dst := reflect.NewAt(sliceType, p).Elem()
				ev := reflect.NewAt(elem.GoType, elemPtr).Elem()
				dst.Set(reflect.Append(dst, ev))
			},
			Len: func(p unsafe.Pointer) int {
				return reflect.NewAt(sliceType, p).Elem().Len()
			},
		},
	}
}

// Map builds a Shape for a Go map type over key/value, using reflect to
// implement MapVTable generically.
func Map(mapType reflect.Type, key, value *partial.ShapeDescriptor) *partial.ShapeDescriptor {
	return &partial.ShapeDescriptor{
		Name:    mapType.String(),
		Size:    mapType.Size(),
		Align:   uintptr(mapType.Align()),
		Kind:    1,
		DefKind: partial.DefKindMap,
		Key:     key,
		Value:   value,
		GoType:  mapType,
		MapVT: partial.MapVTable{
			InitWithCapacity: func(p unsafe.Pointer, cap int) {
				reflect.NewAt(mapType, p).Elem().Set(reflect.MakeMapWithSize(mapType, cap))
			},
			Insert: func(p, k, v unsafe.Pointer) {
				m := reflect.NewAt(mapType, p).Elem()
				kv := reflect.NewAt(key.GoType, k).Elem()
				vv := reflect.NewAt(value.GoType, v).Elem()
				m.SetMapIndex(kv, vv)
			},
			Len: func(p unsafe.Pointer) int {
				return reflect.NewAt(mapType, p).Elem().Len()
			},
		},
	}
}

// Option builds a Shape for a Go pointer type representing Option<elem>:
// nil is None, non-nil is Some (spec §9 Open Question, resolved against
// Rust's non-null-pointer-optimization types by using a plain nilable
// pointer rather than reserving a sentinel bit pattern).
func Option(ptrType reflect.Type, elem *partial.ShapeDescriptor) *partial.ShapeDescriptor {
	return &partial.ShapeDescriptor{
		Name:    ptrType.String(),
		Size:    ptrType.Size(),
		Align:   uintptr(ptrType.Align()),
		Kind:    3,
		DefKind: partial.DefKindOption,
		Elem:    elem,
		GoType:  ptrType,
		OptVT: partial.OptionVTable{
			InitNone: func(p unsafe.Pointer) {
				reflect.NewAt(ptrType, p).Elem().Set(reflect.Zero(ptrType))
			},
			InitSome: func(p, innerPtr unsafe.Pointer) {
				reflect.NewAt(ptrType, p).Elem().Set(reflect.NewAt(elem.GoType, innerPtr))
			},
			IsSome: func(p unsafe.Pointer) bool {
				return !reflect.NewAt(ptrType, p).Elem().IsNil()
			},
		},
	}
}
