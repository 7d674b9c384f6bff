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

// Package shapeform is a reflection-driven, multi-format deserialization
// framework.
//
// A [Shape] is a static descriptor of a Go type: its layout, its fields (for
// structs), its variants (for enums encoded as tagged unions), and a set of
// vtables that let the core move, drop, and convert values of that type
// without using the reflect package's generic (and slow) machinery.
//
// Given a Shape and a byte-oriented input, [Deserialize] incrementally
// constructs a value of that shape directly into caller-supplied memory,
// using either the interpreter tier (internal/event) or, for supported
// shapes, a compiled tier (internal/jit) that memoizes a closure chain per
// (shape, format) pair.
//
// The canonical Shape struct definition lives in internal/partial (the
// lowest-level consumer of it); this package re-exports it via type
// aliases so that internal/event, internal/jit, and the format/*
// sub-packages can all share a single definition without an import cycle
// back through the public API.
package shapeform

import "github.com/shapeform/shapeform/internal/partial"

// Shape is the static, immutable descriptor for a Go type. See
// internal/partial.ShapeDescriptor for field documentation.
type Shape = partial.ShapeDescriptor

// Field describes one field of a struct, or one field of a selected enum
// variant.
type Field = partial.FieldDescriptor

// Variant describes one case of an enum (a tagged union).
type Variant = partial.VariantDescriptor

// VTable holds the shape-level function pointers every tier relies on.
type VTable = partial.VTable

// ListVTable is the def-specific vtable for list/slice/set shapes.
type ListVTable = partial.ListVTable

// MapVTable is the def-specific vtable for map shapes.
type MapVTable = partial.MapVTable

// OptionVTable is the def-specific vtable for option shapes.
type OptionVTable = partial.OptionVTable

// SmartVTable is the def-specific vtable for smart-pointer shapes.
type SmartVTable = partial.SmartVTable

// SliceBuilderVTable supports Arc<[T]>-style incremental slice building.
type SliceBuilderVTable = partial.SliceBuilderVTable

// Kind classifies the top-level nature of a type.
type Kind = int

// Kind values (mirrors internal/partial's untyped Kind tags).
const (
	KindPrimitive Kind = 0
	KindSequence  Kind = 1
	KindUserType  Kind = 2
	KindPointer   Kind = 3
)

// UserKind distinguishes struct/enum/union/opaque user types.
const (
	UserStruct UserKind = 0
	UserEnum   UserKind = 1
	UserUnion  UserKind = 2
	UserOpaque UserKind = 3
)

// UserKind is the type of UserKind* constants.
type UserKind = int

// KnownPointer identifies a well-known pointer/ownership wrapper.
const (
	PointerNone      KnownPointer = 0
	PointerBox       KnownPointer = 1
	PointerRc        KnownPointer = 2
	PointerArc       KnownPointer = 3
	PointerSharedRef KnownPointer = 4
	PointerFunction  KnownPointer = 5
)

// KnownPointer is the type of Pointer* constants.
type KnownPointer = int

// DefKind values, classifying a [Shape]'s Def.
const (
	DefScalar       = partial.DefKindScalar
	DefList         = partial.DefKindList
	DefArray        = partial.DefKindArray
	DefSlice        = partial.DefKindSlice
	DefMap          = partial.DefKindMap
	DefSet          = partial.DefKindSet
	DefOption       = partial.DefKindOption
	DefPointer      = partial.DefKindPointer
	DefDynamicValue = partial.DefKindDynamicValue
)

// EnumRepr width constants, in bytes. ReprRustNPO is explicitly
// unsupported (spec §9, "Open questions").
const (
	ReprNone    = 0
	ReprU8      = 1
	ReprU16     = 2
	ReprU32     = 4
	ReprU64     = 8
	ReprRustNPO = -1
)

// ScalarKind enumerates the primitive scalar kinds the core understands.
type ScalarKind = partial.ScalarKind

const (
	ScalarInvalid = partial.ScalarInvalid
	ScalarBool    = partial.ScalarBool
	ScalarI8      = partial.ScalarI8
	ScalarI16     = partial.ScalarI16
	ScalarI32     = partial.ScalarI32
	ScalarI64     = partial.ScalarI64
	ScalarU8      = partial.ScalarU8
	ScalarU16     = partial.ScalarU16
	ScalarU32     = partial.ScalarU32
	ScalarU64     = partial.ScalarU64
	ScalarF32     = partial.ScalarF32
	ScalarF64     = partial.ScalarF64
	ScalarString  = partial.ScalarString
	ScalarBytes   = partial.ScalarBytes
	ScalarUnit    = partial.ScalarUnit
)

// Attrs carries the field-attribute annotations the event deserializer's
// policy layer and the JIT compiler's compatibility predicate key off of.
type Attrs = partial.Attrs

// EnumTagPolicy selects how an enum's wire representation is interpreted.
type EnumTagPolicy = partial.EnumTagPolicy

const (
	TagExternal  = partial.TagExternal
	TagInternal  = partial.TagInternal
	TagAdjacent  = partial.TagAdjacent
	TagUntagged  = partial.TagUntagged
	TagNumeric   = partial.TagNumeric
	TagCow       = partial.TagCow
)

// VariantKind classifies a variant's payload shape for untagged dispatch.
type VariantKind = partial.VariantKind

const (
	VariantUnit   = partial.VariantUnit
	VariantScalar = partial.VariantScalar
	VariantTuple  = partial.VariantTuple
	VariantStruct = partial.VariantStruct
)
