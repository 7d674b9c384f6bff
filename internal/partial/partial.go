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

// Package partial implements the stack-based incremental value builder
// described in spec §4.1.
//
// A [Partial] owns one heap allocation of a target [shapeform.Shape] and a
// stack of [Frame]s, one per level of nesting currently under
// construction. Operations on a Partial form a small language (set,
// begin_*, end, build) that both the event-driven deserializer
// (internal/event) and hand-written code can drive.
package partial

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/shapeform/shapeform/internal/debug"
)

// ShapeDescriptor is the canonical static type descriptor used across every
// tier (Partial, the event deserializer, and the JIT compiler). The public
// package re-exports it as shapeform.Shape via a type alias, so that this
// lowest-level package can own the one definition without creating an
// import cycle back through the public API.
//
// It is kept as a concrete struct (not an interface) so that field access
// stays inlinable on the hot path.
type ShapeDescriptor struct {
	Name     string
	Size     uintptr
	Align    uintptr
	Unsized  bool
	Kind     int // 0=primitive,1=sequence,2=user,3=pointer
	UserKind int // 0=struct,1=enum,2=union,3=opaque

	Fields   []FieldDescriptor
	Variants []VariantDescriptor
	EnumRepr int // width in bytes, 0 = none

	Known   int // KnownPointer tag
	Pointee *ShapeDescriptor

	DefKind int // see DefKind* consts
	Scalar  ScalarKind
	Elem    *ShapeDescriptor
	ArrLen  int
	Key     *ShapeDescriptor
	Value   *ShapeDescriptor

	VT      VTable
	ListVT  ListVTable
	MapVT   MapVTable
	OptVT   OptionVTable
	SmartVT SmartVTable

	Inner *ShapeDescriptor

	Flatten     bool
	Transparent bool

	// Attrs carries the field-attribute annotations the event
	// deserializer's policy layer and the JIT compiler's compatibility
	// predicate key off of (tag policy, rename, flatten, default, skip,
	// other-variant, cow). Partial itself only reads Flatten/Transparent
	// above; the rest travels with the Shape for the other tiers.
	Attrs Attrs

	// GoType is the concrete Go type backing this shape. Allocations go
	// through reflect.New(GoType) rather than a raw byte buffer so that the
	// garbage collector can correctly scan pointers embedded in the
	// allocation (strings, slices, nested pointers); every other part of
	// the core treats the resulting pointer as opaque bytes addressed by
	// Offset, exactly as if it had come from a pointer-free arena. This is
	// the one place the implementation leans on reflect, and only at
	// allocation time, never on the parse hot path.
	GoType reflect.Type
}

// EnumTagPolicy selects how an enum's wire representation is interpreted
// (spec §4.2, "Enum dispatch").
type EnumTagPolicy int

const (
	TagExternal EnumTagPolicy = iota
	TagInternal
	TagAdjacent
	TagUntagged
	TagNumeric
	TagCow
)

// Attrs mirrors facet's field-attribute annotations.
type Attrs struct {
	Rename  string
	Aliases []string

	Default bool
	Skip    bool

	TagPolicy         EnumTagPolicy
	TagField          string
	ContentField      string
	OtherVariant      int // index into Variants of #[other], or -1.
	OtherTagField     string
	OtherContentField string

	CowBorrowed bool
}

func (s *ShapeDescriptor) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Name
}

// DefKind values, mirrored from the root package to break the import cycle.
const (
	DefKindScalar = iota
	DefKindList
	DefKindArray
	DefKindSlice
	DefKindMap
	DefKindSet
	DefKindOption
	DefKindPointer
	DefKindDynamicValue
)

// FieldDescriptor is one struct field or enum-variant field.
type FieldDescriptor struct {
	Name   string
	Offset uintptr
	Shape  *ShapeDescriptor
	Attrs  Attrs
}

// VariantKind classifies a variant's payload shape, used by untagged-enum
// dispatch (spec §4.2, "VariantsByFormat").
type VariantKind int

const (
	VariantUnit VariantKind = iota
	VariantScalar
	VariantTuple
	VariantStruct
)

// VariantDescriptor is one enum case.
type VariantDescriptor struct {
	Name         string
	Discriminant uint64
	Fields       []FieldDescriptor
	Kind         VariantKind
}

// VTable mirrors shapeform.VTable.
type VTable struct {
	DropInPlace    func(unsafe.Pointer)
	DefaultInPlace func(unsafe.Pointer)
	Parse          func(string, unsafe.Pointer) error
	TryFrom        func(src, dst unsafe.Pointer) error
	Invariants     func(unsafe.Pointer) bool
}

// ListVTable mirrors shapeform.ListVTable.
type ListVTable struct {
	InitWithCapacity func(unsafe.Pointer, int)
	Push             func(unsafe.Pointer, unsafe.Pointer)
	Reserve          func(unsafe.Pointer, int)
	SetLen           func(unsafe.Pointer, int)
	AsMutPtr         func(unsafe.Pointer) unsafe.Pointer
	Capacity         func(unsafe.Pointer) int
	Len              func(unsafe.Pointer) int
}

// MapVTable mirrors shapeform.MapVTable.
type MapVTable struct {
	InitWithCapacity func(unsafe.Pointer, int)
	Insert           func(unsafe.Pointer, unsafe.Pointer, unsafe.Pointer)
	Len              func(unsafe.Pointer) int
}

// OptionVTable mirrors shapeform.OptionVTable.
type OptionVTable struct {
	InitNone func(unsafe.Pointer)
	InitSome func(unsafe.Pointer, unsafe.Pointer)
	IsSome   func(unsafe.Pointer) bool
}

// SmartVTable mirrors shapeform.SmartVTable.
type SmartVTable struct {
	NewInto      func(dst, inner unsafe.Pointer)
	SliceBuilder *SliceBuilderVTable
}

// SliceBuilderVTable supports Arc<[T]>-style incremental slice building.
type SliceBuilderVTable struct {
	Begin func() unsafe.Pointer
	Push  func(builder, elem unsafe.Pointer)
	Build func(builder, dst unsafe.Pointer)
}

// FrameOwnership classifies how a Frame's memory was obtained, and
// therefore whether popping/dropping it should free anything (spec §3,
// "Frame").
type FrameOwnership int

const (
	// OwnedFrame's data is a temporary heap allocation owned solely by this
	// frame; it must be freed when the frame is popped or dropped.
	OwnedFrame FrameOwnership = iota
	// FieldFrame's data is a sub-slice of a parent's allocation; it is
	// never deallocated separately.
	FieldFrame
	// ManagedElsewhereFrame's data is owned by a vtable call that has
	// already taken responsibility for it (e.g. a slice-builder's Build).
	ManagedElsewhereFrame
)

// Frame is one level of the Partial's construction stack (spec §3).
type Frame struct {
	Data      unsafe.Pointer
	Shape     *ShapeDescriptor
	Ownership FrameOwnership
	Tracker   Tracker
}

// Partial is a stack-based incremental initializer for a single heap
// allocation of a target Shape (spec §4.1).
type Partial struct {
	Frames []Frame
	Built  bool
	Poisoned bool
}

// AllocShape allocates a new Partial with one Uninit frame owning a
// Shape.Layout-sized allocation (spec invariant 1: the root frame's data
// pointer never moves).
func AllocShape(shape *ShapeDescriptor) (*Partial, error) {
	if shape.Unsized {
		return nil, &OperationFailed{Shape: shape, Operation: "alloc_shape", Reason: "shape is unsized"}
	}

	data, err := allocZeroed(shape)
	if err != nil {
		return nil, &OperationFailed{Shape: shape, Operation: "alloc_shape", Reason: "failed to allocate memory"}
	}

	frames := make([]Frame, 0, 4)
	frames = append(frames, Frame{Data: data, Shape: shape, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})

	debug.Log(nil, "alloc_shape", "%v, layout %d:%d", shape, shape.Size, shape.Align)
	return &Partial{Frames: frames}, nil
}

// FrameCount returns the current stack depth (spec §4.1, doc comment on
// frame_count: starts at 1; begin_* pushes, end pops).
func (p *Partial) FrameCount() int { return len(p.Frames) }

func (p *Partial) top() *Frame { return &p.Frames[len(p.Frames)-1] }

func (p *Partial) requireActive() error {
	if p.Built {
		return &InvariantViolation{Operation: "use", State: "built"}
	}
	if p.Poisoned {
		return &InvariantViolation{Operation: "use", State: "poisoned"}
	}
	return nil
}

// Shape returns the shape of the current (top) frame.
func (p *Partial) Shape() *ShapeDescriptor { return p.top().Shape }

// CurrentVariantIndex returns the index of the variant selected on the top
// frame by SelectVariant/SelectVariantNamed/SelectNthVariant, or -1 if the
// top frame is not a selected enum. Used by the event deserializer to
// recover which variant's fields to walk without re-deriving it from the
// wire (spec §4.2, "enum dispatch").
func (p *Partial) CurrentVariantIndex() int {
	f := p.top()
	if f.Tracker.Kind != TrackEnum {
		return -1
	}
	return f.Tracker.VariantIdx
}

// Path renders the frame stack as its frames' shape names joined by '.'.
func (p *Partial) Path() string {
	out := ""
	for i, f := range p.Frames {
		if i == 0 {
			out = f.Shape.String()
			continue
		}
		out += fmt.Sprintf(".%s", f.Shape.String())
	}
	return out
}
