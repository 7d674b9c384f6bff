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

package partial

import "unsafe"

// HeapValue is a heap-owned, fully-initialized value of some Shape, handed
// out by [Partial.Build]. It is the Go analogue of facet-reflect's
// HeapValue: a type-erased box that the caller downcasts via reflect or via
// a typed wrapper (see shapeform.TypedPartial).
type HeapValue struct {
	Data  unsafe.Pointer
	Shape *ShapeDescriptor
}

// Build runs the shape's Invariants vtable entry if present, and hands out
// a HeapValue transferring ownership to the caller (spec §4.1, "build").
//
// A root frame only ever reaches Tracker.Kind == TrackInit when its value
// was itself built through a parent End() (Option/SmartPointer pop into
// TrackInit; see end.go). A root Struct/Array/Enum/List/Map has no parent
// to pop into, so it stays at its own container Tracker.Kind forever, with
// completeness tracked by its bitmask/CurrentChild instead — the same
// state requireFullInit already accepts as poppable. Build() reuses that
// check rather than demanding TrackInit unconditionally, or every
// ordinary struct-rooted deserialize would fail here.
func (p *Partial) Build() (HeapValue, error) {
	if err := p.requireActive(); err != nil {
		return HeapValue{}, err
	}
	if len(p.Frames) != 1 {
		return HeapValue{}, &InvariantViolation{Operation: "build", State: "frame stack is not at the root"}
	}
	root := &p.Frames[0]
	if root.Tracker.Kind == TrackUninit {
		return HeapValue{}, &InvariantViolation{Operation: "build", State: root.Tracker.Kind.String()}
	}
	if root.Tracker.Kind != TrackInit {
		if err := root.requireFullInit(); err != nil {
			return HeapValue{}, err
		}
	}
	if root.Shape.VT.Invariants != nil && !root.Shape.VT.Invariants(root.Data) {
		return HeapValue{}, &InvariantsFailed{Shape: root.Shape}
	}

	p.Built = true
	return HeapValue{Data: root.Data, Shape: root.Shape}, nil
}

// IsFieldSet reports whether field index idx of the top frame has been
// written (used by the event deserializer's out-of-order field probing and
// by flatten's deferred-default machinery).
func (p *Partial) IsFieldSet(idx int) (bool, error) {
	f := p.top()
	if f.Tracker.Kind != TrackStruct && f.Tracker.Kind != TrackEnum {
		return false, &InvariantViolation{Operation: "is_field_set", State: f.Tracker.Kind.String()}
	}
	return f.Tracker.IsSet(idx), nil
}

// FieldIndex looks up a field by name on the top frame (struct) or
// currently-selected variant (enum).
func (p *Partial) FieldIndex(name string) int {
	f := p.top()
	fields, _ := p.fieldSetOf(f)
	for i, fd := range fields {
		if fd.Name == name {
			return i
		}
	}
	return -1
}

// SetNthFieldToDefault applies a field's Shape.VT.DefaultInPlace (or, for
// Option fields, writes None) without pushing/popping a frame — a
// convenience used by the event deserializer's end-of-struct defaulting
// pass (spec §4.2, "Defaults").
func (p *Partial) SetNthFieldToDefault(idx int) error {
	f := p.top()
	fields, _ := p.fieldSetOf(f)
	if idx < 0 || idx >= len(fields) {
		return &OperationFailed{Shape: f.Shape, Operation: "set_nth_field_to_default", Reason: "index out of range"}
	}
	fd := fields[idx]
	ptr := fieldPointer(f.Data, fd.Offset)
	if fd.Shape.DefKind == DefKindOption {
		fd.Shape.OptVT.InitNone(ptr)
	} else if fd.Shape.VT.DefaultInPlace != nil {
		fd.Shape.VT.DefaultInPlace(ptr)
	} else {
		return &OperationFailed{Shape: fd.Shape, Operation: "set_nth_field_to_default", Reason: "no Default impl"}
	}
	f.Tracker.SetBit(idx)
	return nil
}
