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

import (
	"reflect"
	"unsafe"

	"github.com/shapeform/shapeform/internal/debug"
)

// Set bitwise-copies value (of Go type T matching the top frame's GoType)
// into the current slot and marks it Init (spec §4.1, "set").
func (p *Partial) Set(value any) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	rv := reflect.ValueOf(value)
	if f.Shape.GoType != nil && rv.Type() != f.Shape.GoType {
		return &OperationFailed{Shape: f.Shape, Operation: "set", Reason: "type mismatch"}
	}
	reflect.NewAt(rv.Type(), f.Data).Elem().Set(rv)
	f.Tracker = Tracker{Kind: TrackInit}
	return nil
}

// SetShape bitwise-copies the Size bytes at src into the current slot,
// after checking that shape matches the top frame's shape, and marks it
// Init (spec §4.1, "set_shape": "shape matches top frame", "same [as set],
// fallibly-checked"). Unlike Set, which takes a boxed Go value and relies
// on reflect.NewAt to find the right width, SetShape is the raw-pointer
// form used when the caller already has an untyped source slot and a
// ShapeDescriptor to check it against — e.g. copying one list element's
// scratch value into its final home without round-tripping through `any`.
func (p *Partial) SetShape(src unsafe.Pointer, shape *ShapeDescriptor) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if shape != f.Shape {
		return &OperationFailed{Shape: f.Shape, Operation: "set_shape", Reason: "shape mismatch"}
	}
	if src == nil {
		return &OperationFailed{Shape: f.Shape, Operation: "set_shape", Reason: "nil source"}
	}
	copy(unsafe.Slice((*byte)(f.Data), f.Shape.Size), unsafe.Slice((*byte)(src), f.Shape.Size))
	f.Tracker = Tracker{Kind: TrackInit}
	debug.Log(nil, "set_shape", "%v", f.Shape)
	return nil
}

// SetDefault calls the shape's DefaultInPlace vtable entry (spec §4.1,
// "set_default").
func (p *Partial) SetDefault() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Shape.VT.DefaultInPlace == nil {
		return &OperationFailed{Shape: f.Shape, Operation: "set_default", Reason: "no Default impl"}
	}
	f.Shape.VT.DefaultInPlace(f.Data)
	f.Tracker = Tracker{Kind: TrackInit}
	return nil
}

// ParseFromStr calls the shape's Parse vtable entry (spec §4.1,
// "parse_from_str").
func (p *Partial) ParseFromStr(s string) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Shape.VT.Parse == nil {
		return &OperationFailed{Shape: f.Shape, Operation: "parse_from_str", Reason: "no Parse impl"}
	}
	if err := f.Shape.VT.Parse(s, f.Data); err != nil {
		return err
	}
	f.Tracker = Tracker{Kind: TrackInit}
	return nil
}

// SelectVariant writes the discriminant for an enum using enum_repr width,
// and transitions the top tracker to Struct-for-variant Enum{bitmask=0}
// (spec §4.1, "select_variant"; spec invariant 5).
func (p *Partial) SelectVariant(discriminant uint64) error {
	f := p.top()
	idx := -1
	for i, v := range f.Shape.Variants {
		if v.Discriminant == discriminant {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &OperationFailed{Shape: f.Shape, Operation: "select_variant", Reason: "no such discriminant"}
	}
	return p.selectVariantIdx(idx)
}

// SelectVariantNamed is SelectVariant by name.
func (p *Partial) SelectVariantNamed(name string) error {
	f := p.top()
	for i, v := range f.Shape.Variants {
		if v.Name == name {
			return p.selectVariantIdx(i)
		}
	}
	return &OperationFailed{Shape: f.Shape, Operation: "select_variant_named", Reason: "no such variant: " + name}
}

// SelectNthVariant is SelectVariant by index.
func (p *Partial) SelectNthVariant(idx int) error {
	f := p.top()
	if idx < 0 || idx >= len(f.Shape.Variants) {
		return &OperationFailed{Shape: f.Shape, Operation: "select_nth_variant", Reason: "index out of range"}
	}
	return p.selectVariantIdx(idx)
}

func (p *Partial) selectVariantIdx(idx int) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	v := f.Shape.Variants[idx]
	writeDiscriminant(f.Data, v.Discriminant, f.Shape.EnumRepr)
	f.Tracker = newIndexedTracker(TrackEnum)
	f.Tracker.VariantIdx = idx
	debug.Log(nil, "select_variant", "%v -> %s", f.Shape, v.Name)
	return nil
}

func writeDiscriminant(data unsafe.Pointer, disc uint64, width int) {
	switch width {
	case 1:
		*(*uint8)(data) = uint8(disc)
	case 2:
		*(*uint16)(data) = uint16(disc)
	case 4:
		*(*uint32)(data) = uint32(disc)
	case 8:
		*(*uint64)(data) = disc
	}
}

func readDiscriminant(data unsafe.Pointer, width int) uint64 {
	switch width {
	case 1:
		return uint64(*(*uint8)(data))
	case 2:
		return uint64(*(*uint16)(data))
	case 4:
		return uint64(*(*uint32)(data))
	case 8:
		return *(*uint64)(data)
	}
	return 0
}

// ReadDiscriminant is readDiscriminant's exported form, for read-only
// callers outside this package (the root package's Peek type) that need to
// identify an already-built enum's active variant without driving a
// Partial.
func ReadDiscriminant(data unsafe.Pointer, width int) uint64 {
	return readDiscriminant(data, width)
}

// currentVariant returns the field list for the enum variant selected at
// the top frame, or nil if the top frame is not a selected enum.
func (f *Frame) currentVariant() []FieldDescriptor {
	if f.Tracker.Kind != TrackEnum || f.Tracker.VariantIdx < 0 {
		return nil
	}
	return f.Shape.Variants[f.Tracker.VariantIdx].Fields
}

// BeginField pushes a child frame pointing into the named field's offset
// (spec §4.1, "begin_field").
func (p *Partial) BeginField(name string) error {
	f := p.top()
	fields, isEnum := p.fieldSetOf(f)
	for i, fd := range fields {
		if fd.Name == name {
			return p.beginFieldIdx(i, fields, isEnum)
		}
	}
	return &OperationFailed{Shape: f.Shape, Operation: "begin_field", Reason: "no such field: " + name}
}

// BeginNthField is BeginField by index.
func (p *Partial) BeginNthField(idx int) error {
	f := p.top()
	fields, isEnum := p.fieldSetOf(f)
	if idx < 0 || idx >= len(fields) {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_nth_field", Reason: "index out of range"}
	}
	return p.beginFieldIdx(idx, fields, isEnum)
}

// fieldSetOf returns the fields applicable to the top frame: a struct's own
// fields, or the currently-selected enum variant's fields.
func (p *Partial) fieldSetOf(f *Frame) (fields []FieldDescriptor, isEnum bool) {
	if f.Tracker.Kind == TrackEnum {
		return f.currentVariant(), true
	}
	return f.Shape.Fields, false
}

func (p *Partial) beginFieldIdx(idx int, fields []FieldDescriptor, isEnum bool) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Tracker.Kind != TrackStruct && f.Tracker.Kind != TrackEnum {
		if f.Tracker.Kind == TrackUninit && !isEnum {
			f.Tracker = newIndexedTracker(TrackStruct)
		} else {
			return &InvariantViolation{Operation: "begin_field", State: f.Tracker.Kind.String()}
		}
	}
	if f.Tracker.CurrentChild >= 0 {
		return &InvariantViolation{Operation: "begin_field", State: "child already in progress"}
	}
	fd := fields[idx]
	child := Frame{
		Data:      fieldPointer(f.Data, fd.Offset),
		Shape:     fd.Shape,
		Ownership: FieldFrame,
		Tracker:   Tracker{Kind: TrackUninit},
	}
	f.Tracker.CurrentChild = idx
	p.Frames = append(p.Frames, child)
	return nil
}

// BeginNthElement pushes a child frame for element idx of a fixed Array
// (spec §4.1, "begin_nth_element").
func (p *Partial) BeginNthElement(idx int) error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Shape.DefKind != DefKindArray {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_nth_element", Reason: "not an array"}
	}
	if idx < 0 || idx >= f.Shape.ArrLen {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_nth_element", Reason: "index out of range"}
	}
	if f.Tracker.Kind == TrackUninit {
		f.Tracker = newIndexedTracker(TrackArray)
	}
	if f.Tracker.Kind != TrackArray {
		return &InvariantViolation{Operation: "begin_nth_element", State: f.Tracker.Kind.String()}
	}
	if f.Tracker.CurrentChild >= 0 {
		return &InvariantViolation{Operation: "begin_nth_element", State: "child already in progress"}
	}
	elemSize := f.Shape.Elem.Size
	child := Frame{
		Data:      fieldPointer(f.Data, uintptr(idx)*elemSize),
		Shape:     f.Shape.Elem,
		Ownership: FieldFrame,
		Tracker:   Tracker{Kind: TrackUninit},
	}
	f.Tracker.CurrentChild = idx
	p.Frames = append(p.Frames, child)
	return nil
}

// BeginList initializes the top frame's List (calling InitWithCapacity(0)
// if not already initialized) and transitions to Tracker.Kind == TrackList
// (spec §4.1, "begin_list").
func (p *Partial) BeginList() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Shape.DefKind != DefKindList && f.Shape.DefKind != DefKindSlice && f.Shape.DefKind != DefKindSet {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_list", Reason: "not a list"}
	}
	if f.Tracker.Kind != TrackUninit && f.Tracker.Kind != TrackList {
		return &InvariantViolation{Operation: "begin_list", State: f.Tracker.Kind.String()}
	}
	if !f.Tracker.ListInitialized {
		f.Shape.ListVT.InitWithCapacity(f.Data, 0)
		f.Tracker = Tracker{Kind: TrackList, ListInitialized: true}
	}
	return nil
}

// BeginListItem allocates a temporary for the element shape and pushes an
// owned-temp frame (spec §4.1, "begin_list_item").
func (p *Partial) BeginListItem() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Tracker.Kind != TrackList || !f.Tracker.ListInitialized {
		return &InvariantViolation{Operation: "begin_list_item", State: f.Tracker.Kind.String()}
	}
	if f.Tracker.HasPendingItem {
		return &InvariantViolation{Operation: "begin_list_item", State: "item already in progress"}
	}
	elemShape := f.Shape.Elem
	data, err := allocZeroed(elemShape)
	if err != nil {
		return &OperationFailed{Shape: elemShape, Operation: "begin_list_item", Reason: "failed to allocate memory"}
	}
	f.Tracker.HasPendingItem = true
	p.Frames = append(p.Frames, Frame{Data: data, Shape: elemShape, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
	return nil
}

// BeginMap initializes the top frame's Map and transitions to TrackMap
// (spec §4.1, "begin_map").
func (p *Partial) BeginMap() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Shape.DefKind != DefKindMap {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_map", Reason: "not a map"}
	}
	if !f.Tracker.MapInitialized {
		f.Shape.MapVT.InitWithCapacity(f.Data, 0)
		f.Tracker = Tracker{Kind: TrackMap, MapInitialized: true, InsertState: MapIdle}
	}
	return nil
}

// BeginKey allocates a key temp and pushes an owned-temp frame (spec
// §4.1, "begin_key").
func (p *Partial) BeginKey() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Tracker.Kind != TrackMap || f.Tracker.InsertState != MapIdle {
		return &InvariantViolation{Operation: "begin_key", State: f.Tracker.Kind.String()}
	}
	keyShape := f.Shape.Key
	data, err := allocZeroed(keyShape)
	if err != nil {
		return &OperationFailed{Shape: keyShape, Operation: "begin_key", Reason: "failed to allocate memory"}
	}
	f.Tracker.InsertState = MapPushingKey
	p.Frames = append(p.Frames, Frame{Data: data, Shape: keyShape, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
	return nil
}

// BeginValue allocates a value temp and pushes an owned-temp frame (spec
// §4.1, "begin_value").
func (p *Partial) BeginValue() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Tracker.Kind != TrackMap || f.Tracker.InsertState != MapPushingKey {
		return &InvariantViolation{Operation: "begin_value", State: f.Tracker.Kind.String()}
	}
	valShape := f.Shape.Value
	data, err := allocZeroed(valShape)
	if err != nil {
		return &OperationFailed{Shape: valShape, Operation: "begin_value", Reason: "failed to allocate memory"}
	}
	p.Frames = append(p.Frames, Frame{Data: data, Shape: valShape, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
	return nil
}

// BeginSome allocates an inner-T temp and pushes an owned-temp frame,
// transitioning the parent tracker to Option{building_inner=true} (spec
// §4.1, "begin_some").
func (p *Partial) BeginSome() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Shape.DefKind != DefKindOption {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_some", Reason: "not an option"}
	}
	if f.Tracker.Kind != TrackUninit {
		return &InvariantViolation{Operation: "begin_some", State: f.Tracker.Kind.String()}
	}
	inner := f.Shape.Elem
	data, err := allocZeroed(inner)
	if err != nil {
		return &OperationFailed{Shape: inner, Operation: "begin_some", Reason: "failed to allocate memory"}
	}
	f.Tracker = Tracker{Kind: TrackOption, BuildingInner: true}
	p.Frames = append(p.Frames, Frame{Data: data, Shape: inner, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
	return nil
}

// BeginInner pushes a conversion frame of the inner type when the top
// shape has an Inner shape and a TryFrom vtable, or is a transparent
// newtype (spec §4.1, "begin_inner").
func (p *Partial) BeginInner() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	inner := f.Shape.Inner
	if inner == nil {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_inner", Reason: "no inner shape"}
	}
	if f.Tracker.Kind != TrackUninit {
		return &InvariantViolation{Operation: "begin_inner", State: f.Tracker.Kind.String()}
	}
	if f.Shape.Transparent {
		// Transparent newtypes forward directly into the single field at
		// offset 0; no separate temp allocation is needed (spec §4.2,
		// "Transparent / Cow").
		f.Tracker = newIndexedTracker(TrackStruct)
		p.Frames = append(p.Frames, Frame{Data: f.Data, Shape: inner, Ownership: FieldFrame, Tracker: Tracker{Kind: TrackUninit}})
		f.Tracker.CurrentChild = 0
		return nil
	}
	data, err := allocZeroed(inner)
	if err != nil {
		return &OperationFailed{Shape: inner, Operation: "begin_inner", Reason: "failed to allocate memory"}
	}
	p.Frames = append(p.Frames, Frame{Data: data, Shape: inner, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
	return nil
}

// BeginSmartPtr begins constructing the pointee of a Box/Rc/Arc/&T shape
// (spec §4.1, "begin_smart_ptr").
func (p *Partial) BeginSmartPtr() error {
	if err := p.requireActive(); err != nil {
		return err
	}
	f := p.top()
	if f.Shape.DefKind != DefKindPointer {
		return &OperationFailed{Shape: f.Shape, Operation: "begin_smart_ptr", Reason: "not a pointer"}
	}
	pointee := f.Shape.Pointee
	if pointee.DefKind == DefKindSlice && f.Shape.SmartVT.SliceBuilder != nil {
		// Arc<[T]>-style: delegate to the slice builder.
		vt := f.Shape.SmartVT.SliceBuilder
		builder := vt.Begin()
		f.Tracker = Tracker{Kind: TrackSmartPointerSlice, SliceVT: vt, SliceBuilderPtr: uintptr(builder)}
		return nil
	}

	if pointee.Name == "string" {
		// For str pointees, the intermediate frame is a String (spec
		// invariant 6).
		data, err := allocZeroed(pointee)
		if err != nil {
			return &OperationFailed{Shape: pointee, Operation: "begin_smart_ptr", Reason: "failed to allocate memory"}
		}
		f.Tracker = Tracker{Kind: TrackSmartPointer}
		p.Frames = append(p.Frames, Frame{Data: data, Shape: pointee, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
		return nil
	}

	data, err := allocZeroed(pointee)
	if err != nil {
		return &OperationFailed{Shape: pointee, Operation: "begin_smart_ptr", Reason: "failed to allocate memory"}
	}
	f.Tracker = Tracker{Kind: TrackSmartPointer}
	p.Frames = append(p.Frames, Frame{Data: data, Shape: pointee, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
	return nil
}

// PushSliceItem pushes an element onto an in-progress SmartPointerSlice
// builder (used by BeginSmartPtr's slice path together with End()).
func (p *Partial) PushSliceItem() error {
	f := p.top()
	if f.Tracker.Kind != TrackSmartPointerSlice || f.Tracker.SliceBuilding {
		return &InvariantViolation{Operation: "begin_slice_item", State: f.Tracker.Kind.String()}
	}
	elem := f.Shape.Pointee.Elem
	data, err := allocZeroed(elem)
	if err != nil {
		return &OperationFailed{Shape: elem, Operation: "begin_slice_item", Reason: "failed to allocate memory"}
	}
	f.Tracker.SliceBuilding = true
	p.Frames = append(p.Frames, Frame{Data: data, Shape: elem, Ownership: OwnedFrame, Tracker: Tracker{Kind: TrackUninit}})
	return nil
}
