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

package shapeform

import (
	"reflect"
	"unsafe"

	"github.com/shapeform/shapeform/internal/partial"
)

// Partial is a stack-based incremental initializer for a single heap
// allocation of a target [Shape] (spec §4.1). It is the public facade over
// internal/partial.Partial; both the event-driven deserializer and
// hand-written code drive it through this type.
type Partial struct {
	inner *partial.Partial
}

// AllocShape allocates a new Partial with one Uninit frame owning a
// Shape.Layout-sized allocation.
func AllocShape(shape *Shape) (*Partial, error) {
	p, err := partial.AllocShape(shape)
	if err != nil {
		return nil, err
	}
	return &Partial{inner: p}, nil
}

// Alloc allocates a [TypedPartial] for T, looking up T's shape via
// RegisterShape (see register.go). Panics if no shape has been registered
// for T; this is meant for call sites where T is a compile-time constant,
// analogous to facet's Partial::alloc::<T>().
func Alloc[T any]() (*TypedPartial[T], error) {
	shape := ShapeOf[T]()
	inner, err := AllocShape(shape)
	if err != nil {
		return nil, err
	}
	return &TypedPartial[T]{Partial: inner}, nil
}

// TypedPartial wraps Partial with a Build method that returns a concrete
// *T instead of an untyped HeapValue (spec §4.8, supplemented feature).
type TypedPartial[T any] struct {
	*Partial
}

// Build finishes construction and returns the built *T.
func (t *TypedPartial[T]) Build() (*T, error) {
	hv, err := t.Partial.Build()
	if err != nil {
		return nil, err
	}
	return (*T)(hv.inner.Data), nil
}

// HeapValue is a heap-owned, fully initialized value of some Shape, handed
// out by Partial.Build for untyped callers (e.g. the event deserializer,
// which does not know T at compile time).
type HeapValue struct {
	inner partial.HeapValue
}

// Shape returns the shape of the built value.
func (h HeapValue) Shape() *Shape { return h.inner.Shape }

// Interface reflects the built value out as an any, for callers that want
// to type-assert it themselves.
func (h HeapValue) Interface() any {
	if h.inner.Shape.GoType == nil {
		return nil
	}
	return reflect.NewAt(h.inner.Shape.GoType, h.inner.Data).Interface()
}

// FrameCount returns the current stack depth.
func (p *Partial) FrameCount() int { return p.inner.FrameCount() }

// Shape returns the shape of the current (top) frame.
func (p *Partial) Shape() *Shape { return p.inner.Shape() }

// Path renders a description of the frame stack for error messages.
func (p *Partial) Path() string { return p.inner.Path() }

// Set bitwise-copies value into the current slot.
func (p *Partial) Set(value any) error { return p.inner.Set(value) }

// SetShape bitwise-copies the bytes at src (of the given shape) into the
// current slot, after checking shape matches the top frame's shape. This
// is the raw-pointer counterpart to Set, for callers that already hold an
// untyped source slot and its Shape rather than a boxed Go value.
func (p *Partial) SetShape(src unsafe.Pointer, shape *Shape) error {
	return p.inner.SetShape(src, shape)
}

// SetDefault calls the shape's DefaultInPlace vtable entry.
func (p *Partial) SetDefault() error { return p.inner.SetDefault() }

// ParseFromStr calls the shape's Parse vtable entry.
func (p *Partial) ParseFromStr(s string) error { return p.inner.ParseFromStr(s) }

// SelectVariant writes an enum discriminant by numeric value.
func (p *Partial) SelectVariant(discriminant uint64) error { return p.inner.SelectVariant(discriminant) }

// SelectVariantNamed writes an enum discriminant by variant name.
func (p *Partial) SelectVariantNamed(name string) error { return p.inner.SelectVariantNamed(name) }

// SelectNthVariant writes an enum discriminant by variant index.
func (p *Partial) SelectNthVariant(idx int) error { return p.inner.SelectNthVariant(idx) }

// BeginField pushes a child frame for the named field.
func (p *Partial) BeginField(name string) error { return p.inner.BeginField(name) }

// BeginNthField pushes a child frame for field idx.
func (p *Partial) BeginNthField(idx int) error { return p.inner.BeginNthField(idx) }

// BeginNthElement pushes a child frame for array element idx.
func (p *Partial) BeginNthElement(idx int) error { return p.inner.BeginNthElement(idx) }

// BeginList initializes the top frame's list.
func (p *Partial) BeginList() error { return p.inner.BeginList() }

// BeginListItem pushes a temp frame for the next list element.
func (p *Partial) BeginListItem() error { return p.inner.BeginListItem() }

// BeginMap initializes the top frame's map.
func (p *Partial) BeginMap() error { return p.inner.BeginMap() }

// BeginKey pushes a temp frame for the next map key.
func (p *Partial) BeginKey() error { return p.inner.BeginKey() }

// BeginValue pushes a temp frame for the map value matching the last key.
func (p *Partial) BeginValue() error { return p.inner.BeginValue() }

// BeginSome pushes a temp frame for an Option's inner value.
func (p *Partial) BeginSome() error { return p.inner.BeginSome() }

// BeginInner pushes a conversion frame for a fallible inner-to-outer
// conversion, or forwards into field 0 for transparent newtypes.
func (p *Partial) BeginInner() error { return p.inner.BeginInner() }

// BeginSmartPtr begins constructing the pointee of a Box/Rc/Arc/&T shape.
func (p *Partial) BeginSmartPtr() error { return p.inner.BeginSmartPtr() }

// PushSliceItem pushes an element onto an in-progress smart-pointer-slice
// builder.
func (p *Partial) PushSliceItem() error { return p.inner.PushSliceItem() }

// End pops the top frame and applies the parent-specific move-in.
func (p *Partial) End() error { return p.inner.End() }

// Build finishes construction and hands ownership to the caller.
func (p *Partial) Build() (HeapValue, error) {
	hv, err := p.inner.Build()
	return HeapValue{inner: hv}, err
}

// Drop force-drops a Partial that will not be Built, running DropInPlace
// on every Init sub-slot so no memory is leaked.
func (p *Partial) Drop() { p.inner.Drop() }

// IsFieldSet reports whether field idx of the top frame has been written.
func (p *Partial) IsFieldSet(idx int) (bool, error) { return p.inner.IsFieldSet(idx) }

// FieldIndex looks up a field by name on the top frame.
func (p *Partial) FieldIndex(name string) int { return p.inner.FieldIndex(name) }

// SetNthFieldToDefault applies a field's default without a push/pop pair.
func (p *Partial) SetNthFieldToDefault(idx int) error { return p.inner.SetNthFieldToDefault(idx) }

// Guard force-drops a Partial that goes out of scope without being built,
// the same role Rust's Drop impl plays automatically. Typical use:
//
//	p, err := shapeform.AllocShape(shape)
//	guard := shapeform.NewGuard(p)
//	defer guard.Close()
//	... drive p ...
//	hv, err := p.Build()
//	guard.Disarm() // ownership moved out; don't drop on defer
type Guard struct {
	p       *Partial
	armed   bool
}

// NewGuard returns an armed Guard over p.
func NewGuard(p *Partial) *Guard { return &Guard{p: p, armed: true} }

// Disarm prevents Close from dropping the Partial (call after a successful
// Build()).
func (g *Guard) Disarm() { g.armed = false }

// Close drops the guarded Partial if still armed.
func (g *Guard) Close() {
	if g.armed {
		g.p.Drop()
	}
}
