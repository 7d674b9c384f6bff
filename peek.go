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
	"fmt"
	"reflect"
	"unsafe"

	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/internal/partial"
)

// Peek is a read-only reflective view over an already-built value of some
// Shape (spec §4.8, supplemented feature grounded in facet-reflect's
// Peek). Unlike Partial, which moves a value into existence one frame at a
// time, Peek never mutates: it just walks a finished value back out,
// which is what [Marshal] and debugging/printing code need. Peek leans on
// reflect for struct/list/map/pointer traversal (the vtables in Shape are
// write-oriented — Insert, Push, InitWithCapacity — with no read-back
// counterpart), the same single spot HeapValue.Interface already leans on
// reflect to hand a typed value back to a caller.
type Peek struct {
	shape *Shape
	ptr   unsafe.Pointer
}

// PeekValue returns a Peek over hv, the common entry point after a
// Partial.Build.
func PeekValue(hv HeapValue) Peek {
	return Peek{shape: hv.inner.Shape, ptr: hv.inner.Data}
}

// PeekAt returns a Peek over size Shape.Size bytes at ptr, for callers
// that already hold a raw pointer and its Shape (e.g. a Peek field
// accessor handing back a sub-value).
func PeekAt(shape *Shape, ptr unsafe.Pointer) Peek {
	return Peek{shape: shape, ptr: ptr}
}

// Shape returns the shape being peeked.
func (pk Peek) Shape() *Shape { return pk.shape }

// IsValid reports whether pk actually points at something.
func (pk Peek) IsValid() bool { return pk.shape != nil && pk.ptr != nil }

func (pk Peek) reflectValue() reflect.Value {
	return reflect.NewAt(pk.shape.GoType, pk.ptr).Elem()
}

// Interface reflects the peeked value out as an any.
func (pk Peek) Interface() any {
	if !pk.IsValid() {
		return nil
	}
	return pk.reflectValue().Interface()
}

// IsStruct reports whether pk is a plain struct (not an enum/union).
func (pk Peek) IsStruct() bool { return pk.shape.Kind == KindUserType && pk.shape.UserKind == UserStruct }

// IsEnum reports whether pk is a tagged-union enum.
func (pk Peek) IsEnum() bool { return pk.shape.Kind == KindUserType && pk.shape.UserKind == UserEnum }

// NumFields returns the number of fields of a struct Peek, or of the
// currently active variant of an enum Peek.
func (pk Peek) NumFields() int {
	return len(pk.fieldSet())
}

func (pk Peek) fieldSet() []Field {
	if pk.IsEnum() {
		idx := pk.variantIndex()
		if idx < 0 || idx >= len(pk.shape.Variants) {
			return nil
		}
		return pk.shape.Variants[idx].Fields
	}
	return pk.shape.Fields
}

// Field returns a Peek over the named field (or variant field), and
// whether that name exists.
func (pk Peek) Field(name string) (Peek, bool) {
	for i, fd := range pk.fieldSet() {
		if fd.Name == name {
			return pk.FieldAt(i), true
		}
	}
	return Peek{}, false
}

// FieldAt returns a Peek over field idx of the active field set.
func (pk Peek) FieldAt(idx int) Peek {
	fields := pk.fieldSet()
	fd := fields[idx]
	return Peek{shape: fd.Shape, ptr: unsafe.Add(pk.ptr, fd.Offset)}
}

// FieldName returns the name of field idx of the active field set.
func (pk Peek) FieldName(idx int) string {
	return pk.fieldSet()[idx].Name
}

// VariantIndex returns the discriminant-selected variant index of an enum
// Peek, read straight out of the built bytes via
// internal/partial.ReadDiscriminant (the same width-switch SelectVariant
// used to write it).
func (pk Peek) VariantIndex() int { return pk.variantIndex() }

func (pk Peek) variantIndex() int {
	disc := partial.ReadDiscriminant(pk.ptr, pk.shape.EnumRepr)
	for i, v := range pk.shape.Variants {
		if v.Discriminant == disc {
			return i
		}
	}
	return -1
}

// VariantName returns the name of the enum Peek's active variant.
func (pk Peek) VariantName() string {
	idx := pk.variantIndex()
	if idx < 0 {
		return ""
	}
	return pk.shape.Variants[idx].Name
}

// IsOption reports whether pk is an Option<T>-shaped value.
func (pk Peek) IsOption() bool { return pk.shape.DefKind == DefOption }

// OptionIsSome reports whether an Option Peek currently holds a value.
func (pk Peek) OptionIsSome() bool {
	if pk.shape.OptVT.IsSome == nil {
		return false
	}
	return pk.shape.OptVT.IsSome(pk.ptr)
}

// OptionValue returns a Peek over the Option's inner value. Only valid
// when OptionIsSome reports true. BeginSome/OptVT.InitSome give no
// read-back vtable entry for the inner pointer, so this relies on
// reflect's own addressability the same way ListAt/MapKeys do, assuming
// the Go-native representation of Option<T> here is *T (nil == None),
// the same convention BeginSome's allocate-then-OptVT.InitSome dance is
// meant to produce (see DESIGN.md's Open Question on Rust NPO: this core
// does not attempt Rust's null-pointer-optimized Option layouts beyond
// this one).
func (pk Peek) OptionValue() Peek {
	rv := pk.reflectValue()
	inner := rv.Elem()
	return Peek{shape: pk.shape.Elem, ptr: unsafe.Pointer(inner.UnsafeAddr())}
}

// IsList reports whether pk is a list/slice/set Peek.
func (pk Peek) IsList() bool {
	switch pk.shape.DefKind {
	case DefList, DefSlice, DefSet, DefArray:
		return true
	}
	return false
}

// ListLen returns a list Peek's element count.
func (pk Peek) ListLen() int {
	if pk.shape.DefKind == DefArray {
		return pk.shape.ArrLen
	}
	if pk.shape.ListVT.Len == nil {
		return 0
	}
	return pk.shape.ListVT.Len(pk.ptr)
}

// ListAt returns a Peek over list element i, found by reflecting the
// slice header out and indexing it (the ListVTable only exposes
// AsMutPtr/Len for the writer side; a reader just needs Go's own slice
// layout, which GoType already describes).
func (pk Peek) ListAt(i int) Peek {
	rv := pk.reflectValue()
	elem := rv.Index(i)
	return Peek{shape: pk.shape.Elem, ptr: unsafe.Pointer(elem.UnsafeAddr())}
}

// IsMap reports whether pk is a map Peek.
func (pk Peek) IsMap() bool { return pk.shape.DefKind == DefMap }

// MapLen returns a map Peek's entry count.
func (pk Peek) MapLen() int {
	if pk.shape.MapVT.Len == nil {
		return 0
	}
	return pk.shape.MapVT.Len(pk.ptr)
}

// MapKeys iterates a map Peek's keys (the MapVTable is Insert-only; map
// iteration order isn't part of this core's contract anyway, so reflect's
// MapRange is used directly rather than adding a read-vtable entry just
// for this).
func (pk Peek) MapKeys() []Peek {
	rv := pk.reflectValue()
	keys := make([]Peek, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		kCopy := reflect.New(k.Type())
		kCopy.Elem().Set(k)
		keys = append(keys, Peek{shape: pk.shape.Key, ptr: unsafe.Pointer(kCopy.Pointer())})
	}
	return keys
}

// MapGet returns a Peek over the value for reflect key kv's underlying
// value (obtained from a MapKeys result), and whether it was present.
func (pk Peek) MapGet(key Peek) (Peek, bool) {
	rv := pk.reflectValue()
	kv := reflect.NewAt(key.shape.GoType, key.ptr).Elem()
	v := rv.MapIndex(kv)
	if !v.IsValid() {
		return Peek{}, false
	}
	vCopy := reflect.New(v.Type())
	vCopy.Elem().Set(v)
	return Peek{shape: pk.shape.Value, ptr: unsafe.Pointer(vCopy.Pointer())}, true
}

// IsScalar reports whether pk is a scalar leaf.
func (pk Peek) IsScalar() bool { return pk.shape.DefKind == DefScalar }

// Scalar reads pk's scalar value out as an any (bool, an appropriately
// sized/signed int/uint/float, string, or []byte), validated against
// Shape.Scalar the same way the event deserializer validates an incoming
// wire tag before writing (spec §4.3, "Safety boundary").
func (pk Peek) Scalar() (any, error) {
	switch pk.shape.Scalar {
	case ScalarBool:
		return *(*bool)(pk.ptr), nil
	case ScalarI8:
		return *(*int8)(pk.ptr), nil
	case ScalarI16:
		return *(*int16)(pk.ptr), nil
	case ScalarI32:
		return *(*int32)(pk.ptr), nil
	case ScalarI64:
		return *(*int64)(pk.ptr), nil
	case ScalarU8:
		return *(*uint8)(pk.ptr), nil
	case ScalarU16:
		return *(*uint16)(pk.ptr), nil
	case ScalarU32:
		return *(*uint32)(pk.ptr), nil
	case ScalarU64:
		return *(*uint64)(pk.ptr), nil
	case ScalarF32:
		return *(*float32)(pk.ptr), nil
	case ScalarF64:
		return *(*float64)(pk.ptr), nil
	case ScalarString:
		return *(*string)(pk.ptr), nil
	case ScalarBytes:
		return *(*[]byte)(pk.ptr), nil
	case ScalarUnit:
		return struct{}{}, nil
	default:
		return nil, fmt.Errorf("shapeform: peek: unsupported scalar kind %v", pk.shape.Scalar)
	}
}

// scalarEvent reads pk's scalar value out as an event.ScalarValue, the same
// tagged union internal/event.Parser hands the deserializer. Marshal uses
// this directly rather than round-tripping through Scalar's any, so a
// Marshaler never has to type-switch its way back from interface{}.
func (pk Peek) scalarEvent() (event.ScalarValue, error) {
	switch pk.shape.Scalar {
	case ScalarBool:
		return event.ScalarValue{Tag: event.ScalarBool, Bool: *(*bool)(pk.ptr)}, nil
	case ScalarI8:
		return event.ScalarValue{Tag: event.ScalarI64, I64: int64(*(*int8)(pk.ptr))}, nil
	case ScalarI16:
		return event.ScalarValue{Tag: event.ScalarI64, I64: int64(*(*int16)(pk.ptr))}, nil
	case ScalarI32:
		return event.ScalarValue{Tag: event.ScalarI64, I64: int64(*(*int32)(pk.ptr))}, nil
	case ScalarI64:
		return event.ScalarValue{Tag: event.ScalarI64, I64: *(*int64)(pk.ptr)}, nil
	case ScalarU8:
		return event.ScalarValue{Tag: event.ScalarU64, U64: uint64(*(*uint8)(pk.ptr))}, nil
	case ScalarU16:
		return event.ScalarValue{Tag: event.ScalarU64, U64: uint64(*(*uint16)(pk.ptr))}, nil
	case ScalarU32:
		return event.ScalarValue{Tag: event.ScalarU64, U64: uint64(*(*uint32)(pk.ptr))}, nil
	case ScalarU64:
		return event.ScalarValue{Tag: event.ScalarU64, U64: *(*uint64)(pk.ptr)}, nil
	case ScalarF32:
		return event.ScalarValue{Tag: event.ScalarF64, F64: float64(*(*float32)(pk.ptr))}, nil
	case ScalarF64:
		return event.ScalarValue{Tag: event.ScalarF64, F64: *(*float64)(pk.ptr)}, nil
	case ScalarString:
		return event.ScalarValue{Tag: event.ScalarStr, Str: *(*string)(pk.ptr)}, nil
	case ScalarBytes:
		return event.ScalarValue{Tag: event.ScalarBytes, Byte: *(*[]byte)(pk.ptr)}, nil
	case ScalarUnit:
		return event.ScalarValue{Tag: event.ScalarUnit}, nil
	default:
		return event.ScalarValue{}, fmt.Errorf("shapeform: marshal: unsupported scalar kind %v", pk.shape.Scalar)
	}
}

// IsPointer reports whether pk is a Box/Rc/Arc/&T Peek.
func (pk Peek) IsPointer() bool { return pk.shape.DefKind == DefPointer }

// PointerValue returns a Peek over the pointee, dereferencing the smart
// pointer's underlying Go pointer.
func (pk Peek) PointerValue() Peek {
	return Peek{shape: pk.shape.Pointee, ptr: *(*unsafe.Pointer)(pk.ptr)}
}
