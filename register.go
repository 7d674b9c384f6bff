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
	"sync"
)

// registry maps a Go reflect.Type to the Shape describing it. Shapes are
// usually produced by generated code (a Shaper implementation's Shape
// method, called once and cached here), mirroring how facet's derive macro
// registers a type's SHAPE constant.
var (
	registryMu sync.RWMutex
	registry   = map[reflect.Type]*Shape{}
)

// Shaper is implemented by generated or hand-written per-type descriptors.
// A type that implements Shaper can be registered with RegisterShape(new(T))
// without the caller constructing the Shape by hand.
type Shaper interface {
	ShapeformShape() *Shape
}

// RegisterShape associates shape with T's reflect.Type, so that later calls
// to ShapeOf[T] and Alloc[T] can find it. Call this once, typically from an
// init function in a package that defines T.
func RegisterShape[T any](shape *Shape) {
	var zero T
	t := reflect.TypeOf(zero)
	if shape.GoType == nil {
		shape.GoType = t
	}
	registryMu.Lock()
	registry[t] = shape
	registryMu.Unlock()
}

// ShapeOf returns the registered Shape for T, panicking if none has been
// registered. Use LookupShape for a non-panicking variant.
func ShapeOf[T any]() *Shape {
	shape, ok := LookupShape[T]()
	if !ok {
		var zero T
		panic(fmt.Sprintf("shapeform: no shape registered for %T", zero))
	}
	return shape
}

// LookupShape returns the registered Shape for T, if any.
func LookupShape[T any]() (*Shape, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	registryMu.RLock()
	shape, ok := registry[t]
	registryMu.RUnlock()
	return shape, ok
}

// LookupShapeForType returns the registered Shape for an arbitrary
// reflect.Type, used by the flatten and untyped-map machinery where no
// compile-time T is available.
func LookupShapeForType(t reflect.Type) (*Shape, bool) {
	registryMu.RLock()
	shape, ok := registry[t]
	registryMu.RUnlock()
	return shape, ok
}
