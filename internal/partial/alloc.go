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
)

// allocZeroed returns a zeroed, GC-tracked allocation big enough to hold a
// value of shape. See ShapeDescriptor.GoType's doc comment for why this
// goes through reflect.New instead of a raw byte slice.
func allocZeroed(shape *ShapeDescriptor) (unsafe.Pointer, error) {
	if shape.GoType != nil {
		v := reflect.New(shape.GoType)
		return v.UnsafePointer(), nil
	}

	// Shapes with no GoType (e.g. synthetic temporaries for scalars built
	// entirely out of raw bytes) fall back to a byte buffer. This is only
	// safe for pointer-free shapes; scalar/opaque leaf shapes satisfy this.
	buf := make([]byte, shape.Size)
	return unsafe.Pointer(unsafe.SliceData(buf)), nil
}

// fieldPointer returns the address of a field at the given byte offset
// within data.
func fieldPointer(data unsafe.Pointer, offset uintptr) unsafe.Pointer {
	return unsafe.Add(data, offset)
}
