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

import "fmt"

// ScalarKind enumerates the primitive scalar kinds the core understands.
// A Shape with DefKind == DefKindScalar carries one of these so that the
// event deserializer and the JIT compiler can validate the wire's scalar
// tag against the destination before writing through a pointer (spec §4.3,
// "Safety boundary": "every scalar-tag path is validated").
type ScalarKind int

const (
	ScalarInvalid ScalarKind = iota
	ScalarBool
	ScalarI8
	ScalarI16
	ScalarI32
	ScalarI64
	ScalarU8
	ScalarU16
	ScalarU32
	ScalarU64
	ScalarF32
	ScalarF64
	ScalarString
	ScalarBytes
	ScalarUnit
)

func (s ScalarKind) String() string {
	names := [...]string{
		"invalid", "bool", "i8", "i16", "i32", "i64",
		"u8", "u16", "u32", "u64", "f32", "f64", "string", "bytes", "unit",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("scalar(%d)", int(s))
}
