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

// Package jitfmt declares the interface a wire format implements to plug
// into the compiled tier (internal/jit). It is kept separate from
// internal/event's Parser interface because the compiled tier's ABI is
// lower-level: formats expose the same struct-encoding metadata the
// compiler needs to decide, once per shape, whether map-keyed or positional
// field dispatch applies, instead of handing back generic Events on every
// call (spec §4.3, "JIT-compiled tier").
package jitfmt

// StructEncoding selects how the compiled tier dispatches a struct's
// fields, decided once at compile time per (shape, format) pair.
type StructEncoding int

const (
	// StructEncodingMap decodes struct fields by name, via the event
	// tier's FieldLookup (JSON, YAML).
	StructEncodingMap StructEncoding = iota
	// StructEncodingPositional decodes struct fields strictly in
	// declaration order with no key on the wire (postcard).
	StructEncodingPositional
)

// JitFormat is implemented once per wire format (format/json, format/postcard)
// and consulted by internal/jit's compiler when deciding whether a shape is
// eligible for the compiled tier and how to encode it.
type JitFormat interface {
	// Name identifies the format for the ShapeMemo cache key (spec §4.3,
	// "memoized per (shape, format) pair").
	Name() string

	// StructEncoding reports how this format lays out struct fields on
	// the wire.
	StructEncoding() StructEncoding

	// ProvidesSeqCount reports whether a sequence's length is known
	// up-front from the wire (a length-prefixed binary format) rather
	// than discovered by scanning for a terminator (JSON's ']').
	ProvidesSeqCount() bool

	// IsNonSelfDescribing reports whether this format needs enum-variant
	// hints before reading a discriminant (mirrors
	// event.Parser.IsNonSelfDescribing). internal/jit's compiled tier
	// defers all enum variant dispatch to the interpreter tier today (see
	// compileField's enum case), so this flag is not yet consulted there;
	// it is declared on JitFormat rather than left for callers to
	// reconstruct because a future compiled enum thunk needs exactly this
	// bit, at compile time, before it can decide whether SolveVariant can
	// run ahead of the tag arriving on the wire.
	IsNonSelfDescribing() bool
}
