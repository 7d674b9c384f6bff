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

// Package event implements the event-driven (interpreter-tier) deserializer
// described in spec §4.2: a format-agnostic walk over a stream of pull
// [Event]s, driving a [partial.Partial] through the shape of the
// destination type. Every format package implements [Parser]; this package
// never touches format-specific bytes directly.
package event

import "fmt"

// Kind tags an [Event] (spec §4.2, "Parse events").
type Kind int

const (
	StructStart Kind = iota
	StructEnd
	FieldKey
	Scalar
	SequenceStart
	SequenceEnd
	VariantTag
)

func (k Kind) String() string {
	names := [...]string{
		"StructStart", "StructEnd", "FieldKey", "Scalar", "SequenceStart",
		"SequenceEnd", "VariantTag",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ScalarTag classifies the payload carried by a Scalar event.
type ScalarTag int

const (
	ScalarNull ScalarTag = iota
	ScalarBool
	ScalarI64
	ScalarU64
	ScalarF64
	ScalarStr
	ScalarBytes
	ScalarUnit
)

// ScalarValue is the decoded payload of a Scalar event. Exactly one field is
// meaningful, selected by Tag; Str aliases the parser's input buffer where
// possible (borrowed, not copied), matching facet-format's Cow<str> scalars.
type ScalarValue struct {
	Tag  ScalarTag
	Bool bool
	I64  int64
	U64  uint64
	F64  float64
	Str  string
	Byte []byte
}

// Event is one item pulled from a [Parser] (spec §4.2, "Parse events").
// StructStart/SequenceStart carry a SizeHint (-1 if unknown, e.g. streaming
// JSON); FieldKey and VariantTag carry Name; Scalar carries Value.
type Event struct {
	Kind     Kind
	Name     string
	SizeHint int
	Value    ScalarValue
	Pos      int
}

// EnumVariantHint is handed to non-self-describing parsers via hint_enum so
// that, e.g., a positional binary format knows how many fields each variant
// carries before a discriminant has even been read.
type EnumVariantHint struct {
	Name       string
	Kind       int // mirrors shapeform.VariantKind
	FieldCount int
}

// Parser is implemented by every format (format/json, format/postcard, ...).
// It is a pull interface: the event walker calls Peek/Next to drive itself,
// and calls the advisory hooks (HintEnum, IsNonSelfDescribing) to let
// binary formats resolve ambiguity that a self-describing format (JSON)
// would resolve from the bytes alone.
type Parser interface {
	// Peek returns the next event without consuming it.
	Peek() (Event, error)
	// Next consumes and returns the next event.
	Next() (Event, error)
	// SkipValue consumes and discards one full value (scalar, or a
	// matched Start/End pair with its contents), used for unknown fields
	// and skip-attributed fields.
	SkipValue() error

	// HintEnum tells a non-self-describing parser what variant shapes to
	// expect before an ambiguous discriminant is read.
	HintEnum(variants []EnumVariantHint)
	// IsNonSelfDescribing reports whether this format needs HintEnum
	// (true for positional binary formats; false for JSON/YAML).
	IsNonSelfDescribing() bool
	// SolveVariant asks the parser to resolve which variant is present
	// when the format encodes that out-of-band (e.g. a length-prefixed
	// binary enum that already knows its own tag before any field is
	// read); ok is false when the parser has no opinion and the walker
	// should fall back to its own tag-policy dispatch.
	SolveVariant(variants []EnumVariantHint) (idx int, ok bool)

	// Pos returns the current byte offset, for error reporting.
	Pos() int
}
