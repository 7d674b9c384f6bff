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

	"github.com/shapeform/shapeform/internal/event"
)

// Encoder is the write-side counterpart of event.Parser (spec §4.8,
// supplemented feature grounded in facet-json-legacy's Serialize trait):
// where a Parser is pulled from by the event walker, an Encoder is pushed
// into by Marshal as it walks a Peek tree. Every format package that wants
// to support Marshal implements one.
type Encoder interface {
	// StructStart opens a struct/map-like container. sizeHint is the field
	// count, -1 if the format doesn't need one up front.
	StructStart(sizeHint int) error
	// FieldKey writes a field name immediately before that field's value.
	FieldKey(name string) error
	StructEnd() error

	// SequenceStart opens a list container. sizeHint is the element count,
	// -1 if the format discovers the end structurally instead (JSON's ']').
	SequenceStart(sizeHint int) error
	SequenceEnd() error

	// MapStart/MapEnd open and close a Go map specifically, kept distinct
	// from StructStart/StructEnd because a count-prefixed binary format
	// (postcard) tags the two differently on the wire (TagMap vs. no tag
	// at all for a positional struct), even though a self-describing
	// format (JSON) renders both as '{'...'}'.
	MapStart(sizeHint int) error
	MapEnd() error

	// WriteScalar writes one scalar leaf value.
	WriteScalar(v event.ScalarValue) error
}

// Marshaler is implemented by every wire format package that supports
// Marshal (format/json; format/postcard adds one too). It is the dual of
// Format: where Format produces a Parser to pull events from, Marshaler
// produces an Encoder to push them into.
type Marshaler interface {
	NewEncoder() Encoder
	// Finish returns the bytes written so far, after the root value has
	// been fully encoded.
	Finish() []byte
}

// Marshal walks pk and writes it out through m, returning the encoded bytes
// (spec §4.8, supplemented feature: the symmetric counterpart to Deserialize
// that the distilled spec's Non-goals never actually excludes — only
// streaming encode/decode and schema evolution are out of scope).
//
// Enum variants are written externally tagged, unconditionally: a
// single-key struct whose key is the variant name and whose value is the
// variant's own field set (or a null scalar for a unit variant). The other
// five tag policies internal/event/enum.go supports on the decode side
// (internal, adjacent, untagged, numeric, cow) have no Marshal-side
// counterpart yet; see DESIGN.md.
//
// Non-self-describing formats (postcard) encode structs positionally with
// no framing at all, matching their decode-side runPositional path exactly,
// but an encoded enum's externally-tagged wrapper does not byte-for-byte
// match what postcard's own SolveVariant expects to read back (a bare
// numeric discriminant, not a string key). Marshal followed by Deserialize
// for an enum-bearing postcard round-trip is a known, documented gap (see
// DESIGN.md), not silently broken.
func Marshal(pk Peek, m Marshaler) ([]byte, error) {
	enc := m.NewEncoder()
	if err := marshalValue(pk, enc); err != nil {
		return nil, err
	}
	return m.Finish(), nil
}

func marshalValue(pk Peek, enc Encoder) error {
	switch {
	case !pk.IsValid():
		return enc.WriteScalar(event.ScalarValue{Tag: event.ScalarNull})
	case pk.IsOption():
		return marshalOption(pk, enc)
	case pk.IsPointer():
		return marshalValue(pk.PointerValue(), enc)
	case pk.IsEnum():
		return marshalEnum(pk, enc)
	case pk.IsStruct():
		return marshalStruct(pk, enc)
	case pk.IsList():
		return marshalList(pk, enc)
	case pk.IsMap():
		return marshalMap(pk, enc)
	case pk.IsScalar():
		v, err := pk.scalarEvent()
		if err != nil {
			return err
		}
		return enc.WriteScalar(v)
	default:
		return fmt.Errorf("shapeform: marshal: shape %v has no marshal strategy", pk.Shape())
	}
}

func marshalOption(pk Peek, enc Encoder) error {
	if !pk.OptionIsSome() {
		return enc.WriteScalar(event.ScalarValue{Tag: event.ScalarNull})
	}
	return marshalValue(pk.OptionValue(), enc)
}

func marshalStruct(pk Peek, enc Encoder) error {
	n := pk.NumFields()
	if err := enc.StructStart(n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := enc.FieldKey(pk.FieldName(i)); err != nil {
			return err
		}
		if err := marshalValue(pk.FieldAt(i), enc); err != nil {
			return err
		}
	}
	return enc.StructEnd()
}

// marshalEnum writes pk's active variant externally tagged: {"VariantName":
// <payload>}, where <payload> is null for a unit variant and the variant's
// own field set marshaled as a struct otherwise. The wrapper goes through
// MapStart/MapEnd rather than StructStart/StructEnd: the variant name is a
// genuine key that must land on the wire even for a positional format
// (postcard's StructStart/FieldKey write nothing at all, by design), so the
// wrapper needs map semantics regardless of what the variant's own payload
// uses.
func marshalEnum(pk Peek, enc Encoder) error {
	if err := enc.MapStart(1); err != nil {
		return err
	}
	if err := enc.FieldKey(pk.VariantName()); err != nil {
		return err
	}
	n := pk.NumFields()
	if n == 0 {
		if err := enc.WriteScalar(event.ScalarValue{Tag: event.ScalarNull}); err != nil {
			return err
		}
	} else if err := marshalStruct(pk, enc); err != nil {
		return err
	}
	return enc.MapEnd()
}

func marshalList(pk Peek, enc Encoder) error {
	n := pk.ListLen()
	if err := enc.SequenceStart(n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := marshalValue(pk.ListAt(i), enc); err != nil {
			return err
		}
	}
	return enc.SequenceEnd()
}

// marshalMap writes a map as a struct whose keys are the map's own keys
// rendered through fmt.Sprint (facet-json-legacy takes the same approach
// for non-string map keys: only string-keyed maps round-trip their key type
// exactly, everything else is stringified).
func marshalMap(pk Peek, enc Encoder) error {
	keys := pk.MapKeys()
	if err := enc.MapStart(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		name, err := mapKeyString(k)
		if err != nil {
			return err
		}
		if err := enc.FieldKey(name); err != nil {
			return err
		}
		v, ok := pk.MapGet(k)
		if !ok {
			return fmt.Errorf("shapeform: marshal: map key %q vanished mid-walk", name)
		}
		if err := marshalValue(v, enc); err != nil {
			return err
		}
	}
	return enc.MapEnd()
}

func mapKeyString(k Peek) (string, error) {
	if k.Shape().Scalar == ScalarString {
		v, err := k.Scalar()
		if err != nil {
			return "", err
		}
		return v.(string), nil
	}
	v, err := k.Scalar()
	if err != nil {
		return "", err
	}
	return fmt.Sprint(v), nil
}
