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

package event

import (
	"strconv"

	"github.com/shapeform/shapeform/internal/partial"
)

// deserializeEnum dispatches on the enum's tag policy (spec §4.2, "Enum
// dispatch"). Cow-transparent enums are checked first, ahead of numeric and
// untagged, because a cow enum may also carry #[repr(u8)] but must still be
// treated as a transparent passthrough of its inner value.
func (w *walker) deserializeEnum(p *partial.Partial) error {
	shape := p.Shape()
	plan := PlanFor(shape)

	if shape.Attrs.TagPolicy == partial.TagCow {
		return w.deserializeCowEnum(p)
	}

	if w.parser.IsNonSelfDescribing() {
		hints := make([]EnumVariantHint, len(shape.Variants))
		for i, v := range shape.Variants {
			hints[i] = EnumVariantHint{Name: v.Name, Kind: int(v.Kind), FieldCount: len(v.Fields)}
		}
		w.parser.HintEnum(hints)
		if idx, ok := w.parser.SolveVariant(hints); ok {
			if err := p.SelectNthVariant(idx); err != nil {
				return w.wrap(err)
			}
			return w.deserializeVariantBody(p)
		}
	}

	switch shape.Attrs.TagPolicy {
	case partial.TagNumeric:
		return w.deserializeNumericEnum(p)
	case partial.TagUntagged:
		return w.deserializeUntaggedEnum(p, plan)
	case partial.TagAdjacent:
		return w.deserializeAdjacentEnum(p, plan)
	case partial.TagInternal:
		return w.deserializeInternalEnum(p, plan)
	default:
		return w.deserializeExternalEnum(p, plan)
	}
}

// deserializeCowEnum treats the enum as transparently equal to its single
// active variant's inner value, with no wrapper or discriminant on the wire
// (spec §4.2, "Transparent / Cow").
func (w *walker) deserializeCowEnum(p *partial.Partial) error {
	if err := p.SelectNthVariant(0); err != nil {
		return w.wrap(err)
	}
	return w.deserializeVariantBody(p)
}

func (w *walker) deserializeNumericEnum(p *partial.Partial) error {
	ev, err := w.parser.Next()
	if err != nil {
		return err
	}
	if ev.Kind != Scalar {
		return w.unsupported("expected integer value for numeric enum")
	}
	var disc uint64
	switch ev.Value.Tag {
	case ScalarI64:
		disc = uint64(ev.Value.I64)
	case ScalarU64:
		disc = ev.Value.U64
	case ScalarStr:
		n, perr := strconv.ParseUint(ev.Value.Str, 10, 64)
		if perr != nil {
			return w.unsupported("string representing an integer discriminant")
		}
		disc = n
	default:
		return w.unsupported("unexpected scalar for numeric enum")
	}
	if err := p.SelectVariant(disc); err != nil {
		return w.wrap(err)
	}
	return w.deserializeVariantBody(p)
}

// deserializeExternalEnum handles {"VariantName": <payload>} or a bare
// string "VariantName" for unit variants (spec §4.2, "externally tagged").
func (w *walker) deserializeExternalEnum(p *partial.Partial, plan *ShapePlan) error {
	peek, err := w.parser.Peek()
	if err != nil {
		return err
	}

	if peek.Kind == Scalar && peek.Value.Tag == ScalarStr {
		if idx, ok := plan.VariantLookup[peek.Value.Str]; ok {
			if _, err := w.parser.Next(); err != nil {
				return err
			}
			if err := p.SelectNthVariant(idx); err != nil {
				return w.wrap(err)
			}
			return w.deserializeVariantBody(p)
		}
		if plan.OtherVariantIdx >= 0 {
			if _, err := w.parser.Next(); err != nil {
				return err
			}
			return w.selectOther(p, plan)
		}
		return w.unknownVariant(peek.Value.Str)
	}

	if peek.Kind == StructStart {
		if _, err := w.parser.Next(); err != nil {
			return err
		}
		key, err := w.parser.Next()
		if err != nil {
			return err
		}
		if key.Kind != FieldKey {
			return w.unsupported("expected a single variant-name key")
		}
		idx, ok := plan.VariantLookup[key.Name]
		if !ok {
			if plan.OtherVariantIdx < 0 {
				return w.unknownVariant(key.Name)
			}
			if err := w.selectOther(p, plan); err != nil {
				return err
			}
		} else if err := p.SelectNthVariant(idx); err != nil {
			return w.wrap(err)
		} else if err := w.deserializeVariantBody(p); err != nil {
			return err
		}
		end, err := w.parser.Next()
		if err != nil {
			return err
		}
		if end.Kind != StructEnd {
			return w.unsupported("externally tagged enum must have exactly one key")
		}
		return nil
	}

	return w.unsupported("expected a variant name or a single-key object")
}

// deserializeInternalEnum handles {"type": "VariantName", ...fields...}
// where the tag lives alongside the variant's own fields (spec §4.2,
// "internally tagged").
func (w *walker) deserializeInternalEnum(p *partial.Partial, plan *ShapePlan) error {
	return w.deserializeTaggedStruct(p, plan, shape(p).Attrs.TagField, "", true)
}

// deserializeAdjacentEnum handles {"t": "VariantName", "c": {...}} (spec
// §4.2, "adjacently tagged").
func (w *walker) deserializeAdjacentEnum(p *partial.Partial, plan *ShapePlan) error {
	return w.deserializeTaggedStruct(p, plan, shape(p).Attrs.TagField, shape(p).Attrs.ContentField, false)
}

// deserializeTaggedStruct implements both internally- and adjacently-tagged
// dispatch: it scans a struct's keys for the tag field (and, if contentKey
// is non-empty, the content field holding the variant's whole payload as a
// nested value), selecting the variant once the tag is seen.
func (w *walker) deserializeTaggedStruct(p *partial.Partial, plan *ShapePlan, tagKey, contentKey string, inline bool) error {
	start, err := w.parser.Next()
	if err != nil {
		return err
	}
	if start.Kind != StructStart {
		return w.unsupported("expected an object for a tagged enum")
	}

	selected := false
	for {
		peek, err := w.parser.Peek()
		if err != nil {
			return err
		}
		if peek.Kind == StructEnd {
			_, _ = w.parser.Next()
			break
		}
		key, err := w.parser.Next()
		if err != nil {
			return err
		}
		if key.Kind != FieldKey {
			return w.unsupported("expected a field key")
		}

		switch {
		case key.Name == tagKey && !selected:
			tagEv, err := w.parser.Next()
			if err != nil {
				return err
			}
			if tagEv.Kind != Scalar || tagEv.Value.Tag != ScalarStr {
				return w.unsupported("tag field must be a string")
			}
			idx, ok := plan.VariantLookup[tagEv.Value.Str]
			if !ok {
				if plan.OtherVariantIdx < 0 {
					return w.unknownVariant(tagEv.Value.Str)
				}
				idx = plan.OtherVariantIdx
			}
			if err := p.SelectNthVariant(idx); err != nil {
				return w.wrap(err)
			}
			selected = true

		case contentKey != "" && key.Name == contentKey:
			if !selected {
				return w.unsupported("content field appeared before tag field")
			}
			if err := w.deserializeVariantBody(p); err != nil {
				return err
			}

		case inline && selected:
			if err := w.deserializeNamedField(p, key.Name); err != nil {
				return err
			}

		default:
			if err := w.parser.SkipValue(); err != nil {
				return err
			}
		}
	}

	if !selected {
		return w.missingField(shape(p), tagKey)
	}
	return nil
}

// deserializeUntaggedEnum peeks at the next event and selects the first
// variant, in declaration order, whose kind fits that event's kind: a unit
// variant for a string or null, a scalar variant for any scalar, a tuple
// variant for a sequence, a struct variant for an object (spec §4.2,
// "untagged"). Variant names, field sets and scalar types are not
// compared, so among variants of one kind the first always wins. The
// match is best-effort: the
// walker asks the parser to classify the next value's shape rather than
// fully materializing a DOM, since most formats (and all of this package's
// targets) are not self-describing enough to losslessly backtrack.
func (w *walker) deserializeUntaggedEnum(p *partial.Partial, plan *ShapePlan) error {
	peek, err := w.parser.Peek()
	if err != nil {
		return err
	}
	shp := shape(p)

	for i, v := range shp.Variants {
		if variantMatches(v.Kind, peek) {
			if err := p.SelectNthVariant(i); err != nil {
				return w.wrap(err)
			}
			return w.deserializeVariantBody(p)
		}
	}
	if plan.OtherVariantIdx >= 0 {
		return w.selectOther(p, plan)
	}
	return w.unsupported("no untagged variant matched the next value")
}

func variantMatches(kind partial.VariantKind, ev Event) bool {
	switch kind {
	case partial.VariantUnit:
		return ev.Kind == Scalar && (ev.Value.Tag == ScalarStr || ev.Value.Tag == ScalarNull)
	case partial.VariantScalar:
		return ev.Kind == Scalar
	case partial.VariantTuple:
		return ev.Kind == SequenceStart
	case partial.VariantStruct:
		return ev.Kind == StructStart
	default:
		return false
	}
}

func (w *walker) selectOther(p *partial.Partial, plan *ShapePlan) error {
	if err := p.SelectNthVariant(plan.OtherVariantIdx); err != nil {
		return w.wrap(err)
	}
	return w.deserializeVariantBody(p)
}

// deserializeVariantBody deserializes the payload of whichever variant was
// just selected: nothing for a unit variant, a single value forwarded via
// begin_inner for a scalar/newtype variant, or a struct/tuple body for the
// others.
func (w *walker) deserializeVariantBody(p *partial.Partial) error {
	shp := shape(p)
	idx := currentVariantIdx(p)
	if idx < 0 {
		return w.invariant("no variant selected")
	}
	v := shp.Variants[idx]

	switch v.Kind {
	case partial.VariantUnit:
		return nil
	case partial.VariantScalar:
		if len(v.Fields) != 1 {
			return w.invariant("scalar variant must have exactly one field")
		}
		if err := p.BeginNthField(0); err != nil {
			return w.wrap(err)
		}
		if err := w.deserializeValue(p); err != nil {
			return err
		}
		if err := p.End(); err != nil {
			return w.wrap(err)
		}
		return nil
	default:
		return w.deserializeStructFields(p, v.Fields)
	}
}

func currentVariantIdx(p *partial.Partial) int { return p.CurrentVariantIndex() }

func shape(p *partial.Partial) *partial.ShapeDescriptor { return p.Shape() }
