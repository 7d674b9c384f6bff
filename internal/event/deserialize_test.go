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

package event_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/internal/fixtures"
	"github.com/shapeform/shapeform/internal/partial"
)

type coord struct {
	X int64
	Y int64
}

func coordShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(coord{})
	scalar := func() *partial.ShapeDescriptor { return fixtures.Scalar(partial.ScalarI64, reflect.TypeOf(int64(0))) }
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "X", scalar()),
		fixtures.Field(t, "Y", scalar()),
	})
}

// TestDeserializeIntoStruct drives a plain two-field struct through a
// scripted StructStart/FieldKey/Scalar/StructEnd sequence (spec §4.2,
// "deserialize_into").
func TestDeserializeIntoStruct(t *testing.T) {
	shape := coordShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(2),
		fixtures.Key("X"), fixtures.I64(3),
		fixtures.Key("Y"), fixtures.I64(4),
		fixtures.StructEnd(),
	)
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*coord)(hv.Data)
	assert.Equal(t, coord{X: 3, Y: 4}, *got)
}

// TestDeserializeIntoSkipsUnknownField verifies an unrecognized field key's
// value is discarded via SkipValue rather than failing the whole struct
// (spec §4.2, "unknown fields").
func TestDeserializeIntoSkipsUnknownField(t *testing.T) {
	shape := coordShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(3),
		fixtures.Key("Z"), fixtures.I64(99),
		fixtures.Key("X"), fixtures.I64(1),
		fixtures.Key("Y"), fixtures.I64(2),
		fixtures.StructEnd(),
	)
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*coord)(hv.Data)
	assert.Equal(t, coord{X: 1, Y: 2}, *got)
}

// TestDeserializeIntoSkipsUnknownNestedField verifies SkipValue correctly
// discards a nested struct/sequence value for an unknown key, not just a
// bare scalar.
func TestDeserializeIntoSkipsUnknownNestedField(t *testing.T) {
	shape := coordShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(2),
		fixtures.Key("Meta"),
		fixtures.StructStart(1), fixtures.Key("Nested"), fixtures.SeqStart(2), fixtures.I64(1), fixtures.I64(2), fixtures.SeqEnd(), fixtures.StructEnd(),
		fixtures.Key("X"), fixtures.I64(7),
		fixtures.Key("Y"), fixtures.I64(8),
		fixtures.StructEnd(),
	)
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*coord)(hv.Data)
	assert.Equal(t, coord{X: 7, Y: 8}, *got)
}

type withRequired struct {
	Name string
}

func withRequiredShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(withRequired{})
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Name", fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))),
	})
}

// TestApplyDefaultsMissingRequiredField verifies that a required field
// (neither #[skip] nor #[default], no Option wrapping) never observed on
// the wire fails the whole struct with ErrMissingRequiredField (spec §4.2,
// "Defaults"; testable property 4), and that the underlying Partial is left
// in a state End()-able only via Drop, never Build.
func TestApplyDefaultsMissingRequiredField(t *testing.T) {
	shape := withRequiredShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(0),
		fixtures.StructEnd(),
	)
	err = event.DeserializeInto(p, parser)
	require.Error(t, err)
	var walkErr *event.WalkError
	require.ErrorAs(t, err, &walkErr)
	assert.Equal(t, event.ErrMissingRequiredField, walkErr.Code)

	p.Drop()
}

type withOptionalName struct {
	Name *string
}

func withOptionalNameShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(withOptionalName{})
	elem := fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))
	opt := fixtures.Option(reflect.TypeOf((*string)(nil)), elem)
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Name", opt),
	})
}

// TestApplyDefaultsOptionFieldDefaultsToNone verifies an Option-shaped field
// never observed on the wire is defaulted to None rather than failing,
// even without an explicit #[default] attribute (spec §4.2, "Defaults").
func TestApplyDefaultsOptionFieldDefaultsToNone(t *testing.T) {
	shape := withOptionalNameShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(0),
		fixtures.StructEnd(),
	)
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*withOptionalName)(hv.Data)
	assert.Nil(t, got.Name)
}

type shirt struct {
	Disc uint8 // discriminant byte (EnumRepr 1)
	Size uint8
}

func shirtEnumShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(shirt{})
	sizeShape := fixtures.Scalar(partial.ScalarU8, reflect.TypeOf(uint8(0)))
	return fixtures.Enum(t, 1, []partial.VariantDescriptor{
		{Name: "Small", Discriminant: 0, Kind: partial.VariantUnit},
		{Name: "Large", Discriminant: 1, Kind: partial.VariantStruct,
			Fields: []partial.FieldDescriptor{fixtures.Field(t, "Size", sizeShape)}},
	})
}

// TestDeserializeExternalTaggedEnumUnitVariant drives a bare scalar-string
// variant name through the default (externally-tagged) enum dispatch (spec
// §4.2, "Enum dispatch").
func TestDeserializeExternalTaggedEnumUnitVariant(t *testing.T) {
	shape := shirtEnumShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(fixtures.Str("Small"))
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	disc := partial.ReadDiscriminant(hv.Data, 1)
	assert.Equal(t, uint64(0), disc)
}

// TestDeserializeExternalTaggedEnumStructVariant drives the
// {"Large":{"Size":9}} shape of an externally-tagged struct-like variant.
func TestDeserializeExternalTaggedEnumStructVariant(t *testing.T) {
	shape := shirtEnumShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(1),
		fixtures.Key("Large"),
		fixtures.StructStart(1), fixtures.Key("Size"), fixtures.I64(9), fixtures.StructEnd(),
		fixtures.StructEnd(),
	)
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	disc := partial.ReadDiscriminant(hv.Data, 1)
	assert.Equal(t, uint64(1), disc)
	got := (*shirt)(hv.Data)
	assert.Equal(t, uint8(9), got.Size)
}

// TestDeserializeUnknownVariantFails verifies a string that matches no
// variant name, with no #[other] fallback configured, fails with
// ErrUnknownVariant rather than silently picking variant 0.
func TestDeserializeUnknownVariantFails(t *testing.T) {
	shape := shirtEnumShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(fixtures.Str("Medium"))
	err = event.DeserializeInto(p, parser)
	require.Error(t, err)
	var walkErr *event.WalkError
	require.ErrorAs(t, err, &walkErr)
	assert.Equal(t, event.ErrUnknownVariant, walkErr.Code)
}

type withTags struct {
	Tags []string
}

func withTagsShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(withTags{})
	elem := fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))
	listShape := fixtures.List(reflect.TypeOf([]string(nil)), elem)
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Tags", listShape),
	})
}

// TestDeserializeListField drives a SequenceStart/.../SequenceEnd list of
// scalars into a slice field.
func TestDeserializeListField(t *testing.T) {
	shape := withTagsShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(1),
		fixtures.Key("Tags"), fixtures.SeqStart(3), fixtures.Str("a"), fixtures.Str("b"), fixtures.Str("c"), fixtures.SeqEnd(),
		fixtures.StructEnd(),
	)
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*withTags)(hv.Data)
	assert.Equal(t, []string{"a", "b", "c"}, got.Tags)
}

type withScoreMap struct {
	Scores map[string]int64
}

func withScoreMapShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(withScoreMap{})
	key := fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))
	val := fixtures.Scalar(partial.ScalarI64, reflect.TypeOf(int64(0)))
	mapShape := fixtures.Map(reflect.TypeOf(map[string]int64(nil)), key, val)
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Scores", mapShape),
	})
}

// TestDeserializeMapField drives a StructStart/FieldKey.../StructEnd-shaped
// map (JSON objects double as both structs and string-keyed maps on the
// wire) into a map field.
func TestDeserializeMapField(t *testing.T) {
	shape := withScoreMapShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	parser := fixtures.NewScriptedParser(
		fixtures.StructStart(1),
		fixtures.Key("Scores"),
		fixtures.StructStart(2), fixtures.Key("alice"), fixtures.I64(10), fixtures.Key("bob"), fixtures.I64(20), fixtures.StructEnd(),
		fixtures.StructEnd(),
	)
	require.NoError(t, event.DeserializeInto(p, parser))

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*withScoreMap)(hv.Data)
	assert.Equal(t, map[string]int64{"alice": 10, "bob": 20}, got.Scores)
}
