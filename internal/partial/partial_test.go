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

package partial_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeform/shapeform/internal/fixtures"
	"github.com/shapeform/shapeform/internal/partial"
)

type person struct {
	Name   string
	Age    int64
	Active bool
}

func personShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(person{})
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Name", fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))),
		fixtures.Field(t, "Age", fixtures.Scalar(partial.ScalarI64, reflect.TypeOf(int64(0)))),
		fixtures.Field(t, "Active", fixtures.Scalar(partial.ScalarBool, reflect.TypeOf(false))),
	})
}

// TestAllocShapeUnsized verifies alloc_shape rejects an unsized Shape
// without allocating anything (spec §4.1, "Failure semantics").
func TestAllocShapeUnsized(t *testing.T) {
	_, err := partial.AllocShape(&partial.ShapeDescriptor{Unsized: true})
	require.Error(t, err)
	var opErr *partial.OperationFailed
	require.ErrorAs(t, err, &opErr)
}

// TestScalarStructRoundTrip drives the three scalar-only-struct operations
// a real deserializer would: alloc, begin_field/set/end per field, build.
func TestScalarStructRoundTrip(t *testing.T) {
	shape := personShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)
	require.Equal(t, 1, p.FrameCount())

	require.NoError(t, p.BeginField("Name"))
	require.NoError(t, p.Set("Ada"))
	require.NoError(t, p.End())

	require.NoError(t, p.BeginNthField(1))
	require.NoError(t, p.Set(int64(36)))
	require.NoError(t, p.End())

	require.NoError(t, p.BeginField("Active"))
	require.NoError(t, p.Set(true))
	require.NoError(t, p.End())

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*person)(hv.Data)
	assert.Equal(t, person{Name: "Ada", Age: 36, Active: true}, *got)
}

// TestBuildRejectsUnfinishedChild verifies Build refuses a Partial with a
// field frame still open (spec invariant: the root frame's data pointer
// never moves, and only a fully-popped stack may be built).
func TestBuildRejectsUnfinishedChild(t *testing.T) {
	shape := personShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)
	require.NoError(t, p.BeginField("Name"))
	// Name's own frame is still open: FrameCount is 2, Build must refuse.
	_, err = p.Build()
	require.Error(t, err)
	var inv *partial.InvariantViolation
	require.ErrorAs(t, err, &inv)
}

// TestBeginFieldRejectsDoubleOpen verifies begin_field refuses to start a
// second child while one is already in progress (spec §4.1, "begin_field").
func TestBeginFieldRejectsDoubleOpen(t *testing.T) {
	shape := personShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)
	require.NoError(t, p.BeginField("Name"))
	err = p.BeginField("Age")
	require.Error(t, err)
	var inv *partial.InvariantViolation
	require.ErrorAs(t, err, &inv)
}

// TestSetNthFieldToDefaultThenBuild exercises the defaulting path used by
// the event deserializer's end-of-struct pass, leaving Age/Active defaulted
// and only Name explicitly set.
func TestSetNthFieldToDefaultThenBuild(t *testing.T) {
	shape := personShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	require.NoError(t, p.BeginField("Name"))
	require.NoError(t, p.Set("Grace"))
	require.NoError(t, p.End())

	set, err := p.IsFieldSet(1)
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, p.SetNthFieldToDefault(1))
	require.NoError(t, p.SetNthFieldToDefault(2))

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*person)(hv.Data)
	assert.Equal(t, person{Name: "Grace", Age: 0, Active: false}, *got)
}

// TestDropUnwindsPartialStruct exercises Drop on a Partial abandoned
// mid-construction (spec §4.1, "Drop": "the output slot is never left in a
// half-valid state"). It must not panic, and must poison the Partial
// against further use.
func TestDropUnwindsPartialStruct(t *testing.T) {
	shape := personShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)
	require.NoError(t, p.BeginField("Name"))
	require.NoError(t, p.Set("Incomplete"))
	require.NoError(t, p.End())

	p.Drop()

	_, err = p.Build()
	require.Error(t, err)
	var inv *partial.InvariantViolation
	require.ErrorAs(t, err, &inv)
}

type withList struct {
	Tags []string
}

func withListShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(withList{})
	elem := fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))
	listShape := fixtures.List(reflect.TypeOf([]string(nil)), elem)
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Tags", listShape),
	})
}

// TestListFieldRoundTrip exercises begin_list/begin_list_item/end, and
// guards against the CurrentChild regression in requireFullInit (a list
// frame popping via End() must not be rejected as "work in progress" just
// because Tracker.CurrentChild defaults to its zero value for list kinds).
func TestListFieldRoundTrip(t *testing.T) {
	shape := withListShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	require.NoError(t, p.BeginField("Tags"))
	require.NoError(t, p.BeginList())
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, p.BeginListItem())
		require.NoError(t, p.Set(v))
		require.NoError(t, p.End())
	}
	require.NoError(t, p.End())

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*withList)(hv.Data)
	assert.Equal(t, []string{"a", "b", "c"}, got.Tags)
}

type withMap struct {
	Scores map[string]int64
}

func withMapShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(withMap{})
	key := fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))
	val := fixtures.Scalar(partial.ScalarI64, reflect.TypeOf(int64(0)))
	mapShape := fixtures.Map(reflect.TypeOf(map[string]int64(nil)), key, val)
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Scores", mapShape),
	})
}

// TestMapFieldRoundTrip exercises begin_map/begin_key/begin_value/end, the
// same CurrentChild hazard as the list case above.
func TestMapFieldRoundTrip(t *testing.T) {
	shape := withMapShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	require.NoError(t, p.BeginField("Scores"))
	require.NoError(t, p.BeginMap())

	require.NoError(t, p.BeginKey())
	require.NoError(t, p.Set("alice"))
	require.NoError(t, p.End())
	require.NoError(t, p.BeginValue())
	require.NoError(t, p.Set(int64(10)))
	require.NoError(t, p.End())

	require.NoError(t, p.BeginKey())
	require.NoError(t, p.Set("bob"))
	require.NoError(t, p.End())
	require.NoError(t, p.BeginValue())
	require.NoError(t, p.Set(int64(20)))
	require.NoError(t, p.End())

	require.NoError(t, p.End())

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*withMap)(hv.Data)
	assert.Equal(t, map[string]int64{"alice": 10, "bob": 20}, got.Scores)
}

type withOption struct {
	Nickname *string
}

func withOptionShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(withOption{})
	elem := fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))
	optShape := fixtures.Option(reflect.TypeOf((*string)(nil)), elem)
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Nickname", optShape),
	})
}

// TestOptionFieldSome exercises begin_some/end: the Some path (spec §4.1,
// "begin_some"), and confirms the Option field itself (unlike Struct/Array)
// genuinely reaches Tracker.Kind == TrackInit once its inner value pops.
func TestOptionFieldSome(t *testing.T) {
	shape := withOptionShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	require.NoError(t, p.BeginField("Nickname"))
	require.NoError(t, p.BeginSome())
	require.NoError(t, p.Set("Ace"))
	require.NoError(t, p.End())
	require.NoError(t, p.End())

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*withOption)(hv.Data)
	require.NotNil(t, got.Nickname)
	assert.Equal(t, "Ace", *got.Nickname)
}

// TestOptionFieldNone exercises set_default on an Option field, the path
// the event deserializer takes for a JSON null (spec §4.1, "set_default").
func TestOptionFieldNone(t *testing.T) {
	shape := withOptionShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	require.NoError(t, p.BeginField("Nickname"))
	require.NoError(t, p.SetDefault())
	require.NoError(t, p.End())

	hv, err := p.Build()
	require.NoError(t, err)
	got := (*withOption)(hv.Data)
	assert.Nil(t, got.Nickname)
}

type shirt struct {
	Disc uint8 // discriminant byte (EnumRepr 1)
	Size uint8
}

const (
	discSmall uint64 = 0
	discLarge uint64 = 1
)

func shirtEnumShape() *partial.ShapeDescriptor {
	t := reflect.TypeOf(shirt{})
	sizeShape := fixtures.Scalar(partial.ScalarU8, reflect.TypeOf(uint8(0)))
	return fixtures.Enum(t, 1, []partial.VariantDescriptor{
		{Name: "Small", Discriminant: discSmall, Kind: partial.VariantUnit},
		{Name: "Large", Discriminant: discLarge, Kind: partial.VariantStruct,
			Fields: []partial.FieldDescriptor{fixtures.Field(t, "Size", sizeShape)}},
	})
}

// TestEnumSelectVariantByName exercises select_variant_named for a unit
// variant, and confirms the discriminant is written at width EnumRepr
// (spec invariant 5).
func TestEnumSelectVariantByName(t *testing.T) {
	shape := shirtEnumShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	require.NoError(t, p.SelectVariantNamed("Small"))
	assert.Equal(t, 0, p.CurrentVariantIndex())

	hv, err := p.Build()
	require.NoError(t, err)
	disc := partial.ReadDiscriminant(hv.Data, 1)
	assert.Equal(t, discSmall, disc)
}

// TestEnumSelectVariantWithFields exercises select_nth_variant followed by
// begin_field/set/end against the selected variant's own field list.
func TestEnumSelectVariantWithFields(t *testing.T) {
	shape := shirtEnumShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	require.NoError(t, p.SelectNthVariant(1))
	require.NoError(t, p.BeginField("Size"))
	require.NoError(t, p.Set(uint8(42)))
	require.NoError(t, p.End())

	hv, err := p.Build()
	require.NoError(t, err)
	disc := partial.ReadDiscriminant(hv.Data, 1)
	assert.Equal(t, discLarge, disc)
	got := (*shirt)(hv.Data)
	assert.Equal(t, uint8(42), got.Size)
}

// TestSelectVariantUnknownDiscriminant verifies an unrecognized numeric
// discriminant is rejected rather than silently selecting variant 0.
func TestSelectVariantUnknownDiscriminant(t *testing.T) {
	shape := shirtEnumShape()
	p, err := partial.AllocShape(shape)
	require.NoError(t, err)

	err = p.SelectVariant(99)
	require.Error(t, err)
	var opErr *partial.OperationFailed
	require.ErrorAs(t, err, &opErr)
}
