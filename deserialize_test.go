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

package shapeform_test

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeform/shapeform"
	"github.com/shapeform/shapeform/format/json"
	"github.com/shapeform/shapeform/format/postcard"
	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/internal/fixtures"
	"github.com/shapeform/shapeform/internal/partial"
)

// person is a plain top-level struct, registered once so ShapeOf[person],
// Alloc[person], and DeserializeTyped[person] all have something to find.
type person struct {
	Name   string
	Age    int64
	Active bool
}

func personShapeDescriptor() *shapeform.Shape {
	t := reflect.TypeOf(person{})
	return fixtures.Struct(t, []partial.FieldDescriptor{
		fixtures.Field(t, "Name", fixtures.Scalar(partial.ScalarString, reflect.TypeOf(""))),
		fixtures.Field(t, "Age", fixtures.Scalar(partial.ScalarI64, reflect.TypeOf(int64(0)))),
		fixtures.Field(t, "Active", fixtures.Scalar(partial.ScalarBool, reflect.TypeOf(false))),
	})
}

var registerPersonOnce sync.Once

func registerPerson() {
	registerPersonOnce.Do(func() {
		shapeform.RegisterShape[person](personShapeDescriptor())
	})
}

// TestDeserializeJSONDefaultTierMatchesEventTier verifies the JIT-eligible
// default path and a WithEventTier-forced interpreter run on the same JSON
// input produce identical values, the comparison the compiled tier's
// correctness rests on (spec §4.5, "tier equivalence").
func TestDeserializeJSONDefaultTierMatchesEventTier(t *testing.T) {
	shape := personShapeDescriptor()
	input := []byte(`{"Name":"Trinity","Age":30,"Active":true}`)

	require.True(t, shapeform.IsJITCompatible(shape, json.Format{}))

	viaJIT, err := shapeform.Deserialize(shape, json.Format{}, input)
	require.NoError(t, err)

	viaEvent, err := shapeform.Deserialize(shape, json.Format{}, input, shapeform.WithEventTier())
	require.NoError(t, err)

	gotJIT := viaJIT.Interface().(*person)
	gotEvent := viaEvent.Interface().(*person)
	assert.Equal(t, *gotEvent, *gotJIT)
	assert.Equal(t, person{Name: "Trinity", Age: 30, Active: true}, *gotJIT)
}

// TestDeserializeTyped verifies the generic entry point returns *T directly
// and finds its shape through the registry (spec §4.2, "External
// interfaces").
func TestDeserializeTyped(t *testing.T) {
	registerPerson()
	got, err := shapeform.DeserializeTyped[person](json.Format{}, []byte(`{"Name":"Neo","Age":28,"Active":false}`))
	require.NoError(t, err)
	assert.Equal(t, &person{Name: "Neo", Age: 28, Active: false}, got)
}

// TestDeserializePostcardPositional verifies the JIT-only tier decodes a
// postcard positional struct that the interpreter tier could never frame
// (postcard's StructStart/StructEnd emit no wire bytes at all).
func TestDeserializePostcardPositional(t *testing.T) {
	shape := personShapeDescriptor()
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.StructStart(3))
	require.NoError(t, enc.FieldKey("Name"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarStr, Str: "Morpheus"}))
	require.NoError(t, enc.FieldKey("Age"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 45}))
	require.NoError(t, enc.FieldKey("Active"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarBool, Bool: true}))
	require.NoError(t, enc.StructEnd())
	wire := m.Finish()

	hv, err := shapeform.Deserialize(shape, postcard.Format{}, wire)
	require.NoError(t, err)
	got := hv.Interface().(*person)
	assert.Equal(t, person{Name: "Morpheus", Age: 45, Active: true}, *got)
}

// TestMarshalThenDeserializeJSONRoundTrip verifies a struct built by
// Deserialize can be Peek'd, Marshaled back to JSON, and re-Deserialized
// into an identical value (spec §4.8, "Marshal").
func TestMarshalThenDeserializeJSONRoundTrip(t *testing.T) {
	shape := personShapeDescriptor()
	hv, err := shapeform.Deserialize(shape, json.Format{}, []byte(`{"Name":"Oracle","Age":60,"Active":true}`))
	require.NoError(t, err)

	pk := shapeform.PeekValue(hv)
	require.True(t, pk.IsStruct())
	assert.Equal(t, 3, pk.NumFields())

	var m json.Marshaler
	out, err := shapeform.Marshal(pk, &m)
	require.NoError(t, err)

	hv2, err := shapeform.Deserialize(shape, json.Format{}, out)
	require.NoError(t, err)
	assert.Equal(t, hv.Interface().(*person), hv2.Interface().(*person))
}

// TestCompileWarmUpIsIdempotent verifies Compile can be called repeatedly
// (including with DisableJIT) without affecting a later unqualified
// Deserialize call's own tier selection.
func TestCompileWarmUpIsIdempotent(t *testing.T) {
	shape := personShapeDescriptor()
	shapeform.Compile(shape, json.Format{})
	shapeform.Compile(shape, json.Format{})
	shapeform.Compile(shape, json.Format{}, shapeform.DisableJIT())

	assert.True(t, shapeform.IsJITCompatible(shape, json.Format{}))

	hv, err := shapeform.Deserialize(shape, json.Format{}, []byte(`{"Name":"Tank","Age":22,"Active":false}`))
	require.NoError(t, err)
	assert.Equal(t, person{Name: "Tank", Age: 22, Active: false}, *hv.Interface().(*person))
}

// TestDeserializeMissingRequiredFieldErrorCode verifies a missing required
// field surfaces through the public Deserialize entry point as a
// DeserializeError carrying ErrMissingRequiredField, regardless of which
// tier ran (spec §7, "Propagation policy").
func TestDeserializeMissingRequiredFieldErrorCode(t *testing.T) {
	shape := personShapeDescriptor()
	_, err := shapeform.Deserialize(shape, json.Format{}, []byte(`{"Name":"Cypher"}`))
	require.Error(t, err)
	var de *shapeform.DeserializeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, shapeform.ErrMissingRequiredField, de.Code)
	assert.Equal(t, shapeform.KindMissingField, de.Code.Kind())
}

// TestDeserializeMissingRequiredFieldErrorCodeEventTier verifies the same
// mapping holds when WithEventTier forces the interpreter tier, since
// wrapWalkError is the single funnel both tiers' errors pass through.
func TestDeserializeMissingRequiredFieldErrorCodeEventTier(t *testing.T) {
	shape := personShapeDescriptor()
	_, err := shapeform.Deserialize(shape, json.Format{}, []byte(`{"Name":"Cypher"}`), shapeform.WithEventTier())
	require.Error(t, err)
	var de *shapeform.DeserializeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, shapeform.ErrMissingRequiredField, de.Code)
}

// TestRegisterShapeAndLookup verifies RegisterShape/ShapeOf/LookupShape/
// LookupShapeForType all agree on the same registered Shape.
func TestRegisterShapeAndLookup(t *testing.T) {
	registerPerson()

	shape := shapeform.ShapeOf[person]()
	require.NotNil(t, shape)

	looked, ok := shapeform.LookupShape[person]()
	require.True(t, ok)
	assert.Same(t, shape, looked)

	byType, ok := shapeform.LookupShapeForType(reflect.TypeOf(person{}))
	require.True(t, ok)
	assert.Same(t, shape, byType)

	type unregistered struct{}
	_, ok = shapeform.LookupShape[unregistered]()
	assert.False(t, ok)
}

// TestShapeOfPanicsWithoutRegistration verifies ShapeOf panics for a type
// nothing has registered a Shape for.
func TestShapeOfPanicsWithoutRegistration(t *testing.T) {
	type neverRegistered struct{}
	assert.Panics(t, func() { shapeform.ShapeOf[neverRegistered]() })
}

// TestAllocTypedPartialBuild verifies Alloc[T] finds the registered shape
// and TypedPartial.Build hands back a *T built through the same Partial
// primitives Deserialize itself drives.
func TestAllocTypedPartialBuild(t *testing.T) {
	registerPerson()
	tp, err := shapeform.Alloc[person]()
	require.NoError(t, err)

	require.NoError(t, tp.BeginField("Name"))
	require.NoError(t, tp.Set("Switch"))
	require.NoError(t, tp.End())
	require.NoError(t, tp.BeginField("Age"))
	require.NoError(t, tp.Set(int64(19)))
	require.NoError(t, tp.End())
	require.NoError(t, tp.BeginField("Active"))
	require.NoError(t, tp.Set(true))
	require.NoError(t, tp.End())

	got, err := tp.Build()
	require.NoError(t, err)
	assert.Equal(t, &person{Name: "Switch", Age: 19, Active: true}, got)
}

// TestGuardDropsOnUnclosedBuild verifies a Guard still armed at Close time
// (the defer-without-Disarm path taken on any early return) drops the
// Partial, poisoning it so a later Build fails rather than handing back a
// half-built value.
func TestGuardDropsOnUnclosedBuild(t *testing.T) {
	shape := personShapeDescriptor()
	p, err := shapeform.AllocShape(shape)
	require.NoError(t, err)

	guard := shapeform.NewGuard(p)
	require.NoError(t, p.BeginField("Name"))
	require.NoError(t, p.Set("Agent Smith"))
	require.NoError(t, p.End())
	// Simulate an early-return error path: guard is never Disarm()'d.
	guard.Close()

	_, err = p.Build()
	require.Error(t, err)
}

// TestGuardDisarmPreventsDrop verifies Disarm before Close lets a
// successfully built Partial's value survive.
func TestGuardDisarmPreventsDrop(t *testing.T) {
	shape := personShapeDescriptor()
	p, err := shapeform.AllocShape(shape)
	require.NoError(t, err)
	guard := shapeform.NewGuard(p)

	require.NoError(t, p.BeginField("Name"))
	require.NoError(t, p.Set("Agent Smith"))
	require.NoError(t, p.End())
	require.NoError(t, p.BeginField("Age"))
	require.NoError(t, p.Set(int64(0)))
	require.NoError(t, p.End())
	require.NoError(t, p.BeginField("Active"))
	require.NoError(t, p.Set(false))
	require.NoError(t, p.End())

	hv, err := p.Build()
	require.NoError(t, err)
	guard.Disarm()
	guard.Close() // no-op now; must not touch the already-built value

	assert.Equal(t, person{Name: "Agent Smith"}, *(hv.Interface().(*person)))
}

// TestPeekStructFieldsAndInterface verifies Peek's struct traversal and
// Interface() against a directly hand-built (non-Deserialize) value.
func TestPeekStructFieldsAndInterface(t *testing.T) {
	shape := personShapeDescriptor()
	p, err := shapeform.AllocShape(shape)
	require.NoError(t, err)
	require.NoError(t, p.BeginField("Name"))
	require.NoError(t, p.Set("Merovingian"))
	require.NoError(t, p.End())
	require.NoError(t, p.BeginField("Age"))
	require.NoError(t, p.Set(int64(200)))
	require.NoError(t, p.End())
	require.NoError(t, p.BeginField("Active"))
	require.NoError(t, p.Set(true))
	require.NoError(t, p.End())
	hv, err := p.Build()
	require.NoError(t, err)

	pk := shapeform.PeekValue(hv)
	require.True(t, pk.IsValid())
	require.True(t, pk.IsStruct())
	require.Equal(t, 3, pk.NumFields())

	nameField, ok := pk.Field("Name")
	require.True(t, ok)
	require.True(t, nameField.IsScalar())
	v, err := nameField.Scalar()
	require.NoError(t, err)
	assert.Equal(t, "Merovingian", v)

	assert.Equal(t, "Age", pk.FieldName(1))
	assert.Equal(t, person{Name: "Merovingian", Age: 200, Active: true}, pk.Interface())
}

// TestWrapPartialErrorMapsErrorCodes verifies WrapPartialError classifies
// every internal/partial error type into the right public ErrorCode (spec
// §7, "Propagation policy").
func TestWrapPartialErrorMapsErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want shapeform.ErrorCode
	}{
		{"operation-failed", &partial.OperationFailed{Operation: "set", Reason: "boom"}, shapeform.ErrAllocationFailed},
		{"invariant-violation", &partial.InvariantViolation{Operation: "end", State: "uninit"}, shapeform.ErrInvariantViolation},
		{"try-from", &partial.TryFromError{Cause: assertErr{}}, shapeform.ErrConversionFailed},
		{"invariants-failed", &partial.InvariantsFailed{}, shapeform.ErrInvariantViolation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wrapped := shapeform.WrapPartialError(c.err, 7, "Person.Name")
			var de *shapeform.DeserializeError
			require.ErrorAs(t, wrapped, &de)
			assert.Equal(t, c.want, de.Code)
			assert.Equal(t, 7, de.Pos)
			assert.Equal(t, "Person.Name", de.Path)
		})
	}
}

// TestWrapPartialErrorNilIsNil verifies WrapPartialError(nil, ...) returns
// nil rather than a non-nil error wrapping nothing.
func TestWrapPartialErrorNilIsNil(t *testing.T) {
	assert.NoError(t, shapeform.WrapPartialError(nil, 0, ""))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
