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

package postcard_test

import (
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/format/postcard"
)

// TestScalarRoundTrip verifies every scalar tag the encoder writes decodes
// back to the same ScalarValue through the decode-side parser.
func TestScalarRoundTrip(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarBool, Bool: true}))
	out := m.Finish()

	p := postcard.Format{}.NewParser(out)
	ev, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, event.Scalar, ev.Kind)
	assert.Equal(t, event.ScalarBool, ev.Value.Tag)
	assert.True(t, ev.Value.Bool)
}

// TestI64ZigZagRoundTrip verifies a negative signed integer survives the
// zigzag varint encode/decode round trip.
func TestI64ZigZagRoundTrip(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: -12345}))
	out := m.Finish()

	p := postcard.Format{}.NewParser(out)
	ev, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(-12345), ev.Value.I64)
}

// TestStringRoundTrip verifies a length-prefixed string survives encode
// and decode.
func TestStringRoundTrip(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarStr, Str: "neo"}))
	out := m.Finish()

	p := postcard.Format{}.NewParser(out)
	ev, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "neo", ev.Value.Str)
}

// TestSequenceRoundTrip verifies a counted sequence of scalars round-trips
// with a matching SizeHint and a synthesized SequenceEnd with no tag byte
// on the wire (spec's postcard is-non-self-describing counted framing).
func TestSequenceRoundTrip(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.SequenceStart(3))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 1}))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 2}))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 3}))
	require.NoError(t, enc.SequenceEnd())
	out := m.Finish()

	p := postcard.Format{}.NewParser(out)
	start, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, event.SequenceStart, start.Kind)
	assert.Equal(t, 3, start.SizeHint)

	var got []int64
	for {
		ev, err := p.Next()
		require.NoError(t, err)
		if ev.Kind == event.SequenceEnd {
			break
		}
		got = append(got, ev.Value.I64)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

// TestMapRoundTrip verifies a string-keyed map round-trips with FieldKey
// events carrying the key string, matching how internal/event's
// deserializeMap reads a map key (spec's postcard map support).
func TestMapRoundTrip(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.MapStart(2))
	require.NoError(t, enc.FieldKey("alice"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 10}))
	require.NoError(t, enc.FieldKey("bob"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 20}))
	require.NoError(t, enc.MapEnd())
	out := m.Finish()

	p := postcard.Format{}.NewParser(out)
	start, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, event.StructStart, start.Kind)

	got := map[string]int64{}
	for {
		key, err := p.Next()
		require.NoError(t, err)
		if key.Kind == event.StructEnd {
			break
		}
		require.Equal(t, event.FieldKey, key.Kind)
		val, err := p.Next()
		require.NoError(t, err)
		got[key.Name] = val.Value.I64
	}
	assert.Equal(t, map[string]int64{"alice": 10, "bob": 20}, got)
}

// TestPositionalStructRoundTrip verifies a plain struct written with
// StructStart/StructEnd (no tag, no count) decodes as a bare sequence of
// scalar values with no framing at all, matching runPositional's
// assumption (spec's postcard positional struct encoding).
func TestPositionalStructRoundTrip(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.StructStart(2))
	require.NoError(t, enc.FieldKey("ID"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 7}))
	require.NoError(t, enc.FieldKey("Name"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarStr, Str: "Neo"}))
	require.NoError(t, enc.StructEnd())
	out := m.Finish()

	p := postcard.Format{}.NewParser(out)
	idEv, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(7), idEv.Value.I64)
	nameEv, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "Neo", nameEv.Value.Str)
}

// TestSolveVariantReadsTaggedDiscriminant verifies SolveVariant resolves a
// numeric discriminant ahead of any field data, the mechanism
// non-self-describing formats use instead of a variant-name string (spec
// §4.2, "enum dispatch").
func TestSolveVariantReadsTaggedDiscriminant(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarU64, U64: 1}))
	out := m.Finish()

	p := postcard.Format{}.NewParser(out)
	idx, ok := p.SolveVariant([]event.EnumVariantHint{{Name: "A"}, {Name: "B"}})
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

// TestCompressRoundTrip verifies Decompress reverses a zstd-compressed
// postcard buffer back into the original bytes (spec's WithCompressedInput
// option).
func TestCompressRoundTrip(t *testing.T) {
	var m postcard.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarStr, Str: "hello"}))
	plain := m.Finish()

	compressed := zstdCompress(t, plain)
	decompressed, err := postcard.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, plain, decompressed)
}

// zstdCompress produces a zstd frame for Decompress to unwrap, standing in
// for whatever external writer produced the compressed postcard buffer the
// WithCompressedInput option is meant to read.
func zstdCompress(t *testing.T, plain []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(plain, nil)
}
