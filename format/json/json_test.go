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

package json_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/format/json"
)

// tokens reads one full top-level value's worth of Events off input: a
// bare scalar, or a matched bracket pair with everything nested inside it.
func tokens(t *testing.T, input string) []event.Event {
	t.Helper()
	p := json.Format{}.NewParser([]byte(input))
	var out []event.Event
	depth := 0
	for {
		ev, err := p.Next()
		require.NoError(t, err)
		out = append(out, ev)
		switch ev.Kind {
		case event.StructStart, event.SequenceStart:
			depth++
			continue
		case event.StructEnd, event.SequenceEnd:
			depth--
		}
		if depth == 0 {
			break
		}
	}
	return out
}

// TestTokenizeFlatObject verifies the tokenizer's StructStart/FieldKey/
// Scalar/StructEnd sequence for a simple object.
func TestTokenizeFlatObject(t *testing.T) {
	toks := tokens(t, `{"a":1,"b":"two"}`)
	require.Len(t, toks, 6)
	assert.Equal(t, event.StructStart, toks[0].Kind)
	assert.Equal(t, event.FieldKey, toks[1].Kind)
	assert.Equal(t, "a", toks[1].Name)
	assert.Equal(t, event.Scalar, toks[2].Kind)
	assert.Equal(t, int64(1), toks[2].Value.I64)
	assert.Equal(t, event.FieldKey, toks[3].Kind)
	assert.Equal(t, "b", toks[3].Name)
	assert.Equal(t, "two", toks[4].Value.Str)
	assert.Equal(t, event.StructEnd, toks[5].Kind)
}

// TestTokenizeNestedArray verifies bracket-depth tracking across a nested
// array value.
func TestTokenizeNestedArray(t *testing.T) {
	toks := tokens(t, `[1,[2,3],4]`)
	var kinds []event.Kind
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	assert.Equal(t, []event.Kind{
		event.SequenceStart, event.Scalar, event.SequenceStart, event.Scalar,
		event.Scalar, event.SequenceEnd, event.Scalar, event.SequenceEnd,
	}, kinds)
}

// TestTokenizeEscapedString verifies backslash-escape handling (including
// a \uXXXX surrogate pair) in the slow-path string reader.
func TestTokenizeEscapedString(t *testing.T) {
	toks := tokens(t, "\"line\\nbreak \\\"quoted\\\" \\uD83D\\uDE00\"")
	require.Len(t, toks, 1)
	assert.Equal(t, "line\nbreak \"quoted\" \U0001F600", toks[0].Value.Str)
}

// TestTokenizeNumberKinds verifies integer literals decode as ScalarI64 and
// any literal with a '.' or exponent decodes as ScalarF64.
func TestTokenizeNumberKinds(t *testing.T) {
	toks := tokens(t, `[42,-7,3.5,1e3]`)
	require.Len(t, toks, 6)
	assert.Equal(t, event.ScalarI64, toks[1].Value.Tag)
	assert.Equal(t, int64(42), toks[1].Value.I64)
	assert.Equal(t, event.ScalarI64, toks[2].Value.Tag)
	assert.Equal(t, int64(-7), toks[2].Value.I64)
	assert.Equal(t, event.ScalarF64, toks[3].Value.Tag)
	assert.Equal(t, 3.5, toks[3].Value.F64)
	assert.Equal(t, event.ScalarF64, toks[4].Value.Tag)
	assert.Equal(t, 1000.0, toks[4].Value.F64)
}

// TestSkipValueDiscardsNestedObject verifies SkipValue consumes an entire
// nested object's tokens, leaving the parser positioned right after it.
func TestSkipValueDiscardsNestedObject(t *testing.T) {
	p := json.Format{}.NewParser([]byte(`{"skip":{"a":[1,2,3]},"keep":9}`))

	start, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, event.StructStart, start.Kind)

	key, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, "skip", key.Name)

	require.NoError(t, p.SkipValue())

	key2, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "keep", key2.Name)

	val, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(9), val.Value.I64)
}

// TestMarshalRoundTrip verifies the Marshaler's encoder output re-tokenizes
// into the same event shape fed to it.
func TestMarshalRoundTrip(t *testing.T) {
	var m json.Marshaler
	enc := m.NewEncoder()
	require.NoError(t, enc.StructStart(2))
	require.NoError(t, enc.FieldKey("name"))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarStr, Str: "Trinity"}))
	require.NoError(t, enc.FieldKey("tags"))
	require.NoError(t, enc.SequenceStart(2))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 1}))
	require.NoError(t, enc.WriteScalar(event.ScalarValue{Tag: event.ScalarI64, I64: 2}))
	require.NoError(t, enc.SequenceEnd())
	require.NoError(t, enc.StructEnd())

	out := m.Finish()
	toks := tokens(t, string(out))
	require.Len(t, toks, 9)
	assert.Equal(t, event.StructStart, toks[0].Kind)
	assert.Equal(t, "name", toks[1].Name)
	assert.Equal(t, "Trinity", toks[2].Value.Str)
	assert.Equal(t, "tags", toks[3].Name)
	assert.Equal(t, event.SequenceStart, toks[4].Kind)
}
