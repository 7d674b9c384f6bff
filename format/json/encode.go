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

package json

import (
	"strconv"
	"unicode/utf8"

	"github.com/shapeform/shapeform"
	"github.com/shapeform/shapeform/internal/event"
)

// Marshaler is the shapeform.Marshaler implementation for JSON: a thin
// wrapper around a growable byte buffer, symmetric to Format's own
// from-scratch tokenizer rather than reaching for encoding/json (this
// format package never depended on it for decode, so it doesn't start now).
// Each Marshaler is single-use: NewEncoder allocates the one encoder whose
// bytes Finish later returns.
type Marshaler struct {
	enc *encoder
}

func (m *Marshaler) NewEncoder() shapeform.Encoder {
	m.enc = &encoder{}
	return m.enc
}

func (m *Marshaler) Finish() []byte { return m.enc.buf }

// encoder writes JSON tokens directly into buf as marshalValue walks a Peek
// tree, tracking open containers the same way parser's containerFrame stack
// tracks them on the decode side.
type encoder struct {
	buf   []byte
	stack []frame
}

type frame struct {
	isObject bool
	sawFirst bool
	// expectValue is only meaningful for objects: true right after a
	// FieldKey call, so the next WriteScalar/StructStart/SequenceStart
	// knows not to emit a leading comma.
	expectValue bool
}

func (e *encoder) top() *frame {
	if len(e.stack) == 0 {
		return nil
	}
	return &e.stack[len(e.stack)-1]
}

// beforeValue writes the separator (',' between siblings, nothing before
// the first) that precedes any value token: scalar, '{', or '['.
func (e *encoder) beforeValue() {
	top := e.top()
	if top == nil {
		return
	}
	if top.expectValue {
		top.expectValue = false
		return
	}
	if top.sawFirst {
		e.buf = append(e.buf, ',')
	}
	top.sawFirst = true
}

func (e *encoder) StructStart(int) error {
	e.beforeValue()
	e.buf = append(e.buf, '{')
	e.stack = append(e.stack, frame{isObject: true})
	return nil
}

func (e *encoder) FieldKey(name string) error {
	top := e.top()
	if top.sawFirst {
		e.buf = append(e.buf, ',')
	}
	top.sawFirst = true
	e.writeString(name)
	e.buf = append(e.buf, ':')
	top.expectValue = true
	return nil
}

func (e *encoder) StructEnd() error {
	e.buf = append(e.buf, '}')
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

// MapStart/MapEnd render identically to StructStart/StructEnd: JSON has
// exactly one container token for both a Go map and a Go struct.
func (e *encoder) MapStart(sizeHint int) error { return e.StructStart(sizeHint) }
func (e *encoder) MapEnd() error               { return e.StructEnd() }

func (e *encoder) SequenceStart(int) error {
	e.beforeValue()
	e.buf = append(e.buf, '[')
	e.stack = append(e.stack, frame{isObject: false})
	return nil
}

func (e *encoder) SequenceEnd() error {
	e.buf = append(e.buf, ']')
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

func (e *encoder) WriteScalar(v event.ScalarValue) error {
	e.beforeValue()
	switch v.Tag {
	case event.ScalarNull, event.ScalarUnit:
		e.buf = append(e.buf, "null"...)
	case event.ScalarBool:
		if v.Bool {
			e.buf = append(e.buf, "true"...)
		} else {
			e.buf = append(e.buf, "false"...)
		}
	case event.ScalarI64:
		e.buf = strconv.AppendInt(e.buf, v.I64, 10)
	case event.ScalarU64:
		e.buf = strconv.AppendUint(e.buf, v.U64, 10)
	case event.ScalarF64:
		e.buf = strconv.AppendFloat(e.buf, v.F64, 'g', -1, 64)
	case event.ScalarStr:
		e.writeString(v.Str)
	case event.ScalarBytes:
		// No byte-string literal in JSON; base64 would need an extra
		// import for a path this format's decode side never exercises
		// either (postcard is the format with real []byte payloads), so
		// bytes round-trip through JSON as a plain array of integers.
		e.buf = append(e.buf, '[')
		for i, b := range v.Byte {
			if i > 0 {
				e.buf = append(e.buf, ',')
			}
			e.buf = strconv.AppendUint(e.buf, uint64(b), 10)
		}
		e.buf = append(e.buf, ']')
	}
	return nil
}

func (e *encoder) writeString(s string) {
	e.buf = append(e.buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			e.buf = append(e.buf, '\\', c)
			i++
		case c == '\n':
			e.buf = append(e.buf, '\\', 'n')
			i++
		case c == '\r':
			e.buf = append(e.buf, '\\', 'r')
			i++
		case c == '\t':
			e.buf = append(e.buf, '\\', 't')
			i++
		case c < 0x20:
			e.buf = append(e.buf, '\\', 'u', '0', '0', "0123456789abcdef"[c>>4], "0123456789abcdef"[c&0xF])
			i++
		case c < utf8.RuneSelf:
			e.buf = append(e.buf, c)
			i++
		default:
			r, size := utf8.DecodeRuneInString(s[i:])
			e.buf = utf8.AppendRune(e.buf, r)
			i += size
		}
	}
	e.buf = append(e.buf, '"')
}
