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

package postcard

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/shapeform/shapeform"
	"github.com/shapeform/shapeform/internal/event"
)

// Marshaler is the shapeform.Marshaler implementation for postcard,
// reusing protowire's Append*/EncodeZigZag functions to mirror the decode
// side's ConsumeVarint/ConsumeFixed64/zigzag-decode exactly, just run in
// reverse. Single-use, like json.Marshaler.
type Marshaler struct {
	enc *encoder
}

func (m *Marshaler) NewEncoder() shapeform.Encoder {
	m.enc = &encoder{}
	return m.enc
}

func (m *Marshaler) Finish() []byte { return m.enc.buf }

// frame tracks whether the currently open container is a map (TagMap,
// whose FieldKey calls write a real TagStr key onto the wire) or a
// positional struct (no tag, no count, FieldKey is a no-op — fields are
// identified purely by position, matching runPositional on the decode
// side).
type frame struct {
	isMap bool
}

type encoder struct {
	buf   []byte
	stack []frame
}

func (e *encoder) top() *frame {
	if len(e.stack) == 0 {
		return nil
	}
	return &e.stack[len(e.stack)-1]
}

// StructStart writes nothing: a postcard struct has no tag, no length
// prefix, and no per-field key, exactly matching runPositional's own
// assumption that every field is present, in order, by construction.
func (e *encoder) StructStart(int) error {
	e.stack = append(e.stack, frame{})
	return nil
}

func (e *encoder) StructEnd() error {
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

// FieldKey is a no-op inside a positional struct (there is no key on the
// wire to write) and writes a real TagStr-tagged key inside a map, where
// next's map-key branch on the decode side requires exactly that.
func (e *encoder) FieldKey(name string) error {
	top := e.top()
	if top == nil || !top.isMap {
		return nil
	}
	e.buf = append(e.buf, byte(TagStr))
	e.writeLenPrefixed([]byte(name))
	return nil
}

func (e *encoder) MapStart(sizeHint int) error {
	if sizeHint < 0 {
		return fmt.Errorf("postcard: marshal: map requires a known size, got %d", sizeHint)
	}
	e.buf = append(e.buf, byte(TagMap))
	e.buf = protowire.AppendVarint(e.buf, uint64(sizeHint))
	e.stack = append(e.stack, frame{isMap: true})
	return nil
}

func (e *encoder) MapEnd() error {
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

func (e *encoder) SequenceStart(sizeHint int) error {
	if sizeHint < 0 {
		return fmt.Errorf("postcard: marshal: sequence requires a known size, got %d", sizeHint)
	}
	e.buf = append(e.buf, byte(TagSeq))
	e.buf = protowire.AppendVarint(e.buf, uint64(sizeHint))
	e.stack = append(e.stack, frame{})
	return nil
}

func (e *encoder) SequenceEnd() error {
	e.stack = e.stack[:len(e.stack)-1]
	return nil
}

func (e *encoder) writeLenPrefixed(b []byte) {
	e.buf = protowire.AppendVarint(e.buf, uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) WriteScalar(v event.ScalarValue) error {
	switch v.Tag {
	case event.ScalarNull:
		e.buf = append(e.buf, byte(TagNull))
	case event.ScalarUnit:
		e.buf = append(e.buf, byte(TagUnit))
	case event.ScalarBool:
		e.buf = append(e.buf, byte(TagBool))
		if v.Bool {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case event.ScalarI64:
		e.buf = append(e.buf, byte(TagI64))
		e.buf = protowire.AppendVarint(e.buf, protowire.EncodeZigZag(v.I64))
	case event.ScalarU64:
		e.buf = append(e.buf, byte(TagU64))
		e.buf = protowire.AppendVarint(e.buf, v.U64)
	case event.ScalarF64:
		e.buf = append(e.buf, byte(TagF64))
		e.buf = protowire.AppendFixed64(e.buf, math.Float64bits(v.F64))
	case event.ScalarStr:
		e.buf = append(e.buf, byte(TagStr))
		e.writeLenPrefixed([]byte(v.Str))
	case event.ScalarBytes:
		e.buf = append(e.buf, byte(TagBytes))
		e.writeLenPrefixed(v.Byte)
	default:
		return fmt.Errorf("postcard: marshal: unsupported scalar tag %v", v.Tag)
	}
	return nil
}
