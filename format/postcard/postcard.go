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

// Package postcard implements a compact binary wire format in the spirit
// of Rust's postcard crate: scalars are self-tagged with a one-byte type
// marker (so the event-driven interpreter tier can still read them
// generically), but struct fields carry no name or key at all — their
// identity is purely positional, declaration order matching wire order.
// This makes it a non-self-describing format for struct dispatch (spec
// §4.2's is_non_self_describing / hint_enum machinery exists for exactly
// this), and the natural target for internal/jit's compiled tier, which
// is the only tier that can walk a positional struct without a shape-aware
// parser protocol (see jitFormat.StructEncoding).
package postcard

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/internal/jitfmt"
)

// Tag is the one-byte type marker prefixing every scalar, option, and
// sequence value on the wire.
type Tag byte

const (
	TagNull Tag = iota
	TagBool
	TagI64
	TagU64
	TagF64
	TagStr
	TagBytes
	TagSeq
	TagMap
	TagUnit
)

// Format is the shapeform.Format implementation for postcard.
type Format struct{}

func (Format) NewParser(input []byte) event.Parser { return newParser(input) }
func (Format) JitFormat() jitfmt.JitFormat         { return jitFormat{} }

// DecompressReader wraps r in a zstd decompressor, for input produced with
// a compressed postcard writer (spec's WithCompressedInput option). The
// caller drains the returned reader into a []byte before handing it to
// NewParser, since the parser operates on a buffer, not a stream.
func DecompressReader(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("postcard: zstd init: %w", err)
	}
	return dec.IOReadCloser(), nil
}

// Decompress fully decodes a zstd-compressed postcard buffer into a plain
// byte slice ready for NewParser.
func Decompress(compressed []byte) ([]byte, error) {
	r, err := DecompressReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

type jitFormat struct{}

func (jitFormat) Name() string                         { return "postcard" }
func (jitFormat) StructEncoding() jitfmt.StructEncoding { return jitfmt.StructEncodingPositional }
func (jitFormat) ProvidesSeqCount() bool                { return true }
func (jitFormat) IsNonSelfDescribing() bool             { return true }

// seqFrame tracks a sequence or map's remaining element count, so Peek can
// synthesize SequenceEnd/StructEnd once it reaches zero without reading
// another tag byte off the wire.
type seqFrame struct {
	remaining int // elements left for a sequence, or key/value pairs left for a map
	isMap     bool
	halfPair  bool // isMap only: true after a key has been read, before its value
}

type parser struct {
	buf   []byte
	pos   int
	stack []seqFrame

	hasPeek bool
	peeked  event.Event
}

func newParser(input []byte) *parser { return &parser{buf: input} }

func (p *parser) Pos() int { return p.pos }

func (p *parser) Peek() (event.Event, error) {
	if p.hasPeek {
		return p.peeked, nil
	}
	ev, err := p.next()
	if err != nil {
		return event.Event{}, err
	}
	p.peeked = ev
	p.hasPeek = true
	return ev, nil
}

func (p *parser) Next() (event.Event, error) {
	if p.hasPeek {
		p.hasPeek = false
		return p.peeked, nil
	}
	return p.next()
}

func (p *parser) HintEnum([]event.EnumVariantHint) {}
func (p *parser) IsNonSelfDescribing() bool         { return true }

// SolveVariant resolves an enum discriminant the same way a numeric-tag
// enum would: the next tagged scalar on the wire is the variant index.
// Formats that are not self-describing need this because there is no
// "VariantName" string to match against (spec §4.2, "enum dispatch").
func (p *parser) SolveVariant(variants []event.EnumVariantHint) (int, bool) {
	ev, err := p.Peek()
	if err != nil || ev.Kind != event.Scalar {
		return 0, false
	}
	var idx int
	switch ev.Value.Tag {
	case event.ScalarU64:
		idx = int(ev.Value.U64)
	case event.ScalarI64:
		idx = int(ev.Value.I64)
	default:
		return 0, false
	}
	if idx < 0 || idx >= len(variants) {
		return 0, false
	}
	_, _ = p.Next()
	return idx, true
}

func (p *parser) top() *seqFrame {
	if len(p.stack) == 0 {
		return nil
	}
	return &p.stack[len(p.stack)-1]
}

func (p *parser) next() (event.Event, error) {
	if top := p.top(); top != nil && top.remaining == 0 {
		p.stack = p.stack[:len(p.stack)-1]
		if top.isMap {
			return event.Event{Kind: event.StructEnd, Pos: p.pos}, nil
		}
		return event.Event{Kind: event.SequenceEnd, Pos: p.pos}, nil
	}

	// A map's key half arrives as a FieldKey event, not a generic Scalar,
	// so internal/event's deserializeMap (which expects FieldKey.Name) can
	// read it the same way it reads a JSON object key. postcard map keys
	// are therefore restricted to strings, matching fastpb's map-key
	// support (only Go's comparable-scalar map keys need this, and string
	// is the common case for every format this tier targets).
	if top := p.top(); top != nil && top.isMap && !top.halfPair {
		pos := p.pos
		if p.pos >= len(p.buf) || Tag(p.buf[p.pos]) != TagStr {
			return event.Event{}, fmt.Errorf("postcard: map key must be a string at offset %d", pos)
		}
		p.pos++
		s, err := p.readLenPrefixed(pos)
		if err != nil {
			return event.Event{}, err
		}
		top.halfPair = true
		return event.Event{Kind: event.FieldKey, Name: string(s), Pos: pos}, nil
	}

	if p.pos >= len(p.buf) {
		return event.Event{}, fmt.Errorf("postcard: unexpected end of input at offset %d", p.pos)
	}
	tag := Tag(p.buf[p.pos])
	pos := p.pos
	p.pos++

	parentIdx := len(p.stack) - 1
	ev, err := p.decodeTagged(tag, pos)
	if err != nil {
		return event.Event{}, err
	}

	if parentIdx >= 0 {
		top := &p.stack[parentIdx]
		if top.isMap {
			if !top.halfPair {
				top.halfPair = true
			} else {
				top.halfPair = false
				top.remaining--
			}
		} else {
			top.remaining--
		}
	}
	return ev, nil
}

func (p *parser) decodeTagged(tag Tag, pos int) (event.Event, error) {
	switch tag {
	case TagNull:
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarNull}, Pos: pos}, nil
	case TagUnit:
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarUnit}, Pos: pos}, nil
	case TagBool:
		if p.pos >= len(p.buf) {
			return event.Event{}, fmt.Errorf("postcard: truncated bool at offset %d", pos)
		}
		b := p.buf[p.pos] != 0
		p.pos++
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarBool, Bool: b}, Pos: pos}, nil
	case TagI64:
		v, n := protowire.ConsumeVarint(p.buf[p.pos:])
		if n < 0 {
			return event.Event{}, fmt.Errorf("postcard: invalid varint at offset %d", pos)
		}
		p.pos += n
		zz := int64(v>>1) ^ -int64(v&1)
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarI64, I64: zz}, Pos: pos}, nil
	case TagU64:
		v, n := protowire.ConsumeVarint(p.buf[p.pos:])
		if n < 0 {
			return event.Event{}, fmt.Errorf("postcard: invalid varint at offset %d", pos)
		}
		p.pos += n
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarU64, U64: v}, Pos: pos}, nil
	case TagF64:
		if p.pos+8 > len(p.buf) {
			return event.Event{}, fmt.Errorf("postcard: truncated f64 at offset %d", pos)
		}
		bits, n := protowire.ConsumeFixed64(p.buf[p.pos:])
		if n < 0 {
			return event.Event{}, fmt.Errorf("postcard: invalid fixed64 at offset %d", pos)
		}
		p.pos += n
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarF64, F64: math.Float64frombits(bits)}, Pos: pos}, nil
	case TagStr:
		s, err := p.readLenPrefixed(pos)
		if err != nil {
			return event.Event{}, err
		}
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarStr, Str: string(s)}, Pos: pos}, nil
	case TagBytes:
		b, err := p.readLenPrefixed(pos)
		if err != nil {
			return event.Event{}, err
		}
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarBytes, Byte: b}, Pos: pos}, nil
	case TagSeq:
		count, n := protowire.ConsumeVarint(p.buf[p.pos:])
		if n < 0 {
			return event.Event{}, fmt.Errorf("postcard: invalid sequence count at offset %d", pos)
		}
		p.pos += n
		p.stack = append(p.stack, seqFrame{remaining: int(count)})
		return event.Event{Kind: event.SequenceStart, SizeHint: int(count), Pos: pos}, nil
	case TagMap:
		count, n := protowire.ConsumeVarint(p.buf[p.pos:])
		if n < 0 {
			return event.Event{}, fmt.Errorf("postcard: invalid map count at offset %d", pos)
		}
		p.pos += n
		p.stack = append(p.stack, seqFrame{remaining: int(count), isMap: true})
		return event.Event{Kind: event.StructStart, SizeHint: int(count), Pos: pos}, nil
	default:
		return event.Event{}, fmt.Errorf("postcard: unknown tag %d at offset %d", tag, pos)
	}
}

func (p *parser) readLenPrefixed(pos int) ([]byte, error) {
	n64, n := protowire.ConsumeVarint(p.buf[p.pos:])
	if n < 0 {
		return nil, fmt.Errorf("postcard: invalid length varint at offset %d", pos)
	}
	p.pos += n
	end := p.pos + int(n64)
	if end > len(p.buf) || end < p.pos {
		return nil, fmt.Errorf("postcard: truncated value at offset %d", pos)
	}
	out := p.buf[p.pos:end]
	p.pos = end
	return out, nil
}

// SkipValue discards one full value.
func (p *parser) SkipValue() error {
	ev, err := p.Next()
	if err != nil {
		return err
	}
	depth := 0
	switch ev.Kind {
	case event.SequenceStart, event.StructStart:
		depth = 1
	default:
		return nil
	}
	for depth > 0 {
		ev, err := p.Next()
		if err != nil {
			return err
		}
		switch ev.Kind {
		case event.SequenceStart, event.StructStart:
			depth++
		case event.SequenceEnd, event.StructEnd:
			depth--
		}
	}
	return nil
}
