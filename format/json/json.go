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

// Package json implements the JSON wire format: a tokenizer that produces
// internal/event.Events directly off the input buffer (no intermediate
// DOM), plus a jitfmt.JitFormat describing JSON's map-keyed struct
// encoding to the compiled tier.
package json

import (
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/internal/jitfmt"
)

// Format is the shapeform.Format implementation for JSON. The zero value
// is ready to use.
type Format struct{}

func (Format) NewParser(input []byte) event.Parser { return newParser(input) }
func (Format) JitFormat() jitfmt.JitFormat         { return jitFormat{} }

type jitFormat struct{}

func (jitFormat) Name() string                          { return "json" }
func (jitFormat) StructEncoding() jitfmt.StructEncoding  { return jitfmt.StructEncodingMap }
func (jitFormat) ProvidesSeqCount() bool                 { return false }
func (jitFormat) IsNonSelfDescribing() bool              { return false }

// containerFrame tracks one open '{' or '[' so Peek/Next can tell whether
// the next token is a key, a value, or a closing bracket, and whether a
// leading comma is expected.
type containerFrame struct {
	isObject  bool
	sawFirst  bool
	expectKey bool // isObject only: next token is a key, not a value
}

// parser is a hand-written recursive-descent JSON tokenizer producing
// Events lazily, matching the teacher's own style of writing a tight
// single-pass parser over a byte slice rather than building a DOM first.
type parser struct {
	buf   []byte
	pos   int
	stack []containerFrame

	hasPeek bool
	peeked  event.Event
}

func newParser(input []byte) *parser {
	return &parser{buf: input}
}

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
func (p *parser) IsNonSelfDescribing() bool         { return false }
func (p *parser) SolveVariant([]event.EnumVariantHint) (int, bool) { return 0, false }

func (p *parser) skipWS() {
	for p.pos < len(p.buf) {
		switch p.buf[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) top() *containerFrame {
	if len(p.stack) == 0 {
		return nil
	}
	return &p.stack[len(p.stack)-1]
}

// next is the real tokenizer: it figures out, from the container stack and
// the next non-whitespace byte, which single Event to emit.
func (p *parser) next() (event.Event, error) {
	p.skipWS()
	if p.pos >= len(p.buf) {
		return event.Event{}, &jsonError{pos: p.pos, msg: "unexpected end of input"}
	}

	top := p.top()

	// Closing brackets, and the comma that precedes a subsequent element.
	if top != nil {
		c := p.buf[p.pos]
		if top.sawFirst && c != '}' && c != ']' {
			if c != ',' {
				return event.Event{}, &jsonError{pos: p.pos, msg: "expected ',' or closing bracket"}
			}
			p.pos++
			p.skipWS()
			if top.isObject {
				top.expectKey = true
			}
		}
		if c := p.buf[p.pos]; c == '}' || c == ']' {
			p.pos++
			p.stack = p.stack[:len(p.stack)-1]
			if c == '}' {
				return event.Event{Kind: event.StructEnd, Pos: p.pos}, nil
			}
			return event.Event{Kind: event.SequenceEnd, Pos: p.pos}, nil
		}
		if top.isObject && top.expectKey {
			name, err := p.readString()
			if err != nil {
				return event.Event{}, err
			}
			p.skipWS()
			if p.pos >= len(p.buf) || p.buf[p.pos] != ':' {
				return event.Event{}, &jsonError{pos: p.pos, msg: "expected ':'"}
			}
			p.pos++
			top.expectKey = false
			top.sawFirst = false
			return event.Event{Kind: event.FieldKey, Name: name, Pos: p.pos}, nil
		}
		top.sawFirst = true
	}

	return p.readValue()
}

func (p *parser) readValue() (event.Event, error) {
	p.skipWS()
	pos := p.pos
	if pos >= len(p.buf) {
		return event.Event{}, &jsonError{pos: pos, msg: "unexpected end of input"}
	}
	switch c := p.buf[pos]; {
	case c == '{':
		p.pos++
		p.stack = append(p.stack, containerFrame{isObject: true, expectKey: true})
		return event.Event{Kind: event.StructStart, SizeHint: -1, Pos: pos}, nil
	case c == '[':
		p.pos++
		p.stack = append(p.stack, containerFrame{isObject: false})
		return event.Event{Kind: event.SequenceStart, SizeHint: -1, Pos: pos}, nil
	case c == '"':
		s, err := p.readString()
		if err != nil {
			return event.Event{}, err
		}
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarStr, Str: s}, Pos: pos}, nil
	case c == 't':
		return p.readLiteral("true", event.ScalarValue{Tag: event.ScalarBool, Bool: true}, pos)
	case c == 'f':
		return p.readLiteral("false", event.ScalarValue{Tag: event.ScalarBool, Bool: false}, pos)
	case c == 'n':
		return p.readLiteral("null", event.ScalarValue{Tag: event.ScalarNull}, pos)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.readNumber(pos)
	default:
		return event.Event{}, &jsonError{pos: pos, msg: "unexpected character"}
	}
}

func (p *parser) readLiteral(lit string, val event.ScalarValue, pos int) (event.Event, error) {
	if p.pos+len(lit) > len(p.buf) || string(p.buf[p.pos:p.pos+len(lit)]) != lit {
		return event.Event{}, &jsonError{pos: pos, msg: "invalid literal"}
	}
	p.pos += len(lit)
	return event.Event{Kind: event.Scalar, Value: val, Pos: pos}, nil
}

func (p *parser) readNumber(start int) (event.Event, error) {
	pos := start
	isFloat := false
	if p.buf[pos] == '-' {
		pos++
	}
	for pos < len(p.buf) && p.buf[pos] >= '0' && p.buf[pos] <= '9' {
		pos++
	}
	if pos < len(p.buf) && p.buf[pos] == '.' {
		isFloat = true
		pos++
		for pos < len(p.buf) && p.buf[pos] >= '0' && p.buf[pos] <= '9' {
			pos++
		}
	}
	if pos < len(p.buf) && (p.buf[pos] == 'e' || p.buf[pos] == 'E') {
		isFloat = true
		pos++
		if pos < len(p.buf) && (p.buf[pos] == '+' || p.buf[pos] == '-') {
			pos++
		}
		for pos < len(p.buf) && p.buf[pos] >= '0' && p.buf[pos] <= '9' {
			pos++
		}
	}
	lit := string(p.buf[start:pos])
	p.pos = pos

	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return event.Event{}, &jsonError{pos: start, msg: "invalid number"}
		}
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarF64, F64: f}, Pos: start}, nil
	}
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarI64, I64: n}, Pos: start}, nil
	}
	if n, err := strconv.ParseUint(lit, 10, 64); err == nil {
		return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarU64, U64: n}, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return event.Event{}, &jsonError{pos: start, msg: "invalid number"}
	}
	return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarF64, F64: f}, Pos: start}, nil
}

func (p *parser) readString() (string, error) {
	if p.buf[p.pos] != '"' {
		return "", &jsonError{pos: p.pos, msg: "expected string"}
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.buf) {
		c := p.buf[p.pos]
		if c == '"' {
			s := string(p.buf[start:p.pos])
			p.pos++
			return s, nil
		}
		if c == '\\' {
			return p.readEscapedString(start)
		}
		p.pos++
	}
	return "", &jsonError{pos: p.pos, msg: "unterminated string"}
}

// readEscapedString is the slow path, entered only once a backslash is
// seen; it re-decodes from start with escape handling, including \uXXXX
// surrogate pairs.
func (p *parser) readEscapedString(start int) (string, error) {
	var out []byte
	out = append(out, p.buf[start:p.pos]...)
	for p.pos < len(p.buf) {
		c := p.buf[p.pos]
		if c == '"' {
			p.pos++
			return string(out), nil
		}
		if c != '\\' {
			r, size := utf8.DecodeRune(p.buf[p.pos:])
			out = utf8.AppendRune(out, r)
			p.pos += size
			continue
		}
		p.pos++
		if p.pos >= len(p.buf) {
			return "", &jsonError{pos: p.pos, msg: "unterminated escape"}
		}
		switch p.buf[p.pos] {
		case '"':
			out = append(out, '"')
		case '\\':
			out = append(out, '\\')
		case '/':
			out = append(out, '/')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'u':
			r, err := p.readHex4()
			if err != nil {
				return "", err
			}
			if utf16.IsSurrogate(r) && p.pos+2 < len(p.buf) && p.buf[p.pos+1] == '\\' && p.buf[p.pos+2] == 'u' {
				p.pos += 2
				r2, err := p.readHex4()
				if err != nil {
					return "", err
				}
				r = utf16.DecodeRune(r, r2)
				out = utf8.AppendRune(out, r)
				p.pos++
				continue
			}
			out = utf8.AppendRune(out, r)
			p.pos++
			continue
		default:
			return "", &jsonError{pos: p.pos, msg: "invalid escape"}
		}
		p.pos++
	}
	return "", &jsonError{pos: p.pos, msg: "unterminated string"}
}

func (p *parser) readHex4() (rune, error) {
	if p.pos+4 >= len(p.buf) {
		return 0, &jsonError{pos: p.pos, msg: "short \\u escape"}
	}
	n, err := strconv.ParseUint(string(p.buf[p.pos+1:p.pos+5]), 16, 32)
	if err != nil {
		return 0, &jsonError{pos: p.pos, msg: "invalid \\u escape"}
	}
	p.pos += 4
	return rune(n), nil
}

// SkipValue discards one full value: a scalar, or a matched bracket pair
// with everything inside it (spec §4.2, "skip unknown fields").
func (p *parser) SkipValue() error {
	ev, err := p.Next()
	if err != nil {
		return err
	}
	depth := 0
	switch ev.Kind {
	case event.StructStart, event.SequenceStart:
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
		case event.StructStart, event.SequenceStart:
			depth++
		case event.StructEnd, event.SequenceEnd:
			depth--
		}
	}
	return nil
}

type jsonError struct {
	pos int
	msg string
}

func (e *jsonError) Error() string { return fmt.Sprintf("json: %s at offset %d", e.msg, e.pos) }
