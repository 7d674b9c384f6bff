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

package fixtures

import (
	"fmt"

	"github.com/shapeform/shapeform/internal/event"
)

// ScriptedParser is a hand-scripted [event.Parser] that replays a fixed
// Event slice, for tests that drive internal/event's walker (or
// internal/jit's compiled Program) without going through a real format
// package's tokenizer.
type ScriptedParser struct {
	Events   []event.Event
	pos      int
	Variants []event.EnumVariantHint // captured from the last HintEnum call
}

func NewScriptedParser(events ...event.Event) *ScriptedParser {
	return &ScriptedParser{Events: events}
}

func (s *ScriptedParser) Peek() (event.Event, error) {
	if s.pos >= len(s.Events) {
		return event.Event{}, fmt.Errorf("scripted parser: out of events")
	}
	return s.Events[s.pos], nil
}

func (s *ScriptedParser) Next() (event.Event, error) {
	ev, err := s.Peek()
	if err != nil {
		return ev, err
	}
	s.pos++
	return ev, nil
}

// SkipValue discards one scalar, or a matched Start/End pair and everything
// nested inside it, mirroring what a real tokenizer's skip does.
func (s *ScriptedParser) SkipValue() error {
	ev, err := s.Next()
	if err != nil {
		return err
	}
	switch ev.Kind {
	case event.Scalar:
		return nil
	case event.StructStart, event.SequenceStart:
		depth := 1
		for depth > 0 {
			next, err := s.Next()
			if err != nil {
				return err
			}
			switch next.Kind {
			case event.StructStart, event.SequenceStart:
				depth++
			case event.StructEnd, event.SequenceEnd:
				depth--
			}
		}
		return nil
	default:
		return fmt.Errorf("scripted parser: cannot skip %v", ev.Kind)
	}
}

func (s *ScriptedParser) HintEnum(variants []event.EnumVariantHint) { s.Variants = variants }
func (s *ScriptedParser) IsNonSelfDescribing() bool                 { return false }
func (s *ScriptedParser) SolveVariant([]event.EnumVariantHint) (int, bool) {
	return 0, false
}
func (s *ScriptedParser) Pos() int { return s.pos }

// Str builds a Scalar event carrying a string.
func Str(s string) event.Event { return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarStr, Str: s}} }

// I64 builds a Scalar event carrying a signed integer.
func I64(v int64) event.Event { return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarI64, I64: v}} }

// Bool builds a Scalar event carrying a boolean.
func Bool(v bool) event.Event { return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarBool, Bool: v}} }

// Null builds a Scalar event representing JSON null / a None option.
func Null() event.Event { return event.Event{Kind: event.Scalar, Value: event.ScalarValue{Tag: event.ScalarNull}} }

// Key builds a FieldKey event.
func Key(name string) event.Event { return event.Event{Kind: event.FieldKey, Name: name} }

func StructStart(sizeHint int) event.Event { return event.Event{Kind: event.StructStart, SizeHint: sizeHint} }
func StructEnd() event.Event               { return event.Event{Kind: event.StructEnd} }
func SeqStart(sizeHint int) event.Event    { return event.Event{Kind: event.SequenceStart, SizeHint: sizeHint} }
func SeqEnd() event.Event                  { return event.Event{Kind: event.SequenceEnd} }
