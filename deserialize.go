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

package shapeform

import (
	"github.com/shapeform/shapeform/internal/event"
	"github.com/shapeform/shapeform/internal/jit"
	"github.com/shapeform/shapeform/internal/jitfmt"
)

// Format is implemented by every wire format package (format/json,
// format/postcard). It produces the two collaborators each tier needs:
// an event.Parser for the interpreter tier, and (when the format supports
// it) a jitfmt.JitFormat for the compiled tier.
type Format interface {
	// NewParser returns a fresh event.Parser reading input.
	NewParser(input []byte) event.Parser
	// JitFormat returns this format's compiled-tier descriptor.
	JitFormat() jitfmt.JitFormat
}

// Deserialize parses input (in the wire format described by f) into a
// freshly allocated value of shape, returning it as a [HeapValue] (spec
// §4.2/§4.3, "External interfaces"). It tries the compiled tier first for
// shapes IsJITCompatible reports true for, and otherwise drives the
// interpreter tier directly; both tiers share one Partial and one
// DeserializeError code space, so callers cannot observe which tier ran
// except through WithEventTier's forced comparison.
func Deserialize(shape *Shape, f Format, input []byte, opts ...ParseOption) (HeapValue, error) {
	cfg := defaultParseConfig()
	for _, o := range opts {
		o(&cfg)
	}

	p, err := AllocShape(shape)
	if err != nil {
		return HeapValue{}, err
	}
	guard := NewGuard(p)
	defer guard.Close()

	parser := f.NewParser(input)

	if !cfg.forceEventTier && jit.IsJITCompatible(shape, f.JitFormat()) {
		err = jit.Run(p.inner, parser, shape, f.JitFormat())
	} else {
		err = event.DeserializeInto(p.inner, parser)
	}
	if err != nil {
		return HeapValue{}, wrapWalkError(err)
	}

	hv, err := p.Build()
	if err != nil {
		return HeapValue{}, err
	}
	guard.Disarm()
	return hv, nil
}

// DeserializeTyped is Deserialize for a compile-time-known T, returning *T
// directly instead of an untyped HeapValue.
func DeserializeTyped[T any](f Format, input []byte, opts ...ParseOption) (*T, error) {
	shape := ShapeOf[T]()
	hv, err := Deserialize(shape, f, input, opts...)
	if err != nil {
		return nil, err
	}
	return (*T)(hv.inner.Data), nil
}

// Compile eagerly builds and memoizes shape's compiled-tier Program under
// f, so the first real Deserialize call doesn't pay that cost. Programs
// are memoized process-wide regardless of whether Compile was called; this
// is purely a warm-up hook (spec §4.3, "External interfaces": "compile is
// idempotent and safe to call from multiple goroutines").
func Compile(shape *Shape, f Format, opts ...CompileOption) {
	cfg := compileConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.disableJIT {
		return
	}
	jit.ProgramFor(shape, f.JitFormat())
}

// IsJITCompatible reports whether shape has a compiled-tier Program under
// f that covers its own top-level field dispatch.
func IsJITCompatible(shape *Shape, f Format) bool {
	return jit.IsJITCompatible(shape, f.JitFormat())
}

// wrapWalkError maps an internal/event.WalkError's code space onto the
// public ErrorCode space (spec §7, "Propagation policy": one error type
// regardless of which tier produced it).
func wrapWalkError(err error) error {
	we, ok := err.(*event.WalkError)
	if !ok {
		return &DeserializeError{Code: ErrUnsupported, Cause: err}
	}
	var code ErrorCode
	switch we.Code {
	case event.ErrUnexpectedEOF:
		code = ErrUnexpectedEOF
	case event.ErrExpectedBool:
		code = ErrExpectedBool
	case event.ErrExpectedArrayStart:
		code = ErrExpectedArrayStart
	case event.ErrExpectedObjectStart:
		code = ErrExpectedObjectStart
	case event.ErrInvalidOptionDiscriminant:
		code = ErrInvalidOptionDiscriminant
	case event.ErrMissingRequiredField:
		code = ErrMissingRequiredField
	case event.ErrUnknownVariant:
		code = ErrUnknownVariant
	case event.ErrSchemaMismatch:
		code = ErrSchemaMismatch
	case event.ErrConversionFailed:
		code = ErrConversionFailed
	case event.ErrAllocationFailed:
		code = ErrAllocationFailed
	case event.ErrInvariantViolation:
		code = ErrInvariantViolation
	case event.ErrRecursionDepth:
		code = ErrRecursionDepth
	default:
		code = ErrUnsupported
	}
	return &DeserializeError{Code: code, Pos: we.Pos, Path: we.Path, Cause: we.Wrapped}
}
