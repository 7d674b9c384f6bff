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
	"fmt"
)

// ErrorCode is the closed, stable error code space shared between the
// event-tier and JIT-tier deserializers (spec §6, "Error code space"). Both
// tiers return an *event.WalkError carrying one of these codes, and
// [Deserialize] maps it into a [DeserializeError].
type ErrorCode int32

const (
	ErrOK ErrorCode = iota
	ErrUnexpectedEOF
	ErrExpectedBool
	ErrExpectedArrayStart
	ErrExpectedObjectStart
	ErrExpectedColon
	ErrExpectedCommaOrEnd
	ErrExpectedCommaOrBrace
	ErrInvalidOptionDiscriminant
	ErrUnsupported
	ErrMissingRequiredField
	ErrInvalidUTF8
	ErrInvalidNumber
	ErrUnknownVariant
	ErrSchemaMismatch
	ErrConversionFailed
	ErrAllocationFailed
	ErrInvariantViolation
	ErrRecursionDepth
)

func (c ErrorCode) String() string {
	names := [...]string{
		"ok", "unexpected eof", "expected bool", "expected array start",
		"expected object start", "expected colon", "expected comma or end",
		"expected comma or brace", "invalid option discriminant", "unsupported",
		"missing required field", "invalid utf-8", "invalid number",
		"unknown variant", "schema mismatch", "conversion failed",
		"allocation failed", "invariant violation", "recursion depth exceeded",
	}
	if int(c) >= 0 && int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("error(%d)", int(c))
}

// ErrorKind groups ErrorCodes into the closed kinds from spec §7.
type ErrorKind int

const (
	KindFormatSyntax ErrorKind = iota
	KindSchemaMismatch
	KindMissingField
	KindConversion
	KindResource
	KindInvariant
)

func (c ErrorCode) Kind() ErrorKind {
	switch c {
	case ErrMissingRequiredField:
		return KindMissingField
	case ErrConversionFailed:
		return KindConversion
	case ErrAllocationFailed:
		return KindResource
	case ErrInvariantViolation, ErrRecursionDepth:
		return KindInvariant
	case ErrUnknownVariant, ErrSchemaMismatch:
		return KindSchemaMismatch
	default:
		return KindFormatSyntax
	}
}

// DeserializeError is the error surfaced to callers of [Deserialize],
// regardless of which tier produced it (spec §7, "Propagation policy").
//
// Neither tier sets WalkError.Path, so a DeserializeError returned by
// [Deserialize] has an empty Path and is located by Pos; [WrapPartialError]
// sets Path from its own argument.
type DeserializeError struct {
	Code ErrorCode
	// Pos is the byte offset into the input at which the error occurred.
	Pos int
	// Path is a dotted/bracketed description of the field being built, e.g.
	// `Person.addresses[2].zip`.
	Path string
	// Cause, if present, is a wrapped lower-level error (e.g. a TryFrom
	// conversion error).
	Cause error
}

func (e *DeserializeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("shapeform: at %s (offset %d): %v", e.Path, e.Pos, e.Code)
	}
	return fmt.Sprintf("shapeform: offset %d: %v", e.Pos, e.Code)
}

func (e *DeserializeError) Unwrap() error {
	return e.Cause
}

// OperationFailed is returned by Partial operations invoked against an
// allocator that failed, or any other resource-exhaustion condition (spec
// §4.1, "Failure semantics").
type OperationFailed struct {
	Shape     *Shape
	Operation string
	Reason    string
}

func (e *OperationFailed) Error() string {
	return fmt.Sprintf("shapeform: %s failed on %v: %s", e.Operation, e.Shape, e.Reason)
}

// InvariantViolation is returned when a Partial operation is invoked in a
// tracker state that does not support it. This always indicates a bug in
// the caller (an event deserializer or hand-written code), never a
// malformed input.
type InvariantViolation struct {
	Operation string
	State     string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("shapeform: invariant violation: %s is not valid in state %s", e.Operation, e.State)
}

// TryFromError wraps a failed inner-to-outer conversion (Partial's
// "Implicit conversion" End() case).
type TryFromError struct {
	From, To *Shape
	Cause    error
}

func (e *TryFromError) Error() string {
	return fmt.Sprintf("shapeform: conversion from %v to %v failed: %v", e.From, e.To, e.Cause)
}

func (e *TryFromError) Unwrap() error { return e.Cause }

// MissingFieldError is returned when a required field was never set by the
// time its enclosing struct/variant finished (spec §4.2, "Defaults").
type MissingFieldError struct {
	Shape *Shape
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("shapeform: missing required field %s.%s", e.Shape, e.Field)
}
