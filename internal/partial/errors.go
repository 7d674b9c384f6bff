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

package partial

import "fmt"

// OperationFailed is returned by an operation that tried to allocate and
// couldn't, or otherwise hit an unrecoverable resource condition (spec
// §4.1, "Failure semantics").
type OperationFailed struct {
	Shape     *ShapeDescriptor
	Operation string
	Reason    string
}

func (e *OperationFailed) Error() string {
	return fmt.Sprintf("partial: %s failed on %v: %s", e.Operation, e.Shape, e.Reason)
}

// InvariantViolation is returned when an operation is invoked in a tracker
// state that does not support it, without mutating any state.
type InvariantViolation struct {
	Operation string
	State     string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("partial: %s is invalid in state %s", e.Operation, e.State)
}

// TryFromError wraps a failed inner-to-outer conversion.
type TryFromError struct {
	From, To *ShapeDescriptor
	Cause    error
}

func (e *TryFromError) Error() string {
	return fmt.Sprintf("partial: conversion from %v to %v failed: %v", e.From, e.To, e.Cause)
}

func (e *TryFromError) Unwrap() error { return e.Cause }

// InvariantsFailed is returned by Build() when a shape's Invariants vtable
// entry returns false.
type InvariantsFailed struct {
	Shape *ShapeDescriptor
}

func (e *InvariantsFailed) Error() string {
	return fmt.Sprintf("partial: invariants failed for %v", e.Shape)
}
