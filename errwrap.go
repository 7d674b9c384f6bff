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

import "github.com/shapeform/shapeform/internal/partial"

// WrapPartialError classifies an error returned by a Partial operation into
// a [DeserializeError] carrying the closed [ErrorCode] space, attaching pos
// and path (spec §7, "Propagation policy": every tier funnels errors through
// the same code space before they reach the caller).
//
// It is for callers driving a Partial by hand, so that a malformed-input
// failure and a builder-misuse failure both surface through one error type,
// distinguished by Code.Kind(). Nothing in this module calls it: the tiers
// wrap Partial errors in internal/event's own WalkError, and [Deserialize]
// converts those through wrapWalkError.
func WrapPartialError(err error, pos int, path string) error {
	if err == nil {
		return nil
	}
	code := ErrUnsupported
	switch err.(type) {
	case *partial.OperationFailed:
		code = ErrAllocationFailed
	case *partial.InvariantViolation:
		code = ErrInvariantViolation
	case *partial.TryFromError:
		code = ErrConversionFailed
	case *partial.InvariantsFailed:
		code = ErrInvariantViolation
	case *MissingFieldError:
		code = ErrMissingRequiredField
	}
	return &DeserializeError{Code: code, Pos: pos, Path: path, Cause: err}
}
