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

import (
	"unsafe"

	"github.com/shapeform/shapeform/internal/debug"
)

// requireFullInit reports whether a frame's tracker indicates it is safe
// to pop: Init, or a container/composite whose substructure is consistent.
func (f *Frame) requireFullInit() error {
	switch f.Tracker.Kind {
	case TrackInit:
		return nil
	case TrackList, TrackMap, TrackSmartPointer:
		// CurrentChild is not meaningful for these kinds (only
		// newIndexedTracker, used for Struct/Array/Enum, ever sets it to
		// -1); List/Map track in-progress work via HasPendingItem and
		// InsertState instead.
		if f.Tracker.HasPendingItem || f.Tracker.InsertState != MapIdle {
			return &InvariantViolation{Operation: "end", State: "frame has work in progress"}
		}
		return nil
	case TrackSmartPointerSlice:
		if f.Tracker.SliceBuilding {
			return &InvariantViolation{Operation: "end", State: "still building an item, finish it first"}
		}
		return nil
	case TrackStruct, TrackArray, TrackEnum:
		// Struct-like frames are poppable mid-construction only when they
		// are themselves being popped as part of a larger End(); the
		// required-field check happens at the point where defaults are
		// applied (internal/event), not here. A Partial consumer may still
		// call End() on a partially-filled struct if all fields happen to
		// be set, to support out-of-order field probing.
		if f.Tracker.CurrentChild >= 0 {
			return &InvariantViolation{Operation: "end", State: "child frame still open"}
		}
		return nil
	default:
		return &InvariantViolation{Operation: "end", State: f.Tracker.Kind.String()}
	}
}

// End pops the top frame and applies the parent-specific move-in described
// by spec §4.1's "End() dispatch" table.
func (p *Partial) End() error {
	if err := p.requireActive(); err != nil {
		return err
	}

	// SmartPointerSlice living alone at the root converts to the final
	// smart-pointer-to-slice value in place (spec's slice_builder path).
	if len(p.Frames) == 1 {
		f := &p.Frames[0]
		if f.Tracker.Kind == TrackSmartPointerSlice {
			if f.Tracker.SliceBuilding {
				return &OperationFailed{Shape: f.Shape, Operation: "end", Reason: "still building an item, finish it first"}
			}
			builder := unsafe.Pointer(f.Tracker.SliceBuilderPtr)
			f.Shape.SmartVT.SliceBuilder.Build(builder, f.Data)
			f.Tracker = Tracker{Kind: TrackInit}
			f.Ownership = ManagedElsewhereFrame
			return nil
		}
	}

	if len(p.Frames) <= 1 {
		return &InvariantViolation{Operation: "end", State: "only one frame on the stack"}
	}

	top := p.top()
	if err := top.requireFullInit(); err != nil {
		return err
	}

	popped := p.Frames[len(p.Frames)-1]
	p.Frames = p.Frames[:len(p.Frames)-1]
	parent := p.top()

	debug.Log(nil, "end", "popped %v (%v), parent %v (%v)", popped.Shape, popped.Tracker.Kind, parent.Shape, parent.Tracker.Kind)

	switch {
	case parent.Tracker.Kind == TrackSmartPointerSlice && parent.Tracker.SliceBuilding:
		vt := parent.Tracker.SliceVT
		vt.Push(unsafe.Pointer(parent.Tracker.SliceBuilderPtr), popped.Data)
		freeTemp(&popped)
		parent.Tracker.SliceBuilding = false
		return nil

	case parent.Tracker.Kind == TrackStruct, parent.Tracker.Kind == TrackArray, parent.Tracker.Kind == TrackEnum:
		parent.Tracker.SetBit(parent.Tracker.CurrentChild)
		parent.Tracker.CurrentChild = -1
		// Popped frame's data is a sub-slice of parent's allocation: no
		// free, no move-in (spec's "Struct/Enum" End() case).
		return nil

	case parent.Tracker.Kind == TrackSmartPointer:
		parent.Shape.SmartVT.NewInto(parent.Data, popped.Data)
		freeTemp(&popped)
		parent.Tracker = Tracker{Kind: TrackInit}
		return p.maybeConvertStringToSmartPointerStr(parent, &popped)

	case parent.Tracker.Kind == TrackList && parent.Tracker.HasPendingItem:
		parent.Shape.ListVT.Push(parent.Data, popped.Data)
		freeTemp(&popped)
		parent.Tracker.HasPendingItem = false
		return nil

	case parent.Tracker.Kind == TrackMap && parent.Tracker.InsertState == MapPushingKey:
		parent.Tracker.PendingKey = uintptr(popped.Data)
		parent.Tracker.InsertState = MapPushingValue
		// Do not free: the key temp has no live frame until the value pops.
		return nil

	case parent.Tracker.Kind == TrackMap && parent.Tracker.InsertState == MapPushingValue:
		keyPtr := unsafe.Pointer(parent.Tracker.PendingKey)
		parent.Shape.MapVT.Insert(parent.Data, keyPtr, popped.Data)
		freeTempPtr(keyPtr)
		freeTemp(&popped)
		parent.Tracker.InsertState = MapIdle
		parent.Tracker.PendingKey = 0
		return nil

	case parent.Tracker.Kind == TrackOption && parent.Tracker.BuildingInner:
		parent.Shape.OptVT.InitSome(parent.Data, popped.Data)
		freeTemp(&popped)
		parent.Tracker = Tracker{Kind: TrackInit}
		return nil

	case parent.Tracker.Kind == TrackUninit && parent.Shape.Inner != nil && parent.Shape.Inner == popped.Shape && parent.Shape.VT.TryFrom != nil:
		err := parent.Shape.VT.TryFrom(popped.Data, parent.Data)
		freeTemp(&popped)
		if err != nil {
			return &TryFromError{From: popped.Shape, To: parent.Shape, Cause: err}
		}
		parent.Tracker = Tracker{Kind: TrackInit}
		return nil

	default:
		// No applicable transition: treat the popped value as simply
		// discarded after being fully built (e.g. a caller manually pushed
		// and popped a frame the state machine doesn't otherwise track).
		// This should not happen in well-formed callers; surface it as a
		// bug rather than silently leaking.
		freeTemp(&popped)
		return &InvariantViolation{Operation: "end", State: "no parent transition for " + parent.Tracker.Kind.String()}
	}
}

// maybeConvertStringToSmartPointerStr implements spec invariant 6 / the
// "Smart-pointer-to-str" End() case: when a Box/Rc/Arc<str> pointee was
// built via an intermediate String frame, this converts it in place.
//
// In this Go rendering the pointee shape IS string (Go has no separate str
// vs String distinction), so NewInto has already performed the conversion;
// this hook exists so format-specific Shape constructors that do model a
// Rust-style str/String split can still plug in a conversion step.
func (p *Partial) maybeConvertStringToSmartPointerStr(parent *Frame, popped *Frame) error {
	return nil
}

func freeTemp(f *Frame) {
	if f.Ownership == OwnedFrame {
		// Go has no manual free; dropping the last reference lets the GC
		// reclaim it. We still run DropInPlace first for shapes whose
		// destructor has externally visible side effects.
		if f.Shape.VT.DropInPlace != nil {
			f.Shape.VT.DropInPlace(f.Data)
		}
	}
}

func freeTempPtr(p unsafe.Pointer) {
	// Same reasoning as freeTemp: nothing to do beyond letting go of the
	// reference, which the caller does implicitly by not retaining p.
	_ = p
}
