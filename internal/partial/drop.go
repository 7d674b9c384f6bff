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

import "unsafe"

// Drop walks the frame stack top-to-bottom and, for each Init field or
// element, calls DropInPlace on the corresponding slot (spec §4.1,
// "Drop"). It must be robust to every tracker state, including Map's
// PushingValue (whose finished key lives in Tracker.PendingKey, not in a
// live frame).
//
// Call Drop on any Partial that will not be Build()'able — e.g. after an
// error partway through deserialization (spec §7, "the output slot is
// never left in a half-valid state").
func (p *Partial) Drop() {
	if p.Built || p.Poisoned {
		return
	}
	for i := len(p.Frames) - 1; i >= 0; i-- {
		f := &p.Frames[i]
		dropFrameContents(f)
		if f.Ownership == OwnedFrame && i != 0 {
			// Non-root owned temporaries: their own DropInPlace already
			// ran via dropFrameContents (it treats the whole frame as
			// Init-equivalent garbage to reclaim); nothing further to do
			// since Go's GC reclaims the backing memory once unreferenced.
		}
	}
	p.Poisoned = true
}

// dropFrameContents drops whichever of a frame's sub-slots are marked
// Init, per its tracker kind; a frame whose own tracker is TrackInit has
// its whole value dropped here instead.
func dropFrameContents(f *Frame) {
	switch f.Tracker.Kind {
	case TrackStruct, TrackEnum:
		fields, _ := fieldsForTracker(f)
		for i, fd := range fields {
			if f.Tracker.IsSet(i) && fd.Shape.VT.DropInPlace != nil {
				fd.Shape.VT.DropInPlace(fieldPointer(f.Data, fd.Offset))
			}
		}
	case TrackArray:
		elemShape := f.Shape.Elem
		if elemShape.VT.DropInPlace != nil {
			for i := 0; i < f.Shape.ArrLen; i++ {
				if f.Tracker.IsSet(i) {
					elemShape.VT.DropInPlace(fieldPointer(f.Data, uintptr(i)*elemShape.Size))
				}
			}
		}
	case TrackMap:
		if f.Tracker.InsertState == MapPushingKey && f.Tracker.PendingKey != 0 {
			// No pending key is stashed in this substate (key lives in a
			// live child frame, handled by the caller's stack walk).
		}
		if f.Tracker.InsertState == MapPushingValue && f.Tracker.PendingKey != 0 {
			if f.Shape.Key.VT.DropInPlace != nil {
				f.Shape.Key.VT.DropInPlace(unsafe.Pointer(f.Tracker.PendingKey))
			}
		}
		if f.Tracker.MapInitialized && f.Shape.MapVT.Len != nil {
			// The map's own elements are owned by the underlying Go map
			// value and will be collected along with it; nothing to do.
			_ = f.Shape.MapVT.Len(f.Data)
		}
	case TrackInit:
		if f.Shape.VT.DropInPlace != nil {
			f.Shape.VT.DropInPlace(f.Data)
		}
	default:
		// Uninit, List, Option, SmartPointer(Slice): nothing written yet,
		// or the underlying Go value (slice/pointer/interface) will be
		// reclaimed by the GC once this Partial is dropped, matching
		// "Uninit slots are skipped" (spec invariant 3).
	}
}

func fieldsForTracker(f *Frame) ([]FieldDescriptor, bool) {
	if f.Tracker.Kind == TrackEnum {
		if f.Tracker.VariantIdx < 0 {
			return nil, true
		}
		return f.Shape.Variants[f.Tracker.VariantIdx].Fields, true
	}
	return f.Shape.Fields, false
}
