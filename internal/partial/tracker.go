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

// TrackKind is the tag of a [Tracker] (spec §3, "Tracker").
type TrackKind int

const (
	TrackUninit TrackKind = iota
	TrackInit
	TrackStruct
	TrackArray
	TrackEnum
	TrackOption
	TrackList
	TrackMap
	TrackSmartPointer
	TrackSmartPointerSlice
)

func (k TrackKind) String() string {
	names := [...]string{
		"Uninit", "Init", "Struct", "Array", "Enum", "Option", "List", "Map",
		"SmartPointer", "SmartPointerSlice",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Tracker(?)"
}

// MapSubstate is the KV insert sub-state-machine for Tracker.Kind == TrackMap.
type MapSubstate int

const (
	MapIdle MapSubstate = iota
	MapPushingKey
	MapPushingValue
)

// Tracker is the per-frame state machine from spec §3. Only the fields
// relevant to Kind are meaningful; this mirrors the Rust enum-with-payload
// as a tagged struct, which is the idiomatic Go rendering of a sum type
// that needs to stay cheap to copy.
type Tracker struct {
	Kind TrackKind

	// Struct / Array / Enum.
	Bitmask      uint64 // iset.ISet-equivalent; width <= 64 per spec.
	CurrentChild int    // -1 if no child frame is in progress.
	VariantIdx   int    // Enum: which variant was selected (-1 if none yet).

	// Option.
	BuildingInner bool

	// List.
	ListInitialized   bool
	HasPendingItem    bool

	// Map.
	MapInitialized bool
	InsertState    MapSubstate
	PendingKey     uintptrOrNil // valid when InsertState == MapPushingValue

	// SmartPointer.
	SmartInitialized bool

	// SmartPointerSlice.
	SliceVT         *SliceBuilderVTable
	SliceBuilding   bool
	SliceBuilderPtr uintptrOrNil
}

// uintptrOrNil avoids pulling unsafe.Pointer into every Tracker literal;
// it is converted at the point of use.
type uintptrOrNil = uintptr

// newIndexedTracker returns a TrackStruct/TrackArray/TrackEnum tracker with no
// bits set and no frame in progress.
func newIndexedTracker(kind TrackKind) Tracker {
	return Tracker{Kind: kind, CurrentChild: -1, VariantIdx: -1}
}

// IsSet reports whether bit i is set in the bitmask.
func (t *Tracker) IsSet(i int) bool { return t.Bitmask&(1<<uint(i)) != 0 }

// SetBit sets bit i in the bitmask.
func (t *Tracker) SetBit(i int) { t.Bitmask |= 1 << uint(i) }

// AllSet reports whether the low n bits are all set (spec testable
// property 4: required-field bitmask equals (1<<|F_required|)-1).
func (t *Tracker) AllSet(n int) bool {
	if n >= 64 {
		return t.Bitmask == ^uint64(0)
	}
	want := uint64(1)<<uint(n) - 1
	return t.Bitmask&want == want
}
