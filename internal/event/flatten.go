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

package event

import "github.com/shapeform/shapeform/internal/partial"

// tryFlattenKey resolves a field key that did not match the struct's own
// FieldLookup against its Flatten-attributed fields, recursively (a
// flattened struct may itself have flattened fields), treating each
// candidate segment's own field namespace as if it were merged into the
// parent's (spec §4.2, "Flatten").
//
// Each flattened segment is opened (begin_field) and closed (end) around
// the single matching key rather than held open across the whole parent
// struct: Partial's stack only has one active child at a time, so reusing
// an already-open segment across non-adjacent keys would require a
// multi-frame "currently open segments" stack of its own. Reopening per key
// costs one extra begin/end pair per flattened key and is otherwise
// observably identical, since a flattened segment's own Tracker state
// (which of its fields are set) survives across the reopen/close because it
// lives in the field's own sub-allocation, not in the transient Frame.
func (w *walker) tryFlattenKey(p *partial.Partial, fields []partial.FieldDescriptor, flattenIdx []int, key string) (bool, error) {
	for _, fi := range flattenIdx {
		fd := fields[fi]
		if fd.Shape == nil {
			continue
		}
		subPlan := PlanFor(fd.Shape)
		if subIdx, ok := subPlan.FieldLookup[key]; ok {
			if err := p.BeginNthField(fi); err != nil {
				return false, w.wrap(err)
			}
			if err := w.deserializeNamedFieldIdx(p, subIdx, fd.Shape.Fields[subIdx]); err != nil {
				return false, err
			}
			return true, w.wrap(p.End())
		}

		var nestedFlatten []int
		for j, sub := range fd.Shape.Fields {
			if sub.Shape != nil && sub.Shape.Flatten {
				nestedFlatten = append(nestedFlatten, j)
			}
		}
		if len(nestedFlatten) == 0 {
			continue
		}
		if err := p.BeginNthField(fi); err != nil {
			return false, w.wrap(err)
		}
		handled, err := w.tryFlattenKey(p, fd.Shape.Fields, nestedFlatten, key)
		if err != nil {
			return false, err
		}
		if err := p.End(); err != nil {
			return false, w.wrap(err)
		}
		if handled {
			return true, nil
		}
	}
	return false, nil
}

// finalizeFlatten applies end-of-struct defaulting to every flattened
// segment's own fields, recursively, after the parent struct has consumed
// all of its keys. This runs once per flatten field regardless of how many
// times tryFlattenKey reopened it, since Tracker bits live in the field's
// own sub-allocation and persist across reopen/close (see tryFlattenKey's
// doc comment).
func (w *walker) finalizeFlatten(p *partial.Partial, fields []partial.FieldDescriptor, flattenIdx []int) error {
	for _, fi := range flattenIdx {
		fd := fields[fi]
		if fd.Shape == nil {
			continue
		}
		if err := p.BeginNthField(fi); err != nil {
			return w.wrap(err)
		}
		subPlan := PlanFor(fd.Shape)
		if err := w.applyDefaults(p, fd.Shape.Fields, subPlan); err != nil {
			return err
		}
		var nestedFlatten []int
		for j, sub := range fd.Shape.Fields {
			if sub.Shape != nil && sub.Shape.Flatten {
				nestedFlatten = append(nestedFlatten, j)
			}
		}
		if len(nestedFlatten) > 0 {
			if err := w.finalizeFlatten(p, fd.Shape.Fields, nestedFlatten); err != nil {
				return err
			}
		}
		if err := p.End(); err != nil {
			return w.wrap(err)
		}
	}
	return nil
}
