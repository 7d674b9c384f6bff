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

import (
	"sync"

	"github.com/shapeform/shapeform/internal/partial"
)

// ShapePlan is a per-shape cache of the lookups the walker would otherwise
// redo on every single value of that shape: field name -> index, variant
// name/alias -> index, and the index of the #[other] fallback variant, if
// any (spec §4.2, "ShapePlan"). It is computed once per shape and memoized
// in planCache, the interpreter-tier analogue of internal/jit's memoized
// Programs (ProgramFor).
type ShapePlan struct {
	Shape *partial.ShapeDescriptor

	// FieldLookup maps a field's wire name (after rename/alias) to its
	// struct index.
	FieldLookup map[string]int

	// VariantLookup maps a variant's wire name (after rename/alias) to its
	// index, for externally/internally/adjacently tagged and untagged
	// string-keyed dispatch.
	VariantLookup map[string]int

	// OtherVariantIdx is the index of the #[other] fallback variant, or -1.
	OtherVariantIdx int

	// RequiredMask has one bit set per struct field that has neither
	// Default nor Skip. The end-of-struct defaulting pass does not read it:
	// it decides per field from Attrs and the Option shape, so an Option
	// field with its bit set is still defaulted to None when absent.
	RequiredMask uint64
}

var (
	planCacheMu sync.RWMutex
	planCache   = map[*partial.ShapeDescriptor]*ShapePlan{}
)

// PlanFor returns the memoized ShapePlan for shape, building it on first
// use. Safe for concurrent use by multiple goroutines deserializing
// different inputs against the same registered shape.
func PlanFor(shape *partial.ShapeDescriptor) *ShapePlan {
	planCacheMu.RLock()
	plan, ok := planCache[shape]
	planCacheMu.RUnlock()
	if ok {
		return plan
	}

	plan = buildPlan(shape)

	planCacheMu.Lock()
	planCache[shape] = plan
	planCacheMu.Unlock()
	return plan
}

func buildPlan(shape *partial.ShapeDescriptor) *ShapePlan {
	plan := &ShapePlan{
		Shape:           shape,
		FieldLookup:     make(map[string]int, len(shape.Fields)),
		VariantLookup:   make(map[string]int, len(shape.Variants)),
		OtherVariantIdx: -1,
	}

	for i, f := range shape.Fields {
		wireName := f.Name
		if f.Attrs.Rename != "" {
			wireName = f.Attrs.Rename
		}
		plan.FieldLookup[wireName] = i
		for _, alias := range f.Attrs.Aliases {
			plan.FieldLookup[alias] = i
		}
		if !f.Attrs.Default && !f.Attrs.Skip {
			plan.RequiredMask |= 1 << uint(i)
		}
	}

	for i, v := range shape.Variants {
		plan.VariantLookup[v.Name] = i
		if i < len(shape.Fields) {
			// Variants don't share FieldDescriptor.Attrs with the enum
			// shape itself; #[other] is detected via the enum's own
			// Attrs.OtherVariant, set below.
			_ = v
		}
	}
	if shape.Attrs.OtherVariant >= 0 && shape.Attrs.OtherVariant < len(shape.Variants) {
		plan.OtherVariantIdx = shape.Attrs.OtherVariant
	}

	return plan
}
