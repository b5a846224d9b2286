package planner

import (
	"sort"

	"fabflow/internal/schematic"
)

// #region wafer-state

// WaferState is the accumulated record of materials present on the wafer and
// its size constraint. It is owned by the flow controller and mutated once
// per successfully completed step; the material set never shrinks.
type WaferState struct {
	Size      int
	Materials map[uint8]bool
}

// NewWaferState creates a wafer of the given size with initial materials.
func NewWaferState(size int, materials ...uint8) *WaferState {
	w := &WaferState{
		Size:      size,
		Materials: make(map[uint8]bool, len(materials)),
	}
	for _, m := range materials {
		w.Materials[m] = true
	}
	return w
}

// DefaultWaferState returns a bare 300 mm silicon wafer.
func DefaultWaferState() *WaferState {
	return NewWaferState(300, schematic.MatSilicon)
}

// AddMaterial unions a material into the present set.
func (w *WaferState) AddMaterial(id uint8) {
	w.Materials[id] = true
}

// Has reports whether a material is present.
func (w *WaferState) Has(id uint8) bool {
	return w.Materials[id]
}

// MaterialList returns the present materials in ascending id order, so store
// queries built from it are deterministic.
func (w *WaferState) MaterialList() []uint8 {
	ids := make([]uint8, 0, len(w.Materials))
	for id := range w.Materials {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// #endregion wafer-state
