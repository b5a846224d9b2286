package diff

import (
	"errors"
	"fmt"
	"log"

	"fabflow/internal/schematic"
)

// #region types

// ChangeType classifies whether material appeared or disappeared.
type ChangeType string

const (
	Addition ChangeType = "addition"
	Removal  ChangeType = "removal"
)

// Profile is a coarse shape classifier derived from a region's aspect ratio.
type Profile string

const (
	ProfileConformal   Profile = "conformal"
	ProfilePlanar      Profile = "planar"
	ProfileAnisotropic Profile = "anisotropic"
	ProfileIsotropic   Profile = "isotropic"
	ProfileUnknown     Profile = "unknown"
)

// Bounds is the axis-aligned bounding box of a region, in grid cells.
type Bounds struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Change describes one connected region of material difference between two
// material maps. Thickness and Width derive from the bounding box.
type Change struct {
	Type      ChangeType
	Material  uint8
	Area      int
	Bounds    Bounds
	Thickness int
	Width     int
	Profile   Profile
}

// Config tunes extraction behavior.
type Config struct {
	// MinArea is the noise floor: regions smaller than this are discarded.
	MinArea int
}

// DefaultConfig returns the standard extraction tunables.
func DefaultConfig() Config {
	return Config{MinArea: 10}
}

// ErrDimensionMismatch is returned when the two maps disagree on grid size.
var ErrDimensionMismatch = errors.New("material maps have mismatched dimensions")

// #endregion types

// #region extract

// Extract compares two material maps and returns the connected change regions
// between them, in deterministic scan order (left-to-right, top-to-bottom by
// first cell). Each cell is classified from its (before, after) material pair
// rather than an arithmetic delta, so material replacements are unambiguous:
// a cell becoming vacuum is a removal of the prior material, any other change
// is an addition of the new material.
func Extract(before, after *schematic.MaterialMap, cfg Config) ([]Change, error) {
	if !before.SameDimensions(after) {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch,
			before.Width, before.Height, after.Width, after.Height)
	}

	w, h := before.Width, before.Height
	visited := make([]bool, w*h)
	var changes []Change

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if visited[idx] {
				continue
			}
			kind, material, changed := classifyCell(before.Cells[idx], after.Cells[idx])
			if !changed {
				visited[idx] = true
				continue
			}
			region := floodFill(before, after, visited, x, y, kind, material)
			if region.area < cfg.MinArea {
				continue
			}
			changes = append(changes, region.toChange(kind, material))
		}
	}

	log.Printf("[PERC] extracted %d change regions (min area %d)", len(changes), cfg.MinArea)
	return changes, nil
}

// classifyCell decides the change kind and subject material for one cell.
// Replacements (non-vacuum to different non-vacuum) count as additions of the
// new material.
func classifyCell(beforeID, afterID uint8) (ChangeType, uint8, bool) {
	if beforeID == afterID {
		return "", 0, false
	}
	if afterID == schematic.MatVacuum {
		return Removal, beforeID, true
	}
	return Addition, afterID, true
}

// #endregion extract

// #region region

type region struct {
	area                   int
	minX, minY, maxX, maxY int
}

func (r region) toChange(kind ChangeType, material uint8) Change {
	b := Bounds{
		X:      r.minX,
		Y:      r.minY,
		Width:  r.maxX - r.minX + 1,
		Height: r.maxY - r.minY + 1,
	}
	return Change{
		Type:      kind,
		Material:  material,
		Area:      r.area,
		Bounds:    b,
		Thickness: b.Height,
		Width:     b.Width,
		Profile:   classifyProfile(kind, b),
	}
}

// floodFill grows a 4-connected region of cells sharing one change kind and
// subject material, marking them visited.
func floodFill(before, after *schematic.MaterialMap, visited []bool, startX, startY int, kind ChangeType, material uint8) region {
	w, h := before.Width, before.Height
	r := region{minX: startX, minY: startY, maxX: startX, maxY: startY}

	queue := []int{startY*w + startX}
	visited[startY*w+startX] = true

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		x, y := idx%w, idx/w

		r.area++
		if x < r.minX {
			r.minX = x
		}
		if x > r.maxX {
			r.maxX = x
		}
		if y < r.minY {
			r.minY = y
		}
		if y > r.maxY {
			r.maxY = y
		}

		for _, d := range [4][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}} {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			nidx := ny*w + nx
			if visited[nidx] {
				continue
			}
			nKind, nMaterial, changed := classifyCell(before.Cells[nidx], after.Cells[nidx])
			if !changed || nKind != kind || nMaterial != material {
				continue
			}
			visited[nidx] = true
			queue = append(queue, nidx)
		}
	}

	return r
}

// #endregion region

// #region profile

// classifyProfile maps a region's aspect ratio to a shape profile.
// Boundary values fall to the broader class (isotropic / planar).
func classifyProfile(kind ChangeType, b Bounds) Profile {
	aspect := float64(b.Width) / float64(b.Height)
	switch kind {
	case Removal:
		if aspect < 0.5 {
			return ProfileAnisotropic
		}
		return ProfileIsotropic
	case Addition:
		if aspect > 5 {
			return ProfileConformal
		}
		return ProfilePlanar
	}
	return ProfileUnknown
}

// #endregion profile
