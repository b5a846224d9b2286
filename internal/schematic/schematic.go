package schematic

import (
	"encoding/base64"
	"fmt"
)

// #region materials

// Material identifiers assigned by the segmentation model.
const (
	MatVacuum         uint8 = 0
	MatSilicon        uint8 = 1
	MatSiliconDioxide uint8 = 2
	MatPolysilicon    uint8 = 3
	MatPhotoresist    uint8 = 4
	MatAluminum       uint8 = 5
	MatCopper         uint8 = 6
	MatSiliconNitride uint8 = 7
)

var materialNames = map[uint8]string{
	MatVacuum:         "vacuum",
	MatSilicon:        "silicon",
	MatSiliconDioxide: "silicon_dioxide",
	MatPolysilicon:    "polysilicon",
	MatPhotoresist:    "photoresist",
	MatAluminum:       "aluminum",
	MatCopper:         "copper",
	MatSiliconNitride: "silicon_nitride",
}

var materialIDs = func() map[string]uint8 {
	m := make(map[string]uint8, len(materialNames))
	for id, name := range materialNames {
		m[name] = id
	}
	return m
}()

// MaterialName returns the registry name for id, or "unknown".
func MaterialName(id uint8) string {
	if name, ok := materialNames[id]; ok {
		return name
	}
	return "unknown"
}

// MaterialID resolves a registry name to its identifier.
func MaterialID(name string) (uint8, bool) {
	id, ok := materialIDs[name]
	return id, ok
}

// #endregion materials

// #region material-map

// MaterialMap is a 2-D grid of material identifiers, one per resolution cell.
// Cells are stored row-major. Maps are immutable once produced by segmentation.
type MaterialMap struct {
	Width  int
	Height int
	Cells  []uint8
}

// NewMaterialMap allocates a zero-filled (vacuum) map.
func NewMaterialMap(width, height int) (*MaterialMap, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid map dimensions %dx%d", width, height)
	}
	return &MaterialMap{
		Width:  width,
		Height: height,
		Cells:  make([]uint8, width*height),
	}, nil
}

// FromRows builds a map from row slices. All rows must share one length.
func FromRows(rows [][]uint8) (*MaterialMap, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("empty row data")
	}
	width := len(rows[0])
	m := &MaterialMap{
		Width:  width,
		Height: len(rows),
		Cells:  make([]uint8, 0, width*len(rows)),
	}
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has length %d, want %d", y, len(row), width)
		}
		m.Cells = append(m.Cells, row...)
	}
	return m, nil
}

// At returns the material id at (x, y). Callers must stay in bounds.
func (m *MaterialMap) At(x, y int) uint8 {
	return m.Cells[y*m.Width+x]
}

// Set writes the material id at (x, y). Only map producers may call this;
// consumers treat maps as read-only.
func (m *MaterialMap) Set(x, y int, id uint8) {
	m.Cells[y*m.Width+x] = id
}

// SameDimensions reports whether two maps share a grid.
func (m *MaterialMap) SameDimensions(other *MaterialMap) bool {
	return m.Width == other.Width && m.Height == other.Height
}

// #endregion material-map

// #region wire-encoding

// EncodeCells serializes the cell grid for transport to/from the sidecar.
func (m *MaterialMap) EncodeCells() string {
	return base64.StdEncoding.EncodeToString(m.Cells)
}

// DecodeCells rebuilds a map from transport form.
func DecodeCells(width, height int, b64 string) (*MaterialMap, error) {
	cells, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode cells: %w", err)
	}
	if len(cells) != width*height {
		return nil, fmt.Errorf("cell count %d does not match %dx%d", len(cells), width, height)
	}
	return &MaterialMap{Width: width, Height: height, Cells: cells}, nil
}

// #endregion wire-encoding
