package lipo

import "time"

// Reading is a copy of the values from the last update.
type Reading struct {
	Time      time.Time `json:"time"`
	Cells     []uint32  `json:"cells"`
	Absolute  []uint32  `json:"absolute"`
	NumCells  int       `json:"num_cells"`
	MinCell   uint32    `json:"min_cell"`
	Reference uint32    `json:"reference"`
	Samples   uint32    `json:"samples"`
}

// Pack returns the voltage of the whole pack in mV, 0 if the chain is broken.
func (r Reading) Pack() uint32 {
	if r.NumCells <= 0 || r.NumCells > len(r.Absolute) {
		return 0
	}
	return r.Absolute[r.NumCells-1]
}

// Snapshot reads all values of the last update. It does not change the
// monitor.
func (m *Monitor) Snapshot() Reading {
	abs := make([]uint32, m.channels)
	for i := range abs {
		abs[i] = m.Cell(i, true)
	}
	return Reading{
		Time:      time.Now(),
		Cells:     m.Cells(),
		Absolute:  abs,
		NumCells:  m.NumCells(),
		MinCell:   m.MinCell(),
		Reference: m.vref,
		Samples:   m.Samples(),
	}
}
