package adc

import (
	"sync"

	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
)

// simulatedSupply is the ADC supply, and so full scale, of the simulated
// board in mV.
const simulatedSupply = 3300

// Simulated is a pack wired to an ideal ADC. The codes are what the dividers
// described by the calibration scales would give. Channels above the last
// cell read 0 like a disconnected tap pulled down by its divider.
type Simulated struct {
	mu        sync.Mutex
	cells     []uint32
	scales    []uint32
	start     int
	scaleBits uint
	fullScale uint32
	reference uint32
	supply    uint32
}

func NewSimulated(cells []uint32, conf lipo.Config, params *lipo.Params) *Simulated {
	s := &Simulated{
		cells:     append([]uint32(nil), cells...),
		start:     conf.StartChannel,
		scaleBits: conf.ScaleBits,
		fullScale: conf.FullScale(),
		reference: conf.ReferenceMillivolts,
		supply:    simulatedSupply,
	}
	if params != nil {
		s.scales = append([]uint32(nil), params.CellScale...)
	}
	return s
}

// SetCells changes the cell voltages in mV.
func (s *Simulated) SetCells(cells ...uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells = append(s.cells[:0], cells...)
}

// SetSupply changes the ADC supply in mV, which the monitor corrects for
// through the reference channel.
func (s *Simulated) SetSupply(mv uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supply = mv
}

func (s *Simulated) ReadChannel(ch int) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := ch - s.start
	if cell < 0 || cell >= len(s.cells) || cell >= len(s.scales) || s.scales[cell] == 0 {
		return 0, nil
	}
	var stack uint64
	for _, mv := range s.cells[:cell+1] {
		stack += uint64(mv)
	}
	pin := (stack<<s.scaleBits + uint64(s.scales[cell])/2) / uint64(s.scales[cell])
	return s.code(pin), nil
}

func (s *Simulated) ReadReference() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code(uint64(s.reference)), nil
}

func (s *Simulated) code(mv uint64) uint16 {
	code := (mv*uint64(s.fullScale) + uint64(s.supply)/2) / uint64(s.supply)
	if code > uint64(s.fullScale) {
		code = uint64(s.fullScale)
	}
	return uint16(code)
}

func (s *Simulated) Close() error {
	return nil
}
