/*
tc2-cell-monitor - Monitors LiPo cell voltages through resistor dividers.
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package lipo samples the stacked divider taps of a series LiPo pack and
// derives the individual cell voltages from them.
//
// Every ADC channel sees the voltage from ground up to the top of its cell
// (scaled down by a resistor divider). Samples are accumulated over a gate
// time to reduce jitter, then averaged, converted to millivolts against the
// measured reference and scaled by the per channel calibration factor.
package lipo

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// BrokenChain is returned by NumCells when a valid cell is found above an
// invalid one, which points to a bad cell or a bad balancer contact.
const BrokenChain = -1

var (
	ErrInvalidCell   = errors.New("invalid cell")
	ErrZeroVoltage   = errors.New("known voltage must be greater than zero")
	ErrZeroReading   = errors.New("measured voltage is zero, check the wiring")
	ErrNoReference   = errors.New("reference channel read zero")
	ErrMissingParams = errors.New("calibration parameters missing")
)

// ADC reads raw codes from the converter the dividers are wired to.
type ADC interface {
	ReadChannel(ch int) (uint16, error)
	ReadReference() (uint16, error)
}

// Clock returns a wrapping millisecond tick.
type Clock interface {
	Millis() uint32
}

// Params holds the calibration owned by the caller. The scale for each cell
// is (R1+R2) * 2^ScaleBits / R2 for a divider of R1 over R2.
type Params struct {
	CellScale []uint32 `json:"cell_scale"`
}

// Monitor is the cell monitor. It is not safe for concurrent use: Task and
// Calibrate must be called from one goroutine, or guarded by the caller.
type Monitor struct {
	adc    ADC
	clock  Clock
	params *Params

	channels     int
	startChannel int
	minCell      uint32
	refNominal   uint32
	scaleBits    uint
	fullScale    uint32

	gateTime  uint32
	lastTick  uint32
	sampleCnt uint64
	samples   uint64
	vref      uint32
	accu      []uint64
	vcell     []uint32
	sampleBuf []uint16
}

// New creates a monitor. params is kept by reference, Calibrate writes the
// new scale factors into it.
func New(adc ADC, clock Clock, params *Params, conf Config) (*Monitor, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if params == nil {
		return nil, ErrMissingParams
	}
	if len(params.CellScale) < conf.Channels {
		return nil, fmt.Errorf("%w: have %d scales for %d channels", ErrMissingParams, len(params.CellScale), conf.Channels)
	}
	m := &Monitor{
		adc:          adc,
		clock:        clock,
		params:       params,
		channels:     conf.Channels,
		startChannel: conf.StartChannel,
		minCell:      conf.MinCellMillivolts,
		refNominal:   conf.ReferenceMillivolts,
		scaleBits:    conf.ScaleBits,
		fullScale:    conf.FullScale(),
		gateTime:     durationToMillis(conf.GateTime),
		accu:         make([]uint64, conf.Channels),
		vcell:        make([]uint32, conf.Channels),
		sampleBuf:    make([]uint16, conf.Channels),
	}
	return m, nil
}

// SetGateTime changes the accumulation window, capped at MaxGateTime. The
// window in progress is not restarted.
func (m *Monitor) SetGateTime(d time.Duration) {
	m.gateTime = durationToMillis(min(d, MaxGateTime))
}

// GateTime returns the current accumulation window.
func (m *Monitor) GateTime() time.Duration {
	return time.Duration(m.gateTime) * time.Millisecond
}

// Task samples every channel once and, when the gate time has elapsed since
// the last update, turns the accumulated samples into new cell voltages.
// It returns true when new data is available. A failed read leaves the
// monitor untouched.
func (m *Monitor) Task(now uint32) (bool, error) {
	for i := range m.sampleBuf {
		code, err := m.adc.ReadChannel(m.startChannel + i)
		if err != nil {
			return false, fmt.Errorf("reading channel %d: %w", m.startChannel+i, err)
		}
		m.sampleBuf[i] = code
	}

	m.sampleCnt++
	for i, code := range m.sampleBuf {
		m.accu[i] += uint64(code)
	}

	if now-m.lastTick < m.gateTime {
		return false, nil
	}
	if err := m.update(); err != nil {
		return false, err
	}
	m.lastTick = now
	return true, nil
}

// update moves the accumulated samples into the cell voltages.
func (m *Monitor) update() error {
	if err := m.updateVref(); err != nil {
		return err
	}

	for i := range m.accu {
		avg := uint32(m.accu[i] / m.sampleCnt)
		mv := RawToMillivolts(avg, m.vref, m.fullScale)
		m.vcell[i] = applyScale(mv, m.params.CellScale[i], m.scaleBits)
		m.accu[i] = 0
	}

	m.samples = m.sampleCnt
	m.sampleCnt = 0
	return nil
}

func (m *Monitor) updateVref() error {
	raw, err := m.adc.ReadReference()
	if err != nil {
		return fmt.Errorf("reading reference: %w", err)
	}
	vref, err := ReferenceMillivolts(m.refNominal, m.fullScale, uint32(raw))
	if err != nil {
		return err
	}
	m.vref = vref
	return nil
}

// Cell returns the voltage of a cell in mV. With abs set the voltage from
// ground to the top of the cell is returned, otherwise only the voltage
// across the cell itself. A reading below the cell underneath gives 0.
func (m *Monitor) Cell(cell int, abs bool) uint32 {
	if cell < 0 || cell >= m.channels {
		return 0
	}
	if cell == 0 || abs {
		return m.vcell[cell]
	}
	if m.vcell[cell] >= m.vcell[cell-1] {
		return m.vcell[cell] - m.vcell[cell-1]
	}
	return 0
}

// Cells returns the relative voltage of every channel.
func (m *Monitor) Cells() []uint32 {
	cells := make([]uint32, m.channels)
	for i := range cells {
		cells[i] = m.Cell(i, false)
	}
	return cells
}

// NumCells returns the number of connected cells counted from the bottom of
// the pack, or BrokenChain if a valid cell sits above an invalid one.
func (m *Monitor) NumCells() int {
	cells := 0
	done := false
	for i := 0; i < m.channels; i++ {
		if m.Cell(i, false) < m.minCell {
			done = true
			continue
		}
		if done {
			return BrokenChain
		}
		cells++
	}
	return cells
}

// MinCell returns the voltage of the weakest connected cell, or 0 when no
// cells are found or the chain is broken.
func (m *Monitor) MinCell() uint32 {
	cells := m.NumCells()
	if cells <= 0 {
		return 0
	}
	lowest := uint32(math.MaxUint32)
	for i := 0; i < cells; i++ {
		if v := m.Cell(i, false); v >= m.minCell && v < lowest {
			lowest = v
		}
	}
	return lowest
}

// Samples returns how many samples went into the last update.
func (m *Monitor) Samples() uint32 {
	if m.samples > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(m.samples)
}

// Reference returns the reference voltage in mV measured at the last update.
func (m *Monitor) Reference() uint32 {
	return m.vref
}

// Channels returns the number of monitored channels.
func (m *Monitor) Channels() int {
	return m.channels
}

// Calibrate samples the channel of the given cell for one gate time and
// derives the scale factor that makes it read the given voltage. The new
// factor is written into the Params passed to New and returned.
//
// Calibrate blocks for the gate time and must not run alongside Task.
func (m *Monitor) Calibrate(cell int, millivolts uint32) (uint32, error) {
	if cell < 0 || cell >= m.channels {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCell, cell)
	}
	if millivolts == 0 {
		return 0, ErrZeroVoltage
	}
	defer m.restart()

	if err := m.updateVref(); err != nil {
		return 0, err
	}

	var accu, count uint64
	start := m.clock.Millis()
	for count == 0 || m.clock.Millis()-start <= m.gateTime {
		code, err := m.adc.ReadChannel(m.startChannel + cell)
		if err != nil {
			return 0, fmt.Errorf("reading channel %d: %w", m.startChannel+cell, err)
		}
		accu += uint64(code)
		count++
	}

	raw := uint32(accu / count)
	mv := RawToMillivolts(raw, m.vref, m.fullScale)
	if mv == 0 {
		return 0, fmt.Errorf("%w: raw %d over %d samples", ErrZeroReading, raw, count)
	}
	scale := uint32((uint64(millivolts) << m.scaleBits) / uint64(mv))
	m.params.CellScale[cell] = scale
	return scale, nil
}

// restart clears the accumulators so the next window starts fresh.
func (m *Monitor) restart() {
	for i := range m.accu {
		m.accu[i] = 0
	}
	m.sampleCnt = 0
	m.lastTick = m.clock.Millis()
}

func applyScale(mv, scale uint32, bits uint) uint32 {
	return uint32((uint64(mv) * uint64(scale)) >> bits)
}

func durationToMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d / time.Millisecond)
}
