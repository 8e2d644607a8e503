package cellmonitor

import (
	"testing"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/tc2-cell-monitor/adc"
	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now  uint32
	step uint32
}

func (c *stepClock) Millis() uint32 {
	c.now += c.step
	return c.now
}

func newTestPoller(t *testing.T) (*poller, *adc.Simulated) {
	conf := testConfig(t)
	params, err := loadParams(conf)
	require.NoError(t, err)
	sim := adc.NewSimulated(conf.ADC.SimulatedCells, conf.Monitor(), params)
	clock := &stepClock{step: 10}
	monitor, err := lipo.New(sim, clock, params, conf.Monitor())
	require.NoError(t, err)
	return newPoller(monitor, clock, params, conf), sim
}

func pollUntilReading(t *testing.T, p *poller) lipo.Reading {
	for i := 0; i < 100; i++ {
		reading, err := p.poll()
		require.NoError(t, err)
		if reading != nil {
			return *reading
		}
	}
	require.FailNow(t, "no reading after 100 polls")
	return lipo.Reading{}
}

func TestPollerReading(t *testing.T) {
	p, _ := newTestPoller(t)

	_, err := p.reading()
	assert.ErrorIs(t, err, errNoReading)

	r := pollUntilReading(t, p)
	assert.Equal(t, 3, r.NumCells)
	assert.InDelta(t, 3700, r.MinCell, 10)
	assert.Equal(t, uint32(25), r.Samples)

	last, err := p.reading()
	require.NoError(t, err)
	assert.Equal(t, r, last)
}

func TestPollerCalibrate(t *testing.T) {
	p, sim := newTestPoller(t)
	pollUntilReading(t, p)

	// Cell 1 tops out at 7400mV, calibrating to it keeps the divider scale.
	sim.SetCells(3700, 3700, 3700)
	scale, err := p.calibrate(1, 7400)
	require.NoError(t, err)
	assert.InDelta(t, 6144, scale, 10)
	assert.Equal(t, scale, p.params.CellScale[1])

	_, err = p.reading()
	assert.ErrorIs(t, err, errNoReading)

	loaded, err := loadParams(p.conf)
	require.NoError(t, err)
	assert.Equal(t, p.params.CellScale, loaded.CellScale)

	_, err = p.calibrate(5, 7400)
	assert.ErrorIs(t, err, lipo.ErrInvalidCell)
}

func TestPollerSetGateTime(t *testing.T) {
	p, _ := newTestPoller(t)
	assert.Error(t, p.setGateTime(time.Millisecond))
	assert.Error(t, p.setGateTime(lipo.MaxGateTime+time.Second))
	assert.Equal(t, p.conf.GateTime, p.monitor.GateTime())
	require.NoError(t, p.setGateTime(time.Second))
	assert.Equal(t, time.Second, p.monitor.GateTime())

	r := pollUntilReading(t, p)
	assert.Equal(t, uint32(100), r.Samples)
}

func TestPollerRunStops(t *testing.T) {
	addEvent = func(e eventclient.Event) error { return nil }
	defer func() { addEvent = eventclient.AddEvent }()

	p, _ := newTestPoller(t)
	p.conf.PollInterval = time.Millisecond
	stop := make(chan struct{})
	done := make(chan error)
	go func() { done <- p.run(stop) }()

	time.Sleep(500 * time.Millisecond)
	close(stop)
	require.NoError(t, <-done)

	_, err := p.reading()
	assert.NoError(t, err)
}
