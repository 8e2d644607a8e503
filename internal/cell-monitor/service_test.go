package cellmonitor

import (
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceReads(t *testing.T) {
	p, _ := newTestPoller(t)
	s := service{poller: p}

	_, dbusErr := s.GetCells()
	assert.NotNil(t, dbusErr)
	assert.Equal(t, dbusName+".GetCells", dbusErr.Name)

	pollUntilReading(t, p)

	cells, dbusErr := s.GetCells()
	require.Nil(t, dbusErr)
	assert.Len(t, cells, 3)

	n, dbusErr := s.GetNumCells()
	require.Nil(t, dbusErr)
	assert.Equal(t, int32(3), n)

	top, dbusErr := s.GetCell(2, true)
	require.Nil(t, dbusErr)
	assert.InDelta(t, 11100, top, 20)

	out, dbusErr := s.GetCell(7, false)
	require.Nil(t, dbusErr)
	assert.Equal(t, uint32(0), out)

	ref, dbusErr := s.GetReference()
	require.Nil(t, dbusErr)
	assert.InDelta(t, 3300, ref, 3)

	assert.NotNil(t, s.SetGateTime(1))
	assert.Nil(t, s.SetGateTime(500))
	assert.NotNil(t, s.SetGateTime(uint32(2*lipo.MaxGateTime/time.Millisecond)))
}

func TestServiceCalibrateError(t *testing.T) {
	p, _ := newTestPoller(t)
	s := service{poller: p}
	_, dbusErr := s.Calibrate(0, 0)
	require.NotNil(t, dbusErr)
	assert.Equal(t, dbusName+".Calibrate", dbusErr.Name)
}

func TestProcArgs(t *testing.T) {
	args, err := procArgs([]string{"--simulate", "calibrate", "--cell", "2", "--millivolts", "11100"})
	require.NoError(t, err)
	assert.True(t, args.Simulate)
	require.NotNil(t, args.Calibrate)
	assert.Equal(t, 2, args.Calibrate.Cell)
	assert.Equal(t, uint32(11100), args.Calibrate.Millivolts)
	assert.Nil(t, args.Once)

	args, err = procArgs([]string{"-c", "/tmp/conf", "once"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/conf", args.ConfigDir)
	assert.NotNil(t, args.Once)
}
