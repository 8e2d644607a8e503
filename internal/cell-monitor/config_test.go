package cellmonitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/adc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))
	return dir
}

func TestDefaultConfigWithoutFile(t *testing.T) {
	conf, err := ParseConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 6, conf.Channels)
	assert.Equal(t, 250*time.Millisecond, conf.GateTime)
	assert.Equal(t, uint32(250), conf.MinCellMillivolts)
	assert.Equal(t, uint32(1200), conf.ReferenceMillivolts)
	assert.Equal(t, uint(11), conf.ScaleBits)
	assert.Len(t, conf.DividerR1, 6)
	assert.Equal(t, adc.TypeMCP3208, conf.ADC.Type)
	assert.Len(t, conf.ADC.SimulatedCells, 6)
}

func TestParseConfig(t *testing.T) {
	dir := writeConfig(t, `
[cell-monitor]
channels = 3
start-channel = 2
gate-time = "500ms"
min-cell-millivolts = 300
divider-r1 = [0, 10000, 20000]
divider-r2 = [10000, 10000, 10000]
csv-file = ""

[cell-monitor.adc]
type = "simulated"
simulated-cells = [3600, 3700]
`)
	conf, err := ParseConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, conf.Channels)
	assert.Equal(t, 2, conf.StartChannel)
	assert.Equal(t, 500*time.Millisecond, conf.GateTime)
	assert.Equal(t, uint32(300), conf.MinCellMillivolts)
	assert.Equal(t, []float64{0, 10000, 20000}, conf.DividerR1)
	assert.Equal(t, "", conf.CSVFile)
	assert.Equal(t, adc.TypeSimulated, conf.ADC.Type)
	assert.Equal(t, []uint32{3600, 3700}, conf.ADC.SimulatedCells)
	// Not set in the file.
	assert.Equal(t, uint32(1200), conf.ReferenceMillivolts)
	assert.Equal(t, 7, conf.ADC.ReferenceChannel)

	m := conf.Monitor()
	assert.Equal(t, 3, m.Channels)
	assert.Equal(t, uint32(4095), m.FullScale())
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig(writeConfig(t, `
[cell-monitor]
channels = 0
`))
	assert.Error(t, err)

	_, err = ParseConfig(writeConfig(t, `
[cell-monitor]
gate-time = "5ms"
poll-interval = "10ms"
`))
	assert.Error(t, err)

	_, err = ParseConfig(writeConfig(t, `
[cell-monitor]
gate-time = "2h"
`))
	assert.Error(t, err)

	_, err = ParseConfig(writeConfig(t, `not = [valid`))
	assert.Error(t, err)
}
