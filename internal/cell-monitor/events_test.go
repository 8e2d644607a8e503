package cellmonitor

import (
	"testing"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
	"github.com/stretchr/testify/assert"
)

func eventTypes(events []eventclient.Event) []string {
	types := []string{}
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestReporter(t *testing.T) {
	r := newReporter(3300)
	now := time.Now()

	reading := lipo.Reading{Time: now, Cells: []uint32{3700, 3700, 3700}, NumCells: 3, MinCell: 3700}
	assert.Equal(t, []string{eventCellCountChanged}, eventTypes(r.check(reading)))
	assert.Empty(t, r.check(reading))

	reading.Cells = []uint32{3700, 3200, 3700}
	reading.MinCell = 3200
	assert.Equal(t, []string{eventCellVoltageLow}, eventTypes(r.check(reading)))
	assert.Empty(t, r.check(reading))

	reading.Cells = []uint32{3700, 0, 3700}
	reading.NumCells = lipo.BrokenChain
	reading.MinCell = 0
	assert.Equal(t, []string{eventCellChainBroken}, eventTypes(r.check(reading)))
	assert.Empty(t, r.check(reading))

	reading.Cells = []uint32{3700, 3700, 0}
	reading.NumCells = 2
	reading.MinCell = 3700
	assert.Equal(t, []string{eventCellCountChanged}, eventTypes(r.check(reading)))

	// No pack is not a low cell.
	reading.Cells = []uint32{0, 0, 0}
	reading.NumCells = 0
	reading.MinCell = 0
	assert.Equal(t, []string{eventCellCountChanged}, eventTypes(r.check(reading)))
}

func TestReporterSendsEvents(t *testing.T) {
	var sent []eventclient.Event
	addEvent = func(e eventclient.Event) error {
		sent = append(sent, e)
		return nil
	}
	defer func() { addEvent = eventclient.AddEvent }()

	r := newReporter(3300)
	r.report(lipo.Reading{Cells: []uint32{3000}, NumCells: 1, MinCell: 3000})
	assert.Equal(t, []string{eventCellCountChanged, eventCellVoltageLow}, eventTypes(sent))
	assert.False(t, sent[0].Timestamp.IsZero())
	assert.Equal(t, 1, sent[0].Details["numCells"])
}
