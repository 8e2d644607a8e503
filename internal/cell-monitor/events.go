package cellmonitor

import (
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
)

const (
	eventCellCountChanged = "cellCountChanged"
	eventCellChainBroken  = "cellChainBroken"
	eventCellVoltageLow   = "cellVoltageLow"
)

var addEvent = eventclient.AddEvent

// reporter turns readings into events, each condition is only reported when
// it changes.
type reporter struct {
	lowCell   uint32
	numCells  int
	broken    bool
	low       bool
	reportedN bool
}

func newReporter(lowCell uint32) *reporter {
	return &reporter{lowCell: lowCell}
}

func (r *reporter) check(reading lipo.Reading) []eventclient.Event {
	var events []eventclient.Event
	details := map[string]interface{}{
		"cells":     reading.Cells,
		"numCells":  reading.NumCells,
		"minCell":   reading.MinCell,
		"pack":      reading.Pack(),
		"reference": reading.Reference,
	}
	newEvent := func(eventType string) eventclient.Event {
		return eventclient.Event{
			Timestamp: eventTime(reading.Time),
			Type:      eventType,
			Details:   details,
		}
	}

	broken := reading.NumCells == lipo.BrokenChain
	if broken && !r.broken {
		events = append(events, newEvent(eventCellChainBroken))
	}
	r.broken = broken
	if broken {
		return events
	}

	if !r.reportedN || reading.NumCells != r.numCells {
		events = append(events, newEvent(eventCellCountChanged))
		r.numCells = reading.NumCells
		r.reportedN = true
	}

	low := reading.NumCells > 0 && reading.MinCell < r.lowCell
	if low && !r.low {
		events = append(events, newEvent(eventCellVoltageLow))
	}
	r.low = low
	return events
}

// report sends the events for a reading. Failing to send is logged, it is
// not worth stopping the monitor for.
func (r *reporter) report(reading lipo.Reading) {
	for _, event := range r.check(reading) {
		log.Infof("Reporting %s, cells: %v", event.Type, reading.Cells)
		if err := addEvent(event); err != nil {
			log.Errorf("Error adding event: %v", err)
		}
	}
}

func eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
