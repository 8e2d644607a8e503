package cellmonitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
)

const maxConsecutiveErrors = 100

var errNoReading = errors.New("no reading yet")

// poller calls the monitor's Task at the poll interval. The mutex keeps
// calibration and gate time changes from the dbus service from running in
// the middle of a Task.
type poller struct {
	mu       sync.Mutex
	monitor  *lipo.Monitor
	clock    lipo.Clock
	params   *lipo.Params
	conf     *Config
	reporter *reporter

	last     lipo.Reading
	hasLast  bool
	lastLog  time.Time
	lastTrim time.Time
	errCount int
}

func newPoller(monitor *lipo.Monitor, clock lipo.Clock, params *lipo.Params, conf *Config) *poller {
	return &poller{
		monitor:  monitor,
		clock:    clock,
		params:   params,
		conf:     conf,
		reporter: newReporter(conf.LowCellMillivolts),
	}
}

// poll runs one Task and returns the new reading if the window finished.
func (p *poller) poll() (*lipo.Reading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	newData, err := p.monitor.Task(p.clock.Millis())
	if err != nil || !newData {
		return nil, err
	}
	p.last = p.monitor.Snapshot()
	p.hasLast = true
	r := p.last
	return &r, nil
}

// run polls until stop is closed. Read errors are logged and polling goes
// on, unless the ADC keeps failing.
func (p *poller) run(stop <-chan struct{}) error {
	ticker := time.NewTicker(p.conf.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
		}

		reading, err := p.poll()
		if err != nil {
			p.errCount++
			log.Debug("Error polling cells: ", err)
			if p.errCount >= maxConsecutiveErrors {
				return fmt.Errorf("%d consecutive errors polling cells, last: %w", p.errCount, err)
			}
			continue
		}
		p.errCount = 0
		if reading != nil {
			p.handleReading(*reading)
		}
	}
}

func (p *poller) handleReading(r lipo.Reading) {
	if time.Since(p.lastLog) > p.conf.LogInterval {
		log.Infof("Cells: %v, count: %d, pack: %dmV, min: %dmV, vref: %dmV, samples: %d",
			r.Cells, r.NumCells, r.Pack(), r.MinCell, r.Reference, r.Samples)
		p.lastLog = time.Now()
	} else {
		log.Debugf("Cells: %v, count: %d, min: %dmV", r.Cells, r.NumCells, r.MinCell)
	}

	p.reporter.report(r)

	if p.conf.CSVFile == "" {
		return
	}
	if time.Since(p.lastTrim) > 24*time.Hour {
		if err := keepLastLines(p.conf.CSVFile, p.conf.MaxCSVLines); err != nil {
			log.Error("Failed to trim CSV file: ", err)
		}
		p.lastTrim = time.Now()
	}
	if err := appendCSV(p.conf.CSVFile, r); err != nil {
		log.Error("Failed to write CSV file: ", err)
	}
}

// reading returns the last finished reading.
func (p *poller) reading() (lipo.Reading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasLast {
		return lipo.Reading{}, errNoReading
	}
	return p.last, nil
}

// calibrate stops polling while the cell is calibrated and then saves the
// new scale.
func (p *poller) calibrate(cell int, millivolts uint32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := uint32(0)
	if cell >= 0 && cell < p.monitor.Channels() {
		old = p.params.CellScale[cell]
	}
	scale, err := p.monitor.Calibrate(cell, millivolts)
	if err != nil {
		return 0, err
	}
	log.Infof("Cell %d scale changed from %d to %d", cell, old, scale)
	p.hasLast = false
	if err := saveParams(p.conf.CalibrationFile, p.params, p.conf.ScaleBits); err != nil {
		return scale, fmt.Errorf("calibrated but failed to save: %w", err)
	}
	return scale, nil
}

func (p *poller) setGateTime(d time.Duration) error {
	if d < p.conf.PollInterval {
		return fmt.Errorf("gate time %s is shorter than the poll interval %s", d, p.conf.PollInterval)
	}
	if d > lipo.MaxGateTime {
		return fmt.Errorf("gate time %s is over the limit of %s", d, lipo.MaxGateTime)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.monitor.SetGateTime(d)
	log.Info("Gate time set to ", d)
	return nil
}
