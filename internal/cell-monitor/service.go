package cellmonitor

import (
	"errors"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.CellMonitor"
	dbusPath = "/org/cacophony/CellMonitor"
)

type service struct {
	poller *poller
}

func startService(p *poller) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		poller: p,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// GetCells returns the voltage of each cell in mV.
func (s service) GetCells() ([]uint32, *dbus.Error) {
	r, err := s.poller.reading()
	if err != nil {
		return nil, makeDbusError(".GetCells", err)
	}
	return r.Cells, nil
}

// GetCell returns the voltage of one cell, from ground if abs is set.
func (s service) GetCell(cell int32, abs bool) (uint32, *dbus.Error) {
	r, err := s.poller.reading()
	if err != nil {
		return 0, makeDbusError(".GetCell", err)
	}
	values := r.Cells
	if abs {
		values = r.Absolute
	}
	if cell < 0 || int(cell) >= len(values) {
		return 0, nil
	}
	return values[cell], nil
}

// GetNumCells returns the number of connected cells, -1 if a cell in the
// middle of the pack is missing.
func (s service) GetNumCells() (int32, *dbus.Error) {
	r, err := s.poller.reading()
	if err != nil {
		return 0, makeDbusError(".GetNumCells", err)
	}
	return int32(r.NumCells), nil
}

func (s service) GetMinCell() (uint32, *dbus.Error) {
	r, err := s.poller.reading()
	if err != nil {
		return 0, makeDbusError(".GetMinCell", err)
	}
	return r.MinCell, nil
}

func (s service) GetReference() (uint32, *dbus.Error) {
	r, err := s.poller.reading()
	if err != nil {
		return 0, makeDbusError(".GetReference", err)
	}
	return r.Reference, nil
}

func (s service) GetSamples() (uint32, *dbus.Error) {
	r, err := s.poller.reading()
	if err != nil {
		return 0, makeDbusError(".GetSamples", err)
	}
	return r.Samples, nil
}

// Calibrate sets the scale of a cell from a known voltage across the cell
// stack up to it. Polling stops for one gate time while it runs.
func (s service) Calibrate(cell int32, millivolts uint32) (uint32, *dbus.Error) {
	log.Infof("Calibration of cell %d to %dmV requested.", cell, millivolts)
	scale, err := s.poller.calibrate(int(cell), millivolts)
	if err != nil {
		log.Error(err)
		return 0, makeDbusError(".Calibrate", err)
	}
	return scale, nil
}

func (s service) SetGateTime(ms uint32) *dbus.Error {
	if err := s.poller.setGateTime(time.Duration(ms) * time.Millisecond); err != nil {
		return makeDbusError(".SetGateTime", err)
	}
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
