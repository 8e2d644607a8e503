// Package i2crequest sends I2C transactions through the HAT's I2C dbus
// service, which serialises access to the bus between processes.
package i2crequest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"
)

var errNoMockResponse = errors.New("no mock response left")

// TxResponse is a canned response used by MockTxResponses.
type TxResponse struct {
	Response []byte
	Err      error
}

var (
	mockMu        sync.Mutex
	mockResponses []TxResponse
	mocking       bool
)

// MockTxResponses makes Tx return the given responses in order instead of
// calling the dbus service. Used for testing.
func MockTxResponses(responses []TxResponse) {
	mockMu.Lock()
	defer mockMu.Unlock()
	mockResponses = responses
	mocking = true
}

// StopMock returns Tx to using the dbus service.
func StopMock() {
	mockMu.Lock()
	defer mockMu.Unlock()
	mockResponses = nil
	mocking = false
}

func nextMock() (TxResponse, bool) {
	mockMu.Lock()
	defer mockMu.Unlock()
	if !mocking {
		return TxResponse{}, false
	}
	if len(mockResponses) == 0 {
		return TxResponse{Err: errNoMockResponse}, true
	}
	res := mockResponses[0]
	mockResponses = mockResponses[1:]
	return res, true
}

// Tx writes to the device at address and then reads readLen bytes back.
// timeout is in milliseconds.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	if res, ok := nextMock(); ok {
		return res.Response, res.Err
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}
	if len(response) != readLen {
		return nil, fmt.Errorf("expected %d bytes from 0x%X, got %d", readLen, address, len(response))
	}

	return response, nil
}

// CheckAddress returns an error if nothing answers at the address.
func CheckAddress(address byte, timeout int) error {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	return err
}
