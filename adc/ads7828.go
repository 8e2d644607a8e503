package adc

import (
	"fmt"

	"github.com/TheCacophonyProject/tc2-cell-monitor/i2crequest"
)

const (
	ads7828DefaultAddress = 0x48
	ads7828Channels       = 8
	ads7828SingleEnded    = 1 << 7
	// Internal reference off, converter on. VDD is the reference.
	ads7828PowerMode = 0x01 << 2
	ads7828Timeout   = 1000
)

// ADS7828 is a 12 bit, 8 channel I2C ADC. Transactions go through the I2C
// dbus service so they don't clash with the other users of the bus.
type ADS7828 struct {
	address byte
	refChan int
}

func OpenADS7828(address byte, refChan int) (*ADS7828, error) {
	if err := checkChannel(refChan, ads7828Channels); err != nil {
		return nil, fmt.Errorf("reference %w", err)
	}
	if err := i2crequest.CheckAddress(address, ads7828Timeout); err != nil {
		return nil, fmt.Errorf("no ADS7828 found at 0x%X: %w", address, err)
	}
	return &ADS7828{address: address, refChan: refChan}, nil
}

func (a *ADS7828) ReadChannel(ch int) (uint16, error) {
	if err := checkChannel(ch, ads7828Channels); err != nil {
		return 0, err
	}
	return a.read(ch)
}

func (a *ADS7828) ReadReference() (uint16, error) {
	return a.read(a.refChan)
}

func (a *ADS7828) read(ch int) (uint16, error) {
	data, err := i2crequest.Tx(a.address, []byte{ads7828Command(ch)}, 2, ads7828Timeout)
	if err != nil {
		return 0, err
	}
	if len(data) != 2 {
		return 0, fmt.Errorf("expected 2 bytes from ADS7828, got %d", len(data))
	}
	return uint16(data[0]&0x0F)<<8 | uint16(data[1]), nil
}

// ads7828Command builds the command byte. The single ended channel select
// bits are odd channels in C2 and the channel pair in C1 and C0.
func ads7828Command(ch int) byte {
	return ads7828SingleEnded | byte(ch&0x01)<<6 | byte(ch>>1)<<4 | ads7828PowerMode
}

func (a *ADS7828) Close() error {
	return nil
}
