// Package adc has the converters the cell monitor can read the divider taps
// with.
package adc

import (
	"fmt"
	"strings"
	"time"

	"github.com/TheCacophonyProject/tc2-cell-monitor/lipo"
)

const (
	TypeMCP3208   = "mcp3208"
	TypeADS7828   = "ads7828"
	TypeSerial    = "serial"
	TypeSimulated = "simulated"
)

// Device is an ADC that holds on to a bus or port until closed.
type Device interface {
	lipo.ADC
	Close() error
}

// Config selects and sets up a Device.
type Config struct {
	Type string `mapstructure:"type"`
	// ReferenceChannel is the channel the voltage reference is wired to.
	ReferenceChannel int `mapstructure:"reference-channel"`

	SPIPort  string `mapstructure:"spi-port"`
	SPISpeed int    `mapstructure:"spi-speed"`

	I2CAddress byte `mapstructure:"i2c-address"`

	SerialPort    string        `mapstructure:"serial-port"`
	SerialBaud    int           `mapstructure:"serial-baud"`
	SerialTimeout time.Duration `mapstructure:"serial-timeout"`

	// SimulatedCells are the cell voltages in mV the simulated pack has.
	SimulatedCells []uint32 `mapstructure:"simulated-cells"`
}

func DefaultConfig() Config {
	return Config{
		Type:             TypeMCP3208,
		ReferenceChannel: 7,
		SPIPort:          "",
		SPISpeed:         1000000,
		I2CAddress:       ads7828DefaultAddress,
		SerialPort:       "/dev/serial0",
		SerialBaud:       115200,
		SerialTimeout:    time.Second,
		SimulatedCells:   []uint32{3700, 3700, 3700, 3700, 3700, 3700},
	}
}

// Open returns the device named by conf.Type. Simulated packs are built
// from the monitor config and the calibration so they read back exactly.
func Open(conf Config, monitor lipo.Config, params *lipo.Params) (Device, error) {
	switch strings.ToLower(conf.Type) {
	case TypeMCP3208:
		return OpenMCP3208(conf.SPIPort, conf.SPISpeed, conf.ReferenceChannel)
	case TypeADS7828:
		return OpenADS7828(conf.I2CAddress, conf.ReferenceChannel)
	case TypeSerial:
		return OpenSerial(conf.SerialPort, conf.SerialBaud, conf.SerialTimeout, monitor.FullScale())
	case TypeSimulated:
		return NewSimulated(conf.SimulatedCells, monitor, params), nil
	default:
		return nil, fmt.Errorf("unknown ADC type '%s'", conf.Type)
	}
}

func checkChannel(ch, channels int) error {
	if ch < 0 || ch >= channels {
		return fmt.Errorf("channel %d out of range 0-%d", ch, channels-1)
	}
	return nil
}
