package lipo

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultChannels            = 6
	DefaultStartChannel        = 0
	DefaultGateTime            = 250 * time.Millisecond
	DefaultMinCellMillivolts   = 250
	DefaultReferenceMillivolts = 1200
	DefaultScaleBits           = 11
	DefaultResolution          = 12

	maxChannels = 16
)

// MaxGateTime is the longest accumulation window.
const MaxGateTime = time.Hour

// Config is the construct time configuration of a Monitor.
type Config struct {
	// Channels is the number of ADC channels, one per cell.
	Channels int
	// StartChannel is the ADC channel cell 0 is connected to. Cell n is on
	// StartChannel+n.
	StartChannel int
	// GateTime is how long samples are accumulated before an update.
	GateTime time.Duration
	// MinCellMillivolts is the lowest cell voltage seen as a connected cell.
	MinCellMillivolts uint32
	// ReferenceMillivolts is the nominal voltage of the reference channel.
	ReferenceMillivolts uint32
	// ScaleBits is the fixed point denominator of Params.CellScale.
	ScaleBits uint
	// Resolution of the ADC in bits.
	Resolution uint
}

func DefaultConfig() Config {
	return Config{
		Channels:            DefaultChannels,
		StartChannel:        DefaultStartChannel,
		GateTime:            DefaultGateTime,
		MinCellMillivolts:   DefaultMinCellMillivolts,
		ReferenceMillivolts: DefaultReferenceMillivolts,
		ScaleBits:           DefaultScaleBits,
		Resolution:          DefaultResolution,
	}
}

func (c Config) Validate() error {
	if c.Channels < 1 || c.Channels > maxChannels {
		return fmt.Errorf("channels must be between 1 and %d, got %d", maxChannels, c.Channels)
	}
	if c.StartChannel < 0 {
		return fmt.Errorf("start channel can not be negative, got %d", c.StartChannel)
	}
	if c.Resolution < 8 || c.Resolution > 16 {
		return fmt.Errorf("resolution must be between 8 and 16 bits, got %d", c.Resolution)
	}
	if c.ScaleBits > 16 {
		return fmt.Errorf("scale bits can not be over 16, got %d", c.ScaleBits)
	}
	if c.ReferenceMillivolts == 0 {
		return errors.New("reference voltage can not be zero")
	}
	if c.GateTime < 0 || c.GateTime > MaxGateTime {
		return fmt.Errorf("gate time must be between 0 and %s, got %s", MaxGateTime, c.GateTime)
	}
	return nil
}

// FullScale returns the highest code of the ADC.
func (c Config) FullScale() uint32 {
	return 1<<c.Resolution - 1
}
